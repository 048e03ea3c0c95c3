package scraper

import (
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/aluiziolira/bookshelf-crawler/logging"
	"github.com/aluiziolira/bookshelf-crawler/models"
	"github.com/aluiziolira/bookshelf-crawler/parser"
)

type walkState int

const (
	stateFetching walkState = iota
	stateExtracting
	stateCheckingNext
	stateDone
)

// Walker follows one category's "next page" links from its root page,
// extracting every entry on every page.
type Walker struct {
	fetcher   Fetcher
	layout    parser.Layout
	throttle  *Throttle
	base      *url.URL
	maxPages  int
	cacheSize int
	metrics   *Metrics
	logger    *zap.Logger
}

// WalkResult is everything a walker collected for one category.
type WalkResult struct {
	Books []*models.Book
	Pages int
}

// NewWalker builds a walker. base is the site root used to resolve image
// URLs; maxPages bounds the number of pages fetched per category.
func NewWalker(fetcher Fetcher, layout parser.Layout, throttle *Throttle, base *url.URL, maxPages, cacheSize int, metrics *Metrics, logger *zap.Logger) *Walker {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &Walker{
		fetcher:   fetcher,
		layout:    layout,
		throttle:  throttle,
		base:      base,
		maxPages:  maxPages,
		cacheSize: cacheSize,
		metrics:   metrics,
		logger:    logging.OrNop(logger),
	}
}

// Walk runs the pagination state machine for cat until no next link is
// found. Records are returned in page order, then in-page order, each
// tagged with cat.Name.
func (w *Walker) Walk(ctx context.Context, cat models.Category) (*WalkResult, error) {
	root, err := url.Parse(cat.URL)
	if err != nil {
		return nil, &parser.ExtractError{Category: cat.Name, Page: cat.URL, Err: fmt.Errorf("%w: category url: %v", parser.ErrLayout, err)}
	}
	visited, err := lru.New[string, struct{}](w.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("visited cache: %w", err)
	}

	result := &WalkResult{}
	pageURL := root.String()
	var doc *goquery.Document

	for state := stateFetching; state != stateDone; {
		switch state {
		case stateFetching:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if result.Pages >= w.maxPages {
				return nil, &parser.ExtractError{Category: cat.Name, Page: pageURL, Err: fmt.Errorf("%w: %d pages", ErrPageLimit, w.maxPages)}
			}
			if visited.Contains(pageURL) {
				return nil, &parser.ExtractError{Category: cat.Name, Page: pageURL, Err: ErrPaginationLoop}
			}
			visited.Add(pageURL, struct{}{})

			if err := w.throttle.Wait(ctx); err != nil {
				return nil, err
			}
			doc, err = w.fetcher.Fetch(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("category %q: %w", cat.Name, err)
			}
			result.Pages++
			w.metrics.IncPages()
			state = stateExtracting

		case stateExtracting:
			books, err := w.extractPage(doc, cat.Name, pageURL)
			if err != nil {
				return nil, err
			}
			result.Books = append(result.Books, books...)
			w.metrics.AddRecords(cat.Name, len(books))
			w.logger.Debug("page extracted",
				zap.String("category", cat.Name),
				zap.String("url", pageURL),
				zap.Int("records", len(books)),
			)
			state = stateCheckingNext

		case stateCheckingNext:
			href, ok := w.layout.NextPage(doc)
			if !ok {
				if current, total, has := w.layout.Pager(doc); has && current < total {
					return nil, &parser.ExtractError{Category: cat.Name, Page: pageURL, Err: fmt.Errorf("%w: page %d of %d", ErrPagerMismatch, current, total)}
				}
				state = stateDone
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				return nil, &parser.ExtractError{Category: cat.Name, Page: pageURL, Err: fmt.Errorf("%w: next href %q: %v", parser.ErrLayout, href, err)}
			}
			// Resolved against the category root, not the current page.
			pageURL = root.ResolveReference(ref).String()
			state = stateFetching
		}
	}

	return result, nil
}

func (w *Walker) extractPage(doc *goquery.Document, category, pageURL string) ([]*models.Book, error) {
	entries := w.layout.Entries(doc)
	books := make([]*models.Book, 0, entries.Length())
	var extractErr error
	entries.EachWithBreak(func(i int, entry *goquery.Selection) bool {
		book, err := w.layout.Extract(entry, category, w.base)
		if err != nil {
			extractErr = &parser.ExtractError{Category: category, Page: pageURL, Entry: i + 1, Err: err}
			return false
		}
		books = append(books, book)
		return true
	})
	if extractErr != nil {
		return nil, extractErr
	}
	return books, nil
}
