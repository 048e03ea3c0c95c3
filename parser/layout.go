package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/bookshelf-crawler/models"
)

// Layout locates catalog data in a parsed listing page. Implementations
// must be stateless so one value can serve concurrent walkers.
//
// Contract:
//   - Categories returns sidebar categories in document order, or an error
//     wrapping ErrLayout when the navigation block is absent. A present but
//     empty navigation block yields an empty slice and no error.
//   - Entries returns one node per product on the page, in page order.
//   - Extract returns a fully populated Book (category set to the given
//     name, ImageURL absolute) or an error wrapping ErrMissingField or
//     ErrUnknownRating. It never returns a partial record.
//   - NextPage returns the raw href of the "next page" link, if any.
//   - Pager reports the "Page X of N" indicator when the page has one.
type Layout interface {
	Categories(doc *goquery.Document, base *url.URL) ([]models.Category, error)
	Entries(doc *goquery.Document) *goquery.Selection
	Extract(entry *goquery.Selection, category string, base *url.URL) (*models.Book, error)
	NextPage(doc *goquery.Document) (string, bool)
	Pager(doc *goquery.Document) (current, total int, ok bool)
}

// ProductPodLayout reads the books.toscrape.com markup: a side_categories
// navigation block and article.product_pod entries.
type ProductPodLayout struct{}

var _ Layout = ProductPodLayout{}

const (
	sidebarSelector  = "div.side_categories"
	categorySelector = "ul li ul li a"
	entrySelector    = "article.product_pod"
	nextSelector     = "li.next > a"
	pagerSelector    = "li.current"
)

// Categories implements Layout.
func (ProductPodLayout) Categories(doc *goquery.Document, base *url.URL) ([]models.Category, error) {
	sidebar := doc.Find(sidebarSelector)
	if sidebar.Length() == 0 {
		return nil, fmt.Errorf("%w: no %s block", ErrLayout, sidebarSelector)
	}

	root := directoryURL(base)
	links := sidebar.Find(categorySelector)
	categories := make([]models.Category, 0, links.Length())
	var err error
	links.EachWithBreak(func(i int, a *goquery.Selection) bool {
		name := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if name == "" || href == "" {
			err = fmt.Errorf("%w: category link %d has no name or href", ErrLayout, i+1)
			return false
		}
		ref, perr := url.Parse(href)
		if perr != nil {
			err = fmt.Errorf("%w: category %q href %q: %v", ErrLayout, name, href, perr)
			return false
		}
		categories = append(categories, models.Category{
			Name: name,
			URL:  root.ResolveReference(ref).String(),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// Entries implements Layout.
func (ProductPodLayout) Entries(doc *goquery.Document) *goquery.Selection {
	return doc.Find(entrySelector)
}

// Extract implements Layout.
func (ProductPodLayout) Extract(entry *goquery.Selection, category string, base *url.URL) (*models.Book, error) {
	anchor := entry.Find("h3 a").First()
	title, _ := anchor.Attr("title")
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title", ErrMissingField)
	}

	priceNode := entry.Find("p.price_color").First()
	if priceNode.Length() == 0 || strings.TrimSpace(priceNode.Text()) == "" {
		return nil, fmt.Errorf("%w: price", ErrMissingField)
	}
	price := RepairPrice(priceNode.Text())

	stock := entry.Find("p.instock.availability").First()
	if stock.Length() == 0 {
		stock = entry.Find("p.availability").First()
	}
	availability := NormalizeAvailability(stock.Text())
	if availability == "" {
		return nil, fmt.Errorf("%w: availability", ErrMissingField)
	}

	ratingClass, _ := entry.Find("p.star-rating").First().Attr("class")
	parts := strings.Fields(ratingClass)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: rating", ErrMissingField)
	}
	rating, err := ParseRating(parts[1])
	if err != nil {
		return nil, err
	}

	src, ok := entry.Find("img").First().Attr("src")
	if !ok {
		return nil, fmt.Errorf("%w: image", ErrMissingField)
	}
	imageURL, err := ResolveImageURL(base, src)
	if err != nil {
		return nil, err
	}

	return &models.Book{
		Title:        title,
		Price:        price,
		Rating:       rating,
		Availability: availability,
		Category:     category,
		ImageURL:     imageURL,
	}, nil
}

// NextPage implements Layout.
func (ProductPodLayout) NextPage(doc *goquery.Document) (string, bool) {
	href, ok := doc.Find(nextSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", false
	}
	return href, true
}

// Pager implements Layout.
func (ProductPodLayout) Pager(doc *goquery.Document) (int, int, bool) {
	text := strings.Join(strings.Fields(doc.Find(pagerSelector).First().Text()), " ")
	if text == "" {
		return 0, 0, false
	}
	var current, total int
	if _, err := fmt.Sscanf(text, "Page %d of %d", &current, &total); err != nil {
		return 0, 0, false
	}
	return current, total, true
}
