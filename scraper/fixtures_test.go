package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/bookshelf-crawler/config"
	"github.com/aluiziolira/bookshelf-crawler/pipeline"
)

const testBaseURL = "http://example.test/"

type fixtureBook struct {
	title  string
	price  string
	rating string
	image  string
}

type fixtureCategory struct {
	name  string
	slug  string
	pages [][]fixtureBook
}

func (fc fixtureCategory) rootURL() string {
	return testBaseURL + "catalogue/category/books/" + fc.slug + "/index.html"
}

func (fc fixtureCategory) pageURL(page int) string {
	if page == 1 {
		return fc.rootURL()
	}
	return fmt.Sprintf("%scatalogue/category/books/%s/page-%d.html", testBaseURL, fc.slug, page)
}

// threeCategorySite is A: 2 pages of 2, B: 1 page of 3, C: 1 empty page.
func threeCategorySite() []fixtureCategory {
	return []fixtureCategory{
		{name: "A", slug: "a_2", pages: [][]fixtureBook{
			{book("A1", "Â£10.00", "One"), book("A2", "Â£11.50", "Two")},
			{book("A3", "£12.00", "Three"), book("A4", "£13.25", "Four")},
		}},
		{name: "B", slug: "b_3", pages: [][]fixtureBook{
			{book("B1", "Â£20.00", "Five"), book("B2", "£21.00", "One"), book("B3", "£22.00", "Two")},
		}},
		{name: "C", slug: "c_4", pages: [][]fixtureBook{{}}},
	}
}

func book(title, price, rating string) fixtureBook {
	return fixtureBook{
		title:  title,
		price:  price,
		rating: rating,
		image:  "../../../../media/cache/" + strings.ToLower(title) + ".jpg",
	}
}

func buildRootPage(categories []fixtureCategory) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="side_categories"><ul class="nav nav-list"><li>`)
	b.WriteString(`<a href="catalogue/category/books_1/index.html">Books</a><ul>`)
	for _, c := range categories {
		fmt.Fprintf(&b, "<li><a href=\"catalogue/category/books/%s/index.html\">\n   %s\n</a></li>", c.slug, c.name)
	}
	b.WriteString(`</ul></li></ul></div></body></html>`)
	return b.String()
}

func buildListingPage(books []fixtureBook, page, total int, withNext bool) string {
	var b strings.Builder
	b.WriteString(`<html><body><section><ol class="row">`)
	for _, bk := range books {
		b.WriteString(`<li><article class="product_pod">`)
		fmt.Fprintf(&b, `<div class="image_container"><a href="#"><img src="%s" alt="%s"></a></div>`, bk.image, bk.title)
		fmt.Fprintf(&b, `<p class="star-rating %s"><i class="icon-star"></i></p>`, bk.rating)
		fmt.Fprintf(&b, `<h3><a href="../../../%s/index.html" title="%s">%s...</a></h3>`, strings.ToLower(bk.title), bk.title, bk.title[:1])
		fmt.Fprintf(&b, `<div class="product_price"><p class="price_color">%s</p>`, bk.price)
		b.WriteString("<p class=\"instock availability\">\n  <i class=\"icon-ok\"></i>\n    In stock\n</p></div>")
		b.WriteString(`</article></li>`)
	}
	b.WriteString(`</ol>`)
	if total > 1 {
		b.WriteString(`<ul class="pager">`)
		fmt.Fprintf(&b, `<li class="current">Page %d of %d</li>`, page, total)
		if withNext {
			fmt.Fprintf(&b, `<li class="next"><a href="page-%d.html">next</a></li>`, page+1)
		}
		b.WriteString(`</ul>`)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

// sitePages renders every page of the fixture keyed by absolute URL.
func sitePages(categories []fixtureCategory) map[string]string {
	pages := map[string]string{testBaseURL: buildRootPage(categories)}
	for _, c := range categories {
		total := len(c.pages)
		for i, books := range c.pages {
			pages[c.pageURL(i+1)] = buildListingPage(books, i+1, total, i+1 < total)
		}
	}
	return pages
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

func mockSite(pages map[string]string) *httpmock.MockTransport {
	transport := httpmock.NewMockTransport()
	for u, body := range pages {
		transport.RegisterResponder("GET", u, htmlResponder(body))
	}
	return transport
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBaseURL
	cfg.Delay = 0
	cfg.MaxPages = 10
	cfg.OutputFile = t.TempDir() + "/data/books.csv"
	return cfg
}

// newMockedCrawler returns a crawler whose colly transport is transport.
func newMockedCrawler(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport) *Crawler {
	t.Helper()
	writer, err := pipeline.NewSnapshotWriter(cfg.OutputFormat, cfg.OutputFile)
	require.NoError(t, err)
	c, err := NewCrawler(cfg, writer)
	require.NoError(t, err)
	c.Fetcher().(*CollyFetcher).WithTransport(transport)
	return c
}

// mapFetcher serves pre-rendered pages without HTTP.
type mapFetcher struct {
	pages map[string]string
	errs  map[string]error

	mu      sync.Mutex
	fetched []string
}

func (f *mapFetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, rawURL)
	f.mu.Unlock()

	if err, ok := f.errs[rawURL]; ok {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return nil, &FetchError{URL: rawURL, Err: ErrNotFound{Err: fmt.Errorf("no fixture")}}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

func (f *mapFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.fetched))
	copy(out, f.fetched)
	return out
}
