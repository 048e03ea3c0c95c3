package scraper

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/bookshelf-crawler/models"
	"github.com/aluiziolira/bookshelf-crawler/parser"
)

func newTestWalker(t *testing.T, fetcher Fetcher, maxPages int) *Walker {
	t.Helper()
	base, err := url.Parse(testBaseURL)
	require.NoError(t, err)
	return NewWalker(fetcher, parser.ProductPodLayout{}, NewThrottle(0, nil), base, maxPages, 8, nil, nil)
}

func categoryOf(fc fixtureCategory) models.Category {
	return models.Category{Name: fc.name, URL: fc.rootURL()}
}

func titlesOf(books []*models.Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.Title)
	}
	return out
}

func TestWalkSinglePage(t *testing.T) {
	cat := fixtureCategory{name: "Poetry", slug: "poetry_23", pages: [][]fixtureBook{
		{book("Olio", "£23.88", "One"), book("Howl", "£9.99", "Three")},
	}}
	fetcher := &mapFetcher{pages: sitePages([]fixtureCategory{cat})}

	result, err := newTestWalker(t, fetcher, 10).Walk(context.Background(), categoryOf(cat))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, []string{"Olio", "Howl"}, titlesOf(result.Books))
	for _, b := range result.Books {
		assert.Equal(t, "Poetry", b.Category)
	}
	assert.Equal(t, []string{cat.rootURL()}, fetcher.calls())
}

func TestWalkFollowsNextLinksInOrder(t *testing.T) {
	cat := fixtureCategory{name: "Travel", slug: "travel_2", pages: [][]fixtureBook{
		{book("T1", "£1.00", "One")},
		{book("T2", "£2.00", "Two")},
		{book("T3", "£3.00", "Three")},
	}}
	fetcher := &mapFetcher{pages: sitePages([]fixtureCategory{cat})}

	result, err := newTestWalker(t, fetcher, 10).Walk(context.Background(), categoryOf(cat))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, []string{"T1", "T2", "T3"}, titlesOf(result.Books))
	assert.Equal(t, []string{cat.pageURL(1), cat.pageURL(2), cat.pageURL(3)}, fetcher.calls())
}

func TestWalkEmptyCategory(t *testing.T) {
	cat := fixtureCategory{name: "Empty", slug: "empty_9", pages: [][]fixtureBook{{}}}
	fetcher := &mapFetcher{pages: sitePages([]fixtureCategory{cat})}

	result, err := newTestWalker(t, fetcher, 10).Walk(context.Background(), categoryOf(cat))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.Empty(t, result.Books)
}

func TestWalkDetectsPaginationLoop(t *testing.T) {
	cat := fixtureCategory{name: "Loop", slug: "loop_5"}
	first := buildListingPage([]fixtureBook{book("L1", "£1.00", "One")}, 1, 2, true)
	second := strings.Replace(
		buildListingPage([]fixtureBook{book("L2", "£2.00", "Two")}, 2, 2, true),
		`href="page-3.html"`, `href="index.html"`, 1,
	)
	fetcher := &mapFetcher{pages: map[string]string{
		cat.pageURL(1): first,
		cat.pageURL(2): second,
	}}

	_, err := newTestWalker(t, fetcher, 10).Walk(context.Background(), categoryOf(cat))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPaginationLoop)
	assert.ErrorIs(t, err, parser.ErrLayout)

	var extractErr *parser.ExtractError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, "Loop", extractErr.Category)
	assert.Equal(t, cat.pageURL(1), extractErr.Page)
	assert.Len(t, fetcher.calls(), 2)
}

func TestWalkEnforcesPageLimit(t *testing.T) {
	cat := fixtureCategory{name: "Long", slug: "long_6", pages: [][]fixtureBook{
		{book("P1", "£1.00", "One")},
		{book("P2", "£1.00", "One")},
		{book("P3", "£1.00", "One")},
	}}
	fetcher := &mapFetcher{pages: sitePages([]fixtureCategory{cat})}

	_, err := newTestWalker(t, fetcher, 2).Walk(context.Background(), categoryOf(cat))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageLimit)
	assert.ErrorIs(t, err, parser.ErrLayout)
	assert.Len(t, fetcher.calls(), 2, "third page never fetched")
}

func TestWalkPagerWithoutNextLinkFails(t *testing.T) {
	cat := fixtureCategory{name: "Cut", slug: "cut_7"}
	fetcher := &mapFetcher{pages: map[string]string{
		cat.pageURL(1): buildListingPage([]fixtureBook{book("C1", "£1.00", "One")}, 1, 3, false),
	}}

	_, err := newTestWalker(t, fetcher, 10).Walk(context.Background(), categoryOf(cat))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPagerMismatch)
	assert.Contains(t, err.Error(), "page 1 of 3")
}

func TestWalkAttributesExtractionFailure(t *testing.T) {
	broken := book("Bad", "£1.00", "One")
	broken.rating = ""
	cat := fixtureCategory{name: "Mixed", slug: "mixed_8", pages: [][]fixtureBook{
		{book("Good", "£1.00", "One")},
		{book("Fine", "£1.00", "Two"), book("Okay", "£1.00", "Two"), broken},
	}}
	fetcher := &mapFetcher{pages: sitePages([]fixtureCategory{cat})}

	_, err := newTestWalker(t, fetcher, 10).Walk(context.Background(), categoryOf(cat))
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrMissingField)

	var extractErr *parser.ExtractError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, "Mixed", extractErr.Category)
	assert.Equal(t, cat.pageURL(2), extractErr.Page)
	assert.Equal(t, 3, extractErr.Entry)
}

func TestWalkFetchFailureNamesCategory(t *testing.T) {
	cat := fixtureCategory{name: "Gone", slug: "gone_9", pages: [][]fixtureBook{
		{book("G1", "£1.00", "One")},
		{book("G2", "£1.00", "One")},
	}}
	pages := sitePages([]fixtureCategory{cat})
	delete(pages, cat.pageURL(2))
	fetcher := &mapFetcher{pages: pages}

	_, err := newTestWalker(t, fetcher, 10).Walk(context.Background(), categoryOf(cat))
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, cat.pageURL(2), fetchErr.URL)
	assert.Contains(t, err.Error(), `category "Gone"`)
}

func TestWalkStopsOnCancellation(t *testing.T) {
	cat := fixtureCategory{name: "A", slug: "a_2", pages: [][]fixtureBook{{book("A1", "£1.00", "One")}}}
	fetcher := &mapFetcher{pages: sitePages([]fixtureCategory{cat})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestWalker(t, fetcher, 10).Walk(ctx, categoryOf(cat))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fetcher.calls())
}
