// Package models defines data structures for the crawler.
package models

import "time"

// Book represents one catalog entry extracted from a listing page.
type Book struct {
	Title        string `csv:"title" json:"title"`
	Price        string `csv:"price" json:"price"`
	Rating       Rating `csv:"rating" json:"rating"`
	Availability string `csv:"availability" json:"availability"`
	Category     string `csv:"category" json:"category"`
	ImageURL     string `csv:"image_url" json:"image_url"`
}

// Category is a named listing root as published in the site navigation.
type Category struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CategoryStats summarises what the walker saw for one category.
type CategoryStats struct {
	Name    string
	Pages   int
	Records int
}

// CrawlResult holds the overall result of one crawl run.
type CrawlResult struct {
	RunID        string
	Books        []*Book
	Categories   []CategoryStats
	StartTime    time.Time
	EndTime      time.Time
	PageCount    int
	RequestCount int
	RetryCount   int
	ErrorsByType map[string]int

	// Warning is set when the run ended without producing a snapshot for a
	// recoverable reason (no categories, no records).
	Warning error
	Written bool
}

// TotalCount returns the number of records collected by the run.
func (r *CrawlResult) TotalCount() int {
	if r == nil {
		return 0
	}
	return len(r.Books)
}
