package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/bookshelf-crawler/models"
)

// printSummary renders the run totals and the per-category breakdown.
// outputFile is empty when nothing was written.
func printSummary(w io.Writer, result *models.CrawlResult, outputFile string) {
	duration := result.EndTime.Sub(result.StartTime)
	recordsPerSec := 0.0
	if duration.Seconds() > 0 {
		recordsPerSec = float64(result.TotalCount()) / duration.Seconds()
	}
	if outputFile == "" {
		outputFile = "(not written)"
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Crawl complete")
	t.AppendRows([]table.Row{
		{"Run", result.RunID},
		{"Records", result.TotalCount()},
		{"Categories", len(result.Categories)},
		{"Pages", result.PageCount},
		{"Requests", result.RequestCount},
		{"Retries", result.RetryCount},
		{"Duration", duration.Round(time.Millisecond)},
		{"Records/sec", fmt.Sprintf("%.2f", recordsPerSec)},
		{"Output file", outputFile},
	})
	if result.Warning != nil {
		t.AppendRow(table.Row{"Warning", result.Warning.Error()})
	}
	if len(result.ErrorsByType) > 0 {
		keys := make([]string, 0, len(result.ErrorsByType))
		for k := range result.ErrorsByType {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.AppendRow(table.Row{"Errors (" + k + ")", result.ErrorsByType[k]})
		}
	}
	t.Render()

	if len(result.Categories) == 0 {
		return
	}
	ct := table.NewWriter()
	ct.SetOutputMirror(w)
	ct.SetStyle(table.StyleLight)
	ct.AppendHeader(table.Row{"#", "Category", "Pages", "Records"})
	for i, c := range result.Categories {
		ct.AppendRow(table.Row{i + 1, c.Name, c.Pages, c.Records})
	}
	ct.AppendFooter(table.Row{"", "Total", result.PageCount, result.TotalCount()})
	ct.Render()
}
