package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Config holds crawler configuration.
type Config struct {
	BaseURL          string
	MaxPages         int
	Workers          int
	Delay            time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	OutputFile       string
	OutputFormat     string // csv, or dual for CSV plus a .jsonl mirror
	UserAgent        string
	Verbose          bool
	RespectRobotsTxt bool
	MetricsAddr      string
	VisitedCacheSize int
}

// DefaultConfig returns polite defaults for the public catalog.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://books.toscrape.com/",
		MaxPages:         100,
		Workers:          1,
		Delay:            time.Second,
		Timeout:          10 * time.Second,
		MaxRetries:       0,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		OutputFile:       "data/books.csv",
		OutputFormat:     "csv",
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:          false,
		RespectRobotsTxt: false,
		MetricsAddr:      "",
		VisitedCacheSize: 256,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if !strings.EqualFold(filepath.Ext(c.OutputFile), ".csv") {
		return fmt.Errorf("output file %q must have a .csv extension", c.OutputFile)
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv or dual, got %q", c.OutputFormat)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.VisitedCacheSize <= 0 {
		return fmt.Errorf("visited cache size must be positive")
	}

	return nil
}
