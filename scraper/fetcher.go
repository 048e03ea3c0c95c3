package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/aluiziolira/bookshelf-crawler/config"
	"github.com/aluiziolira/bookshelf-crawler/logging"
)

// Fetcher retrieves one URL and returns its parsed document.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// CollyFetcher is a blocking Fetcher on top of a synchronous colly
// collector. Every Fetch runs on a clone of the base collector so callbacks
// stay scoped to one request while the transport is shared.
//
// Callers wait on the run's Throttle before the first attempt; retries wait
// on it themselves, so a retry never goes out sooner than the configured
// delay even when the backoff is shorter.
type CollyFetcher struct {
	collector *colly.Collector
	retry     *retryPolicy
	throttle  *Throttle
	metrics   *Metrics
	logger    *zap.Logger

	requestCount int64
	retryCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewCollyFetcher builds a fetcher configured from cfg. throttle may be nil.
func NewCollyFetcher(cfg *config.Config, throttle *Throttle, metrics *Metrics, logger *zap.Logger) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &CollyFetcher{
		collector:    collector,
		retry:        newRetryPolicy(cfg),
		throttle:     throttle,
		metrics:      metrics,
		logger:       logging.OrNop(logger),
		errorsByType: make(map[string]int),
	}, nil
}

// WithTransport swaps the HTTP transport used by every subsequent fetch.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch implements Fetcher. Non-success statuses and transport failures
// are returned as *FetchError once the retry policy gives up.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	var lastErr error
	for retries := 0; ; retries++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := f.fetchOnce(rawURL)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !f.retry.ShouldRetry(err, retries) {
			break
		}

		delay := f.retry.Backoff(retries + 1)
		atomic.AddInt64(&f.retryCount, 1)
		f.metrics.IncRetries()
		f.logger.Warn("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", retries+2),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
		if err := f.throttle.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return nil, &FetchError{URL: rawURL, Err: lastErr}
}

func (f *CollyFetcher) fetchOnce(rawURL string) (*goquery.Document, error) {
	c := f.collector.Clone()

	var (
		doc      *goquery.Document
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		atomic.AddInt64(&f.requestCount, 1)
		f.metrics.IncRequest("started")
		f.logger.Debug("fetching page", zap.String("url", r.URL.String()))
	})

	c.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
		f.metrics.IncRequest("completed")
		parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			fetchErr = fmt.Errorf("parse html: %w", err)
			return
		}
		doc = parsed
	})

	c.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = classifyError(err, statusCode)
	})

	if err := c.Visit(rawURL); err != nil && fetchErr == nil {
		fetchErr = classifyError(err, 0)
	}
	if fetchErr == nil && doc == nil {
		fetchErr = errors.New("no document received")
	}
	if fetchErr != nil {
		f.recordError(rawURL, fetchErr)
		return nil, fetchErr
	}
	return doc, nil
}

func (f *CollyFetcher) recordError(rawURL string, err error) {
	label := errorTypeLabel(err)
	f.mu.Lock()
	f.errorsByType[label]++
	f.mu.Unlock()
	f.metrics.IncError(label)
	f.logger.Error("request error",
		zap.String("url", rawURL),
		zap.String("category", label),
		zap.Error(err),
	)
}

// Requests returns the number of HTTP requests issued so far.
func (f *CollyFetcher) Requests() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

// Retries returns the number of retry attempts made so far.
func (f *CollyFetcher) Retries() int {
	return int(atomic.LoadInt64(&f.retryCount))
}

// ErrorsByType returns a copy of the error counts keyed by type label.
func (f *CollyFetcher) ErrorsByType() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		out[k] = v
	}
	return out
}
