// Package scraper fetches the catalog, walks every category and hands the
// ordered record set to a snapshot writer.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/bookshelf-crawler/config"
	"github.com/aluiziolira/bookshelf-crawler/logging"
	"github.com/aluiziolira/bookshelf-crawler/models"
	"github.com/aluiziolira/bookshelf-crawler/parser"
	"github.com/aluiziolira/bookshelf-crawler/pipeline"
)

// Crawler drives one full crawl: enumerate categories, walk each, write
// the snapshot.
type Crawler struct {
	cfg      *config.Config
	base     *url.URL
	fetcher  Fetcher
	layout   parser.Layout
	throttle *Throttle
	writer   pipeline.SnapshotWriter
	Metrics  *Metrics
	logger   *zap.Logger

	progressInterval time.Duration
}

// Option customises a Crawler.
type Option func(*Crawler)

// WithFetcher replaces the default colly fetcher.
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) {
		c.fetcher = f
	}
}

// WithLayout replaces the default product-pod markup layout.
func WithLayout(l parser.Layout) Option {
	return func(c *Crawler) {
		c.layout = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Crawler) {
		c.logger = logging.OrNop(l)
	}
}

// WithProgressReporting logs collector progress every interval.
func WithProgressReporting(interval time.Duration) Option {
	return func(c *Crawler) {
		c.progressInterval = interval
	}
}

// fetchStats is implemented by fetchers that count their traffic.
type fetchStats interface {
	Requests() int
	Retries() int
	ErrorsByType() map[string]int
}

// NewCrawler builds a crawler instance configured from cfg.
func NewCrawler(cfg *config.Config, writer pipeline.SnapshotWriter, opts ...Option) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if writer == nil {
		return nil, errors.New("snapshot writer is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	metrics := NewMetrics()
	c := &Crawler{
		cfg:     cfg,
		base:    base,
		layout:  parser.ProductPodLayout{},
		writer:  writer,
		Metrics: metrics,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.throttle = NewThrottle(cfg.Delay, metrics)

	if c.fetcher == nil {
		fetcher, err := NewCollyFetcher(cfg, c.throttle, metrics, c.logger)
		if err != nil {
			return nil, fmt.Errorf("build fetcher: %w", err)
		}
		c.fetcher = fetcher
	}
	return c, nil
}

// Fetcher returns the fetcher in use.
func (c *Crawler) Fetcher() Fetcher {
	return c.fetcher
}

// Run executes one crawl. A fatal error aborts the run before anything is
// written. Empty outcomes are not errors: they are reported through
// CrawlResult.Warning and leave the previous snapshot in place.
func (c *Crawler) Run(ctx context.Context) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.CrawlResult{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}
	log := c.logger.With(zap.String("run_id", result.RunID))
	defer c.finish(result)

	log.Info("starting crawl",
		zap.String("base_url", c.base.String()),
		zap.Int("workers", c.cfg.Workers),
		zap.Duration("delay", c.cfg.Delay),
	)

	categories, err := c.enumerate(ctx)
	if err != nil {
		log.Error("category enumeration failed", zap.Error(err))
		return result, err
	}
	if len(categories) == 0 {
		result.Warning = ErrNoCategories
		log.Warn("no categories discovered; previous snapshot left untouched")
		return result, nil
	}
	log.Info("categories discovered", zap.Int("count", len(categories)))

	collector := pipeline.NewCollector(len(categories), log)
	collector.StartProgressReporting(c.progressInterval)
	walkErr := c.walkAll(ctx, categories, collector, log)
	closeErr := collector.Close()
	result.Categories = collector.Stats()
	for _, s := range result.Categories {
		result.PageCount += s.Pages
	}
	if err := errors.Join(walkErr, closeErr); err != nil {
		log.Error("crawl aborted; snapshot not written", zap.Error(err))
		return result, err
	}

	result.Books = collector.Books()
	if len(result.Books) == 0 {
		result.Warning = ErrNoRecords
		log.Warn("no records collected; previous snapshot left untouched")
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := c.writer.Write(result.Books); err != nil {
		log.Error("snapshot write failed", zap.Error(err))
		return result, fmt.Errorf("write snapshot: %w", err)
	}
	result.Written = true
	c.Metrics.SnapshotWritten(len(result.Books), time.Now())
	log.Info("snapshot written",
		zap.Int("records", len(result.Books)),
		zap.Int("categories", len(result.Categories)),
		zap.Int("pages", result.PageCount),
	)
	return result, nil
}

func (c *Crawler) enumerate(ctx context.Context) ([]models.Category, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	root := c.base.String()
	doc, err := c.fetcher.Fetch(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("site root: %w", err)
	}
	categories, err := c.layout.Categories(doc, c.base)
	if err != nil {
		return nil, &parser.ExtractError{Page: root, Err: err}
	}
	return categories, nil
}

// walkAll feeds categories to at most cfg.Workers concurrent walkers. The
// first failure cancels the rest of the run.
func (c *Crawler) walkAll(ctx context.Context, categories []models.Category, collector *pipeline.Collector, log *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	walker := NewWalker(c.fetcher, c.layout, c.throttle, c.base, c.cfg.MaxPages, c.cfg.VisitedCacheSize, c.Metrics, log)
	for idx, cat := range categories {
		if gctx.Err() != nil {
			break
		}
		idx, cat := idx, cat
		g.Go(func() error {
			log.Info("walking category",
				zap.String("category", cat.Name),
				zap.String("url", cat.URL),
			)
			walked, err := walker.Walk(gctx, cat)
			if err != nil {
				return err
			}
			if err := collector.Submit(pipeline.CategoryResult{
				Index:    idx,
				Category: cat,
				Books:    walked.Books,
				Pages:    walked.Pages,
			}); err != nil {
				return err
			}
			c.Metrics.IncCategories()
			log.Info("category complete",
				zap.String("category", cat.Name),
				zap.Int("pages", walked.Pages),
				zap.Int("records", len(walked.Books)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *Crawler) finish(result *models.CrawlResult) {
	result.EndTime = time.Now()
	if stats, ok := c.fetcher.(fetchStats); ok {
		result.RequestCount = stats.Requests()
		result.RetryCount = stats.Retries()
		result.ErrorsByType = stats.ErrorsByType()
	}
}
