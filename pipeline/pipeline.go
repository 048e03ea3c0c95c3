// Package pipeline collects per-category crawl results into one ordered
// record set and persists it as a snapshot.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aluiziolira/bookshelf-crawler/logging"
	"github.com/aluiziolira/bookshelf-crawler/models"
	"github.com/aluiziolira/bookshelf-crawler/parser"
)

var (
	// ErrPipelineClosed is returned when Submit is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrDuplicateCategory is returned when a category index is submitted twice.
	ErrDuplicateCategory = errors.New("pipeline: category submitted twice")
)

// CategoryResult is one walker's output, keyed by the category's position
// in the enumerated order.
type CategoryResult struct {
	Index    int
	Category models.Category
	Books    []*models.Book
	Pages    int
}

// Collector is the accumulator owned by a single crawl run. Workers submit
// results in any order; Books returns them in enumeration order.
type Collector struct {
	resultCh chan CategoryResult
	slots    []*CategoryResult
	logger   *zap.Logger

	wg sync.WaitGroup

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewCollector builds a collector for a run over n categories and starts
// its drain goroutine.
func NewCollector(n int, logger *zap.Logger) *Collector {
	if n < 0 {
		n = 0
	}
	c := &Collector{
		resultCh: make(chan CategoryResult, n+1),
		slots:    make([]*CategoryResult, n),
		logger:   logging.OrNop(logger),
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.drain()
	return c
}

// Submit hands one category's result to the collector.
func (c *Collector) Submit(result CategoryResult) (err error) {
	closed, cerr := c.state()
	if cerr != nil {
		return cerr
	}
	if closed {
		return ErrPipelineClosed
	}
	if result.Index < 0 || result.Index >= len(c.slots) {
		return fmt.Errorf("pipeline: category index %d out of range [0,%d)", result.Index, len(c.slots))
	}

	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-c.shutdown:
		return ErrPipelineClosed
	case c.resultCh <- result:
		return nil
	}
}

// Close stops accepting results and waits for queued ones to be stored.
func (c *Collector) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.resultCh)
	})
	c.wg.Wait()
	c.signalShutdown()
	return c.Err()
}

// Err returns the first error encountered while storing results.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Books returns every stored record in category order, then in the order
// the walker produced them. Call after Close.
func (c *Collector) Books() []*models.Book {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, slot := range c.slots {
		if slot != nil {
			total += len(slot.Books)
		}
	}
	out := make([]*models.Book, 0, total)
	for _, slot := range c.slots {
		if slot != nil {
			out = append(out, slot.Books...)
		}
	}
	return out
}

// Stats returns per-category page and record counts in category order.
func (c *Collector) Stats() []models.CategoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.CategoryStats, 0, len(c.slots))
	for _, slot := range c.slots {
		if slot == nil {
			continue
		}
		out = append(out, models.CategoryStats{
			Name:    slot.Category.Name,
			Pages:   slot.Pages,
			Records: len(slot.Books),
		})
	}
	return out
}

// GetMetrics returns a snapshot of the internal counters.
func (c *Collector) GetMetrics() map[string]interface{} {
	return c.metrics.snapshot()
}

// StartProgressReporting emits periodic progress logs until Close.
func (c *Collector) StartProgressReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m := c.GetMetrics()
				c.logger.Info("crawl progress",
					zap.Int64("categories_done", m["categories_done"].(int64)),
					zap.Int("categories_total", len(c.slots)),
					zap.Int64("records", m["processed_books"].(int64)),
				)
			case <-c.shutdown:
				return
			}
		}
	}()
}

func (c *Collector) drain() {
	defer c.wg.Done()

	for result := range c.resultCh {
		if err := c.store(result); err != nil {
			c.setErr(err)
		}
	}
}

func (c *Collector) store(result CategoryResult) error {
	for i, book := range result.Books {
		if err := parser.ValidateBook(book); err != nil {
			c.metrics.addValidation("invalid_record")
			return &parser.ExtractError{Category: result.Category.Name, Page: result.Category.URL, Entry: i + 1, Err: err}
		}
		if book.Category != result.Category.Name {
			c.metrics.addValidation("category_mismatch")
			return fmt.Errorf("pipeline: record %q tagged %q submitted under %q", book.Title, book.Category, result.Category.Name)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots[result.Index] != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateCategory, result.Category.Name)
	}
	stored := result
	c.slots[result.Index] = &stored
	c.metrics.categoryDone(len(result.Books))
	return nil
}

func (c *Collector) setErr(err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	c.closed = true
}

func (c *Collector) state() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.err
}

func (c *Collector) signalShutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	categories int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) categoryDone(records int) {
	m.mu.Lock()
	m.processed += int64(records)
	m.categories++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_books":   m.processed,
		"categories_done":   m.categories,
		"validation_errors": copyValidation,
	}
}
