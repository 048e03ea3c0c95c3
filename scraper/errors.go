package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/bookshelf-crawler/parser"
)

var (
	// ErrNoCategories is reported as a warning when the navigation lists no
	// categories. The run ends without writing.
	ErrNoCategories = errors.New("scraper: no categories discovered")
	// ErrNoRecords is reported as a warning when every category was empty.
	ErrNoRecords = errors.New("scraper: no records collected")

	// ErrPageLimit means a category kept advertising a next page past the
	// configured page guard.
	ErrPageLimit = fmt.Errorf("%w: page limit exceeded", parser.ErrLayout)
	// ErrPaginationLoop means a next link pointed back at a visited page.
	ErrPaginationLoop = fmt.Errorf("%w: pagination loop", parser.ErrLayout)
	// ErrPagerMismatch means the pager reports more pages but the page has
	// no next link.
	ErrPagerMismatch = fmt.Errorf("%w: pager reports more pages than linked", parser.ErrLayout)
)

// FetchError names the page whose fetch failed once retries were spent.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// The types below classify a failed fetch. Every one of them reaches the
// orchestrator wrapped in a *FetchError, and any fetch failure on the root
// page or on a listing page ends the run without writing a snapshot. They
// differ only in whether the retry policy tries the page again first.

// ErrTimeout is a request that hit the configured timeout. Retried.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string { return fmt.Sprintf("timeout: %v", e.Err) }

func (e ErrTimeout) Unwrap() error { return e.Err }

// ErrConnection is a dial, reset or other transport failure before a
// response arrived. Retried.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string { return fmt.Sprintf("connection: %v", e.Err) }

func (e ErrConnection) Unwrap() error { return e.Err }

// ErrForbidden is a 403 from the catalog host. Not retried: the site is
// refusing this crawler and asking again will not change that.
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string { return fmt.Sprintf("forbidden: %v", e.Err) }

func (e ErrForbidden) Unwrap() error { return e.Err }

// ErrNotFound is a 404. Not retried; a missing root or listing page means
// the navigation pointed somewhere that does not exist, which is fatal.
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string { return fmt.Sprintf("not_found: %v", e.Err) }

func (e ErrNotFound) Unwrap() error { return e.Err }

// ErrRateLimited is a 429. Retried after backoff and the throttle delay.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string { return fmt.Sprintf("rate_limited: %v", e.Err) }

func (e ErrRateLimited) Unwrap() error { return e.Err }

// ErrStatus is any other non-2xx listing response. 5xx is retried, other
// codes are not.
type ErrStatus struct {
	Code int
	Err  error
}

func (e ErrStatus) Error() string { return fmt.Sprintf("status %d: %v", e.Code, e.Err) }

func (e ErrStatus) Unwrap() error { return e.Err }

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		if statusCode < 200 || statusCode >= 300 {
			return ErrStatus{Code: statusCode, Err: wrapped}
		}
	}

	return err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		if status.Code >= 500 {
			return "server_error"
		}
		return "bad_status"
	}
	return "other"
}
