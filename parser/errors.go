package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrLayout means the page does not have the structure the layout
	// expects, e.g. the category sidebar is gone.
	ErrLayout = errors.New("parser: unexpected page layout")
	// ErrMissingField means a listing entry lacks a required sub-element.
	ErrMissingField = errors.New("parser: missing field")
	// ErrUnknownRating means the rating token is outside the vocabulary.
	ErrUnknownRating = errors.New("parser: unknown rating")
)

// ExtractError attributes a structural failure to the category, page and
// entry where it happened. Entry is the 1-based position on the page, or 0
// for page-level failures.
type ExtractError struct {
	Category string
	Page     string
	Entry    int
	Err      error
}

func (e *ExtractError) Error() string {
	if e.Entry > 0 {
		return fmt.Sprintf("extract category %q page %s entry %d: %v", e.Category, e.Page, e.Entry, e.Err)
	}
	return fmt.Sprintf("extract category %q page %s: %v", e.Category, e.Page, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}
