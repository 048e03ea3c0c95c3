// Package parser turns catalog markup into Book and Category records.
package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aluiziolira/bookshelf-crawler/models"
)

// mojibakePound is how "£" reads when its UTF-8 bytes are decoded as Latin-1.
const (
	mojibakePound = "Â£"
	pound         = "£"
)

// ValidateBook ensures the extractor captured every required field.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("%w: title", ErrMissingField)
	}
	if strings.TrimSpace(b.Price) == "" {
		return fmt.Errorf("%w: price for %s", ErrMissingField, b.Title)
	}
	if !b.Rating.Valid() {
		return fmt.Errorf("%w: %q for %s", ErrUnknownRating, b.Rating, b.Title)
	}
	if strings.TrimSpace(b.Availability) == "" {
		return fmt.Errorf("%w: availability for %s", ErrMissingField, b.Title)
	}
	if strings.TrimSpace(b.Category) == "" {
		return fmt.Errorf("%w: category for %s", ErrMissingField, b.Title)
	}
	u, err := url.Parse(b.ImageURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("book image url %q is not absolute for %s", b.ImageURL, b.Title)
	}
	return nil
}

// RepairPrice trims the price text and replaces the double-encoded pound
// sign with the real glyph. The replacement runs to a fixed point so the
// function is idempotent.
func RepairPrice(price string) string {
	price = strings.TrimSpace(price)
	for strings.Contains(price, mojibakePound) {
		price = strings.ReplaceAll(price, mojibakePound, pound)
	}
	return price
}

// NormalizeAvailability trims spacing from the availability text.
func NormalizeAvailability(text string) string {
	return strings.TrimSpace(text)
}

// ParseRating maps a rating class token onto the five-word vocabulary.
// Unknown tokens are an error, never a default.
func ParseRating(token string) (models.Rating, error) {
	r := models.Rating(strings.TrimSpace(token))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRating, token)
	}
	return r, nil
}

// ResolveImageURL strips relative path markers from src and joins the
// result to the directory of base. Absolute sources are returned unchanged.
func ResolveImageURL(base *url.URL, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", fmt.Errorf("%w: image src", ErrMissingField)
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse image src %q: %w", src, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	cleaned := strings.ReplaceAll(src, "../", "")
	for strings.HasPrefix(cleaned, "./") {
		cleaned = strings.TrimPrefix(cleaned, "./")
	}
	ref, err = url.Parse(cleaned)
	if err != nil {
		return "", fmt.Errorf("parse image src %q: %w", cleaned, err)
	}
	return directoryURL(base).ResolveReference(ref).String(), nil
}

// directoryURL returns the directory containing u: the path is cut back to
// its last slash, so ".../index.html" and ".../" both yield ".../".
func directoryURL(u *url.URL) *url.URL {
	out := *u
	out.RawPath = ""
	out.RawQuery = ""
	out.Fragment = ""
	if i := strings.LastIndex(out.Path, "/"); i >= 0 {
		out.Path = out.Path[:i+1]
	} else {
		out.Path = "/"
	}
	return &out
}
