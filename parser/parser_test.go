package parser

import (
	"errors"
	"net/url"
	"testing"

	"github.com/aluiziolira/bookshelf-crawler/models"
)

func TestValidateBook(t *testing.T) {
	valid := func() *models.Book {
		return &models.Book{
			Title:        "Test Book",
			Price:        "£10.00",
			Rating:       models.RatingFive,
			Availability: "In stock",
			Category:     "Travel",
			ImageURL:     "https://books.toscrape.com/media/cache/a.jpg",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*models.Book)
		wantErr bool
	}{
		{name: "valid book", mutate: func(*models.Book) {}, wantErr: false},
		{name: "missing title", mutate: func(b *models.Book) { b.Title = "" }, wantErr: true},
		{name: "missing price", mutate: func(b *models.Book) { b.Price = " " }, wantErr: true},
		{name: "invalid rating", mutate: func(b *models.Book) { b.Rating = "Zero" }, wantErr: true},
		{name: "missing availability", mutate: func(b *models.Book) { b.Availability = "" }, wantErr: true},
		{name: "missing category", mutate: func(b *models.Book) { b.Category = "" }, wantErr: true},
		{name: "relative image", mutate: func(b *models.Book) { b.ImageURL = "media/cache/a.jpg" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := valid()
			tt.mutate(book)
			err := ValidateBook(book)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBook() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateBook(nil); err == nil {
		t.Error("ValidateBook(nil) should fail")
	}
}

func TestRepairPrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "mis-encoded pound", input: "Â£51.77", expected: "£51.77"},
		{name: "clean pound", input: "£51.77", expected: "£51.77"},
		{name: "with whitespace", input: "  Â£10.50  ", expected: "£10.50"},
		{name: "nested artifact", input: "ÂÂ££3.00", expected: "££3.00"},
		{name: "no currency", input: "25.99", expected: "25.99"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := RepairPrice(tt.input)
			if once != tt.expected {
				t.Errorf("RepairPrice(%q) = %q, want %q", tt.input, once, tt.expected)
			}
			if twice := RepairPrice(once); twice != once {
				t.Errorf("RepairPrice is not idempotent: %q then %q", once, twice)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	seen := make(map[models.Rating]string)
	for _, token := range []string{"One", "Two", "Three", "Four", "Five"} {
		r, err := ParseRating(token)
		if err != nil {
			t.Fatalf("ParseRating(%q) error = %v", token, err)
		}
		if string(r) != token {
			t.Errorf("ParseRating(%q) = %q", token, r)
		}
		if prev, dup := seen[r]; dup {
			t.Errorf("tokens %q and %q map to the same rating %q", prev, token, r)
		}
		seen[r] = token
	}
	if len(seen) != len(models.Ratings) {
		t.Fatalf("vocabulary coverage = %d, want %d", len(seen), len(models.Ratings))
	}

	for _, token := range []string{"Zero", "three", "", "Six", "star-rating"} {
		if _, err := ParseRating(token); !errors.Is(err, ErrUnknownRating) {
			t.Errorf("ParseRating(%q) error = %v, want ErrUnknownRating", token, err)
		}
	}
}

func TestNormalizeAvailability(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "with whitespace", input: "\n\n    In stock (22 available)\n  ", expected: "In stock (22 available)"},
		{name: "no whitespace", input: "In stock", expected: "In stock"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAvailability(tt.input); got != tt.expected {
				t.Errorf("NormalizeAvailability(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveImageURL(t *testing.T) {
	base, _ := url.Parse("https://books.toscrape.com")

	tests := []struct {
		name     string
		src      string
		expected string
		wantErr  bool
	}{
		{
			name:     "category page depth",
			src:      "../../../../media/cache/2c/da/2cdad67c.jpg",
			expected: "https://books.toscrape.com/media/cache/2c/da/2cdad67c.jpg",
		},
		{
			name:     "root page",
			src:      "media/cache/2c/da/2cdad67c.jpg",
			expected: "https://books.toscrape.com/media/cache/2c/da/2cdad67c.jpg",
		},
		{
			name:     "dot prefix",
			src:      "./media/a.jpg",
			expected: "https://books.toscrape.com/media/a.jpg",
		},
		{
			name:     "already absolute",
			src:      "https://cdn.example.test/a.jpg",
			expected: "https://cdn.example.test/a.jpg",
		},
		{name: "empty", src: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveImageURL(base, tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveImageURL(%q) error = %v, wantErr %v", tt.src, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ResolveImageURL(%q) = %q, want %q", tt.src, got, tt.expected)
			}
		})
	}
}

func TestResolveImageURLFromPageBase(t *testing.T) {
	tests := []struct {
		base     string
		src      string
		expected string
	}{
		{"https://books.toscrape.com/index.html", "media/cache/a.jpg", "https://books.toscrape.com/media/cache/a.jpg"},
		{"https://books.toscrape.com/index.html?x=1#top", "../../media/a.jpg", "https://books.toscrape.com/media/a.jpg"},
		{"https://example.test/mirror/", "media/a.jpg", "https://example.test/mirror/media/a.jpg"},
		{"https://example.test/mirror/index.html", "media/a.jpg", "https://example.test/mirror/media/a.jpg"},
	}

	for _, tt := range tests {
		base, err := url.Parse(tt.base)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.base, err)
		}
		got, err := ResolveImageURL(base, tt.src)
		if err != nil {
			t.Fatalf("ResolveImageURL(%q, %q) error = %v", tt.base, tt.src, err)
		}
		if got != tt.expected {
			t.Errorf("ResolveImageURL(%q, %q) = %q, want %q", tt.base, tt.src, got, tt.expected)
		}
	}
}

func TestExtractErrorMessage(t *testing.T) {
	err := &ExtractError{Category: "Travel", Page: "http://x/page-2.html", Entry: 3, Err: ErrMissingField}
	want := `extract category "Travel" page http://x/page-2.html entry 3: parser: missing field`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrMissingField) {
		t.Error("ExtractError should unwrap to its cause")
	}
}
