package pipeline

import (
	"fmt"
	"sync"

	"github.com/aluiziolira/bookshelf-crawler/models"
)

// DualWriter writes the CSV snapshot and a JSON Lines mirror of it.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter creates a dual writer for both CSV and JSON output.
func NewDualWriter(csvFilename, jsonFilename string) *DualWriter {
	return &DualWriter{
		csvWriter:  NewCSVWriter(csvFilename),
		jsonWriter: NewJSONWriter(jsonFilename),
	}
}

// Write writes books to both formats. The CSV contract file goes first; if
// the mirror fails afterwards the CSV snapshot is already in place.
func (dw *DualWriter) Write(books []*models.Book) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(books); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	if err := dw.jsonWriter.Write(books); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	return nil
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error

	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("CSV validation failed: %w", err))
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSON validation failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}
