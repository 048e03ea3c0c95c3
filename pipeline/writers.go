package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/bookshelf-crawler/models"
)

// ErrEmptySnapshot is returned when asked to persist zero records. An empty
// file is never a valid snapshot, so nothing is written.
var ErrEmptySnapshot = errors.New("pipeline: refusing to write empty snapshot")

// Header is the column order of the snapshot file read by downstream
// consumers.
var Header = []string{"id", "title", "price", "rating", "availability", "category", "image_url"}

// SnapshotWriter persists a complete, ordered record set, replacing any
// previous snapshot.
type SnapshotWriter interface {
	Write(books []*models.Book) error
	Validate() error
}

// NewSnapshotWriter returns the writer for an output format: csv, or dual
// (CSV plus a JSON Lines mirror next to it). The CSV snapshot is always
// written to filename.
func NewSnapshotWriter(format, filename string) (SnapshotWriter, error) {
	switch strings.ToLower(format) {
	case "csv":
		return NewCSVWriter(filename), nil
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl"
		return NewDualWriter(filename, jsonFilename), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// CSVWriter writes the snapshot as CSV with a header row and a 1-based id
// column.
type CSVWriter struct {
	path string

	mu      sync.Mutex
	written int
}

// NewCSVWriter returns a writer targeting filename.
func NewCSVWriter(filename string) *CSVWriter {
	return &CSVWriter{path: filename}
}

// Path returns the snapshot location.
func (cw *CSVWriter) Path() string {
	return cw.path
}

// Write replaces the snapshot with books.
func (cw *CSVWriter) Write(books []*models.Book) error {
	if len(books) == 0 {
		return ErrEmptySnapshot
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	err := writeAtomic(cw.path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(Header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for i, book := range books {
			record := []string{
				strconv.Itoa(i + 1),
				book.Title,
				book.Price,
				book.Rating.String(),
				book.Availability,
				book.Category,
				book.ImageURL,
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv records: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cw.written = len(books)
	return nil
}

// Validate re-reads the snapshot and checks the header and row ids.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	want := cw.written
	cw.mu.Unlock()

	f, err := os.Open(cw.path)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("read csv file: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("csv file is empty")
	}
	if strings.Join(records[0], ",") != strings.Join(Header, ",") {
		return fmt.Errorf("csv header = %v, want %v", records[0], Header)
	}
	rows := records[1:]
	if len(rows) == 0 {
		return fmt.Errorf("csv file has no data rows")
	}
	if want > 0 && len(rows) != want {
		return fmt.Errorf("csv rows = %d, want %d", len(rows), want)
	}
	for i, row := range rows {
		if row[0] != strconv.Itoa(i+1) {
			return fmt.Errorf("csv row %d has id %q", i+1, row[0])
		}
	}
	return nil
}

// jsonRecord is one line of the JSON Lines mirror.
type jsonRecord struct {
	ID int `json:"id"`
	*models.Book
}

// JSONWriter writes the snapshot as newline-delimited JSON records.
type JSONWriter struct {
	path string

	mu      sync.Mutex
	written int
}

// NewJSONWriter returns a writer targeting filename.
func NewJSONWriter(filename string) *JSONWriter {
	return &JSONWriter{path: filename}
}

// Path returns the snapshot location.
func (jw *JSONWriter) Path() string {
	return jw.path
}

// Write replaces the snapshot with books in JSONL format.
func (jw *JSONWriter) Write(books []*models.Book) error {
	if len(books) == 0 {
		return ErrEmptySnapshot
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	err := writeAtomic(jw.path, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		for i, book := range books {
			if err := encoder.Encode(jsonRecord{ID: i + 1, Book: book}); err != nil {
				return fmt.Errorf("encode json record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	jw.written = len(books)
	return nil
}

// Validate ensures every line decodes and the line count matches.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	want := jw.written
	jw.mu.Unlock()

	f, err := os.Open(jw.path)
	if err != nil {
		return fmt.Errorf("open json file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	for scanner.Scan() {
		var rec jsonRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("json line %d: %w", count+1, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan json file: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("json file is empty")
	}
	if want > 0 && count != want {
		return fmt.Errorf("json lines = %d, want %d", count, want)
	}
	return nil
}

// writeAtomic streams fill into a temporary file beside path, syncs it and
// renames it over path. On any failure the previous file is left untouched.
func writeAtomic(path string, fill func(w io.Writer) error) (err error) {
	if err := ensureDir(path); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	buffer := bufio.NewWriter(tmp)
	if err := fill(buffer); err != nil {
		return err
	}
	if err := buffer.Flush(); err != nil {
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
