package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"maps-scraper/models"
)

// CSVWriter writes projected sheet rows to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRows appends rows in Columns order.
func (c *CSVWriter) WriteRows(rows []models.SheetRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range rows {
		if err := c.writer.Write(ToCells(r)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// WriteSnapshot saves rows to a timestamped file in dir and returns its path.
func WriteSnapshot(dir string, rows []models.SheetRow, now time.Time) (string, error) {
	path := filepath.Join(dir, "batch-"+now.UTC().Format("20060102-150405")+".csv")
	if err := writeCSVFile(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

func writeCSVFile(path string, rows []models.SheetRow) error {
	w, err := NewCSVWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteRows(rows); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("csv: close %q: %w", path, err)
	}
	return nil
}

// ReadSnapshot loads rows saved by WriteSnapshot. Columns are located by the
// file's own header.
func ReadSnapshot(path string) ([]models.SheetRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open snapshot %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: read header of %q: %w", path, err)
	}
	if indexOf(header, ColID) < 0 {
		return nil, fmt.Errorf("csv: snapshot %q has no %s column", path, ColID)
	}

	var rows []models.SheetRow
	for {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read %q: %w", path, err)
		}
		row := FromCells(header, cells)
		if row.ID == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
