package storage

import (
	"context"

	"maps-scraper/models"
)

// ListingWriter is the interface any secondary storage backend must satisfy.
type ListingWriter interface {
	Write(ctx context.Context, records []*models.ListingRecord) error
	Close() error
}

// SheetBackend is a spreadsheet tab addressed by row. Row 0 is the header.
type SheetBackend interface {
	// ReadAll returns every non-empty row, header included.
	ReadAll(ctx context.Context) ([][]string, error)
	// BatchWrite commits all updates in a single request.
	BatchWrite(ctx context.Context, updates []RowUpdate) error
}

// RowUpdate replaces the cells of one row, starting at the first column.
type RowUpdate struct {
	Row    int
	Values []string
}
