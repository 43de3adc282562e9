package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"maps-scraper/config"
	perr "maps-scraper/errors"
	"maps-scraper/models"
	"maps-scraper/utils"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

const batchSize = 50

// placeColumns is the column order of every INSERT into places.
var placeColumns = []string{
	"id", "name", "address", "category", "rating", "review_count", "phone",
	"website", "emails", "socials", "has_website", "sheet_category",
	"enrichment", "maps_url", "region", "last_seen",
}

// dialect captures what differs between the supported SQL servers.
type dialect struct {
	driver      string
	placeholder func(n int) string
	upsert      string
}

// SQLWriter upserts listing records into the places table.
type SQLWriter struct {
	db      *sql.DB
	dialect dialect
	logger  *utils.Logger
	now     func() time.Time
}

func newSQLWriter(db *sql.DB, d dialect, logger *utils.Logger) *SQLWriter {
	return &SQLWriter{db: db, dialect: d, logger: logger, now: time.Now}
}

// OpenRelational connects the secondary store selected by cfg. It returns
// nil when no database is configured.
func OpenRelational(ctx context.Context, cfg *config.Config, logger *utils.Logger) (ListingWriter, error) {
	if !cfg.DBEnabled() {
		return nil, nil
	}
	var (
		w   *SQLWriter
		err error
	)
	switch cfg.DBDriver {
	case "mysql":
		w, err = NewMySQLWriter(ctx, cfg.DSN(), logger)
	case "postgres":
		w, err = NewPostgresWriter(ctx, cfg.DSN(), logger)
	default:
		return nil, perr.Configf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// openSQL opens a connection, waits for the server and applies migrations.
func openSQL(ctx context.Context, dsn string, d dialect, logger *utils.Logger) (*SQLWriter, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.driver, err)
	}

	for i := 0; i < 5; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping failed after retries: %w", d.driver, err)
	}

	if err := migrate(ctx, db, d.driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", d.driver, err)
	}

	logger.Info("[db] Connected to %s", d.driver)
	return newSQLWriter(db, d, logger), nil
}

func migrate(ctx context.Context, db *sql.DB, driver string) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(driver); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations/"+driver)
}

// Write upserts records by ID in one transaction, in batches.
func (w *SQLWriter) Write(ctx context.Context, records []*models.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", w.dialect.driver, err)
	}

	now := w.now().UTC()
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := w.upsertBatch(ctx, tx, records[i:end], now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", w.dialect.driver, err)
	}
	w.logger.Info("[db] Upserted %d places", len(records))
	return nil
}

func (w *SQLWriter) upsertBatch(ctx context.Context, tx *sql.Tx, batch []*models.ListingRecord, now time.Time) error {
	width := len(placeColumns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*width)

	for idx, r := range batch {
		holders := make([]string, width)
		for c := range holders {
			holders[c] = w.dialect.placeholder(idx*width + c + 1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(holders, ",")+")")
		valueArgs = append(valueArgs, placeArgs(r, now)...)
	}

	query := fmt.Sprintf("INSERT INTO places (%s) VALUES %s %s",
		strings.Join(placeColumns, ", "), strings.Join(valueStrings, ","), w.dialect.upsert)

	if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("%s: upsert batch: %w", w.dialect.driver, err)
	}
	return nil
}

func placeArgs(r *models.ListingRecord, now time.Time) []interface{} {
	row := ProjectRecord(r, now)

	rating := sql.NullFloat64{Float64: r.Rating.Value, Valid: r.Rating.Present}
	reviews := sql.NullInt64{Int64: int64(r.ReviewCount.Value), Valid: r.ReviewCount.Present}

	return []interface{}{
		row.ID, row.Name, row.Address, row.Category, rating, reviews, row.Phone,
		row.Website, row.Emails, row.Socials, r.HasWebsite(), row.SheetCategory,
		row.Enrichment, row.SourceMapURL, row.Region, now,
	}
}

// Close releases the connection pool.
func (w *SQLWriter) Close() error {
	return w.db.Close()
}
