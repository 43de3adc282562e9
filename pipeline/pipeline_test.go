package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "maps-scraper/errors"
	"maps-scraper/models"
	"maps-scraper/scraper/maps"
	"maps-scraper/services"
	"maps-scraper/storage"
	"maps-scraper/utils"
)

type fakeAcquirer struct {
	records []*models.ListingRecord
	err     error
	calls   int
}

func (f *fakeAcquirer) Acquire(ctx context.Context, req *models.SearchRequest) (*maps.Acquisition, error) {
	f.calls++
	n := len(f.records)
	if req.MaxResults < n {
		n = req.MaxResults
	}
	return &maps.Acquisition{Records: f.records[:n]}, f.err
}

// hangingFetcher never answers before the caller's deadline.
type hangingFetcher struct{}

func (hangingFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type recordingWriter struct {
	got []*models.ListingRecord
	err error
}

func (w *recordingWriter) Write(ctx context.Context, records []*models.ListingRecord) error {
	w.got = append(w.got, records...)
	return w.err
}

func (w *recordingWriter) Close() error { return nil }

func rec(id, name string, rating float64, website string) *models.ListingRecord {
	r := &models.ListingRecord{
		ID:           id,
		Name:         name,
		Address:      name + ", Soho",
		Category:     "Bakery",
		Website:      website,
		SourceMapURL: "https://www.google.com/maps/place/" + id,
		Region:       "Soho",
	}
	if rating > 0 {
		r.Rating = models.Present(rating)
	}
	return r
}

// sohoBakeries has 3 places without a website rated 4.0 or better, all
// among the first 5.
func sohoBakeries() []*models.ListingRecord {
	return []*models.ListingRecord{
		rec("1", "Rise Bakery", 4.6, "https://rise.example"),
		rec("2", "Crumb & Co", 4.2, ""),
		rec("3", "Bun Fight", 4.9, ""),
		rec("4", "Dough Boys", 3.9, ""),
		rec("5", "Flour Power", 4.0, ""),
		rec("6", "Knead", 0, ""),
		rec("7", "Loaf Story", 4.8, "https://loaf.example"),
		rec("8", "Sourdough Sam", 3.0, "https://sam.example"),
	}
}

func newTestRunner(t *testing.T, acq Acquirer, sheet storage.SheetBackend, fetcher services.PageFetcher) *Runner {
	t.Helper()
	logger := utils.NewNopLogger()
	return NewRunner(Stages{
		Acquirer:    acq,
		Enricher:    services.NewEnricher(fetcher, nil, services.EnricherOptions{Timeout: 20 * time.Millisecond}, logger),
		Reconciler:  storage.NewReconciler(sheet, &utils.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}, logger),
		SnapshotDir: t.TempDir(),
	}, logger)
}

func bakeryRequest() *models.SearchRequest {
	minRating := 4.0
	return &models.SearchRequest{
		Query: "Bakery", Region: "Soho", MaxResults: 5,
		MinRating: &minRating, OnlyNoWebsite: true,
	}
}

func TestRunBakeryScenario(t *testing.T) {
	sheet := storage.NewMemorySheet(nil)
	runner := newTestRunner(t, &fakeAcquirer{records: sohoBakeries()}, sheet, hangingFetcher{})

	summary, err := runner.Run(context.Background(), bakeryRequest())

	require.NoError(t, err)
	assert.Equal(t, perr.ExitOK, perr.ExitCode(err))
	rows := sheet.Rows()
	require.Len(t, rows, 3)
	var names []string
	for _, r := range rows {
		names = append(names, storage.FromCells(storage.Columns, r).Name)
	}
	assert.Equal(t, []string{"Bun Fight", "Crumb & Co", "Flour Power"}, names)
	assert.Equal(t, 5, summary.Acquired)
	assert.Equal(t, 3, summary.Exported)
	assert.Equal(t, 3, summary.Reconcile.TotalRows)
	assert.False(t, summary.Aborted)
}

func TestRunWritesOutputFile(t *testing.T) {
	runner := newTestRunner(t, &fakeAcquirer{records: sohoBakeries()}, storage.NewMemorySheet(nil), hangingFetcher{})
	req := bakeryRequest()
	req.OutputPath = filepath.Join(t.TempDir(), ".tmp", "scraped_places.json")

	_, err := runner.Run(context.Background(), req)
	require.NoError(t, err)

	data, err := os.ReadFile(req.OutputPath)
	require.NoError(t, err)
	var places []struct {
		Name          string   `json:"name"`
		Rating        *float64 `json:"rating"`
		HasWebsite    bool     `json:"has_website"`
		SheetCategory string   `json:"sheet_category"`
	}
	require.NoError(t, json.Unmarshal(data, &places))
	require.Len(t, places, 3)
	assert.Equal(t, "Crumb & Co", places[0].Name)
	assert.Equal(t, "Bun Fight", places[1].Name)
	assert.Equal(t, "Flour Power", places[2].Name)
	require.NotNil(t, places[1].Rating)
	assert.Equal(t, 4.9, *places[1].Rating)
	assert.False(t, places[0].HasWebsite)
	assert.Equal(t, models.CategoryWithoutWebsites, places[0].SheetCategory)
}

func TestRunAbortedWritesNoOutputFile(t *testing.T) {
	acq := &fakeAcquirer{records: sohoBakeries()[:3], err: perr.Blockedf("block page after 3 listings")}
	runner := newTestRunner(t, acq, storage.NewMemorySheet(nil), hangingFetcher{})
	req := bakeryRequest()
	req.FlushPartial = true
	req.OutputPath = filepath.Join(t.TempDir(), "places.json")

	_, err := runner.Run(context.Background(), req)

	assert.Equal(t, perr.ExitAborted, perr.ExitCode(err))
	assert.NoFileExists(t, req.OutputPath)
}

func TestRunEnrichmentTimeoutKeepsRecord(t *testing.T) {
	sheet := storage.NewMemorySheet(nil)
	site := rec("1", "Rise Bakery", 4.6, "https://rise.example")
	runner := newTestRunner(t, &fakeAcquirer{records: []*models.ListingRecord{site}}, sheet, hangingFetcher{})
	req := bakeryRequest()
	req.OnlyNoWebsite = false
	req.ScrapeWebsites = true

	summary, err := runner.Run(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, models.EnrichmentFailed, site.Enrichment)
	assert.Equal(t, "https://rise.example", site.Website)
	assert.Equal(t, 1, summary.Enrichment[models.EnrichmentFailed])

	rows := sheet.Rows()
	require.Len(t, rows, 1)
	row := storage.FromCells(storage.Columns, rows[0])
	assert.Equal(t, "failed", row.Enrichment)
	assert.Equal(t, "https://rise.example", row.Website)
}

func TestRunBlockDiscardsPartialRecords(t *testing.T) {
	sheet := storage.NewMemorySheet(nil)
	acq := &fakeAcquirer{records: sohoBakeries()[:2], err: perr.Blockedf("block page after 2 listings")}
	runner := newTestRunner(t, acq, sheet, hangingFetcher{})

	summary, err := runner.Run(context.Background(), bakeryRequest())

	require.Error(t, err)
	assert.Equal(t, perr.ExitAborted, perr.ExitCode(err))
	assert.Equal(t, 0, sheet.Writes())
	assert.Empty(t, sheet.Rows())
	assert.True(t, summary.Aborted)
	assert.Equal(t, 2, summary.Acquired)
}

func TestRunFlushPartialWritesThenAborts(t *testing.T) {
	sheet := storage.NewMemorySheet(nil)
	acq := &fakeAcquirer{records: sohoBakeries()[:2], err: perr.Blockedf("block page after 2 listings")}
	runner := newTestRunner(t, acq, sheet, hangingFetcher{})
	req := bakeryRequest()
	req.FlushPartial = true

	summary, err := runner.Run(context.Background(), req)

	assert.Equal(t, perr.ExitAborted, perr.ExitCode(err))
	require.Len(t, sheet.Rows(), 1, "only Crumb & Co passes the filters")
	assert.True(t, summary.Aborted)
	require.NotNil(t, summary.Reconcile)
	assert.Equal(t, 1, summary.Reconcile.Inserted)
}

func TestRunMaxResultsBoundsRecords(t *testing.T) {
	sheet := storage.NewMemorySheet(nil)
	runner := newTestRunner(t, &fakeAcquirer{records: sohoBakeries()}, sheet, hangingFetcher{})
	req := bakeryRequest()
	req.MaxResults = 4
	req.MinRating = nil
	req.OnlyNoWebsite = false

	summary, err := runner.Run(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 4, summary.Acquired)
	assert.Len(t, sheet.Rows(), 4)
}

func TestRunWriteFailureSavesSnapshotForResume(t *testing.T) {
	broken := storage.NewMemorySheet(nil)
	broken.FailWrites = 100
	runner := newTestRunner(t, &fakeAcquirer{records: sohoBakeries()}, broken, hangingFetcher{})

	summary, err := runner.Run(context.Background(), bakeryRequest())

	require.Error(t, err)
	assert.Equal(t, perr.ExitWriteFailure, perr.ExitCode(err))
	var wErr *storage.ReconcileWriteError
	require.True(t, errors.As(err, &wErr))
	require.NotEmpty(t, wErr.SnapshotPath)
	assert.Equal(t, wErr.SnapshotPath, summary.SnapshotPath)
	_, statErr := os.Stat(wErr.SnapshotPath)
	require.NoError(t, statErr)

	healthy := storage.NewMemorySheet(nil)
	acq := &fakeAcquirer{}
	resumer := newTestRunner(t, acq, healthy, hangingFetcher{})
	summary, err = resumer.Run(context.Background(), &models.SearchRequest{MaxResults: 20, ResumeFrom: wErr.SnapshotPath})

	require.NoError(t, err)
	assert.Equal(t, 0, acq.calls)
	assert.Len(t, healthy.Rows(), 3)
	assert.Equal(t, 3, summary.Exported)
}

func TestRunResumeMissingSnapshot(t *testing.T) {
	runner := newTestRunner(t, &fakeAcquirer{}, storage.NewMemorySheet(nil), hangingFetcher{})

	_, err := runner.Run(context.Background(), &models.SearchRequest{MaxResults: 20, ResumeFrom: "/nonexistent/batch.csv"})

	assert.Equal(t, perr.ExitConfig, perr.ExitCode(err))
}

func TestRunSecondaryFailureIsNotFatal(t *testing.T) {
	sheet := storage.NewMemorySheet(nil)
	runner := newTestRunner(t, &fakeAcquirer{records: sohoBakeries()}, sheet, hangingFetcher{})
	db := &recordingWriter{err: errors.New("connection refused")}
	runner.stages.Secondary = db

	_, err := runner.Run(context.Background(), bakeryRequest())

	require.NoError(t, err)
	assert.Len(t, db.got, 3)
	assert.Len(t, sheet.Rows(), 3)
}

func TestRunCancelledDuringAcquisition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sheet := storage.NewMemorySheet(nil)
	acq := &fakeAcquirer{records: sohoBakeries()[:1], err: perr.Wrap(context.Canceled, perr.KindCanceled, "interrupted")}
	runner := newTestRunner(t, acq, sheet, hangingFetcher{})

	_, err := runner.Run(ctx, bakeryRequest())

	assert.Equal(t, perr.ExitAborted, perr.ExitCode(err))
	assert.Equal(t, 0, sheet.Writes())
}
