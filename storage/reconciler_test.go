package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "maps-scraper/errors"
	"maps-scraper/models"
	"maps-scraper/utils"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func place(id, name string, rating float64, website string) *models.ListingRecord {
	r := &models.ListingRecord{
		ID:           id,
		Name:         name,
		Address:      id + " Dean St",
		Category:     "Bakery",
		Website:      website,
		SourceMapURL: "https://www.google.com/maps/place/" + id,
		Region:       "Soho",
		Enrichment:   models.EnrichmentNotAttempted,
	}
	if rating > 0 {
		r.Rating = models.Present(rating)
		r.ReviewCount = models.Present(100)
	}
	return r
}

func newTestReconciler(sheet SheetBackend, attempts int) *Reconciler {
	logger := utils.NewNopLogger()
	r := NewReconciler(sheet, &utils.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond}, logger)
	r.now = func() time.Time { return fixedNow }
	return r
}

func ids(rows [][]string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r[0])
	}
	return out
}

func TestOverwriteSortsAndIsDeterministic(t *testing.T) {
	sheet := NewMemorySheet(nil)
	rec := newTestReconciler(sheet, 1)
	batch := models.NewExportBatch([]*models.ListingRecord{
		place("p1", "crumb", 4.2, ""),
		place("p2", "Unrated", 0, ""),
		place("p3", "bun fight", 4.8, ""),
		place("p4", "Apple Tart", 4.8, ""),
	}, fixedNow)

	res, err := rec.Reconcile(context.Background(), batch, models.ModeOverwrite)
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalRows)
	first := sheet.Rows()
	assert.Equal(t, []string{"p4", "p3", "p1", "p2"}, ids(first))

	_, err = rec.Reconcile(context.Background(), batch, models.ModeOverwrite)
	require.NoError(t, err)
	assert.Equal(t, first, sheet.Rows())
	assert.Equal(t, 2, sheet.Writes())
}

func TestOverwriteBlanksStaleRows(t *testing.T) {
	existing := [][]string{Columns}
	for i := 0; i < 5; i++ {
		existing = append(existing, []string{fmt.Sprintf("old%d", i), "Old place"})
	}
	sheet := NewMemorySheet(existing)

	batch := models.NewExportBatch([]*models.ListingRecord{
		place("a", "Crumb & Co", 4.6, ""),
		place("b", "Flour Power", 4.9, ""),
	}, fixedNow)

	_, err := newTestReconciler(sheet, 1).Reconcile(context.Background(), batch, models.ModeOverwrite)
	require.NoError(t, err)

	rows := sheet.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"b", "a"}, ids(rows))
}

func TestAppendTwiceKeepsRowCount(t *testing.T) {
	sheet := NewMemorySheet(nil)
	rec := newTestReconciler(sheet, 1)
	batch := models.NewExportBatch([]*models.ListingRecord{
		place("a", "Crumb & Co", 4.6, ""),
		place("b", "Flour Power", 4.9, ""),
		place("c", "Bun Fight", 4.1, ""),
	}, fixedNow)

	res, err := rec.Reconcile(context.Background(), batch, models.ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)

	res, err = rec.Reconcile(context.Background(), batch, models.ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 3, res.Updated)
	assert.Equal(t, 3, res.TotalRows)

	rows := sheet.Rows()
	require.Len(t, rows, 3)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(rows))
}

func TestAppendNeverBlanksFilledCells(t *testing.T) {
	old := models.SheetRow{
		ID: "a", Name: "Crumb & Co", Phone: "+44 20 7946 0000",
		Emails: "hello@crumb.example", Enrichment: "success", Rating: "4.5",
	}
	sheet := NewMemorySheet([][]string{Columns, ToCells(old)})

	update := place("a", "Crumb & Co", 4.7, "")
	_, err := newTestReconciler(sheet, 1).Reconcile(context.Background(),
		models.NewExportBatch([]*models.ListingRecord{update}, fixedNow), models.ModeAppend)
	require.NoError(t, err)

	rows := sheet.Rows()
	require.Len(t, rows, 1)
	got := FromCells(Columns, rows[0])
	assert.Equal(t, "4.7", got.Rating)
	assert.Equal(t, "+44 20 7946 0000", got.Phone)
	assert.Equal(t, "hello@crumb.example", got.Emails)
	assert.Equal(t, "success", got.Enrichment)
	assert.Equal(t, fixedNow, got.LastSeenAt)
}

func TestAppendKeepsForeignColumns(t *testing.T) {
	sheet := NewMemorySheet([][]string{
		{"Notes", "ID", "Name"},
		{"call back monday", "a", "Crumb & Co"},
	})

	batch := models.NewExportBatch([]*models.ListingRecord{
		place("a", "Crumb & Co", 4.6, "https://crumb.example"),
		place("b", "Flour Power", 4.9, ""),
	}, fixedNow)
	_, err := newTestReconciler(sheet, 1).Reconcile(context.Background(), batch, models.ModeAppend)
	require.NoError(t, err)

	all, err := sheet.ReadAll(context.Background())
	require.NoError(t, err)
	header := all[0]
	assert.Equal(t, []string{"Notes", "ID", "Name"}, header[:3])
	assert.Len(t, header, len(Columns)+1)

	assert.Equal(t, "call back monday", all[1][0])
	a := FromCells(header, all[1])
	assert.Equal(t, "https://crumb.example", a.Website)
	assert.Equal(t, "TRUE", a.HasWebsite)
	assert.Equal(t, models.CategoryWithWebsites, a.SheetCategory)

	b := FromCells(header, all[2])
	assert.Equal(t, "b", b.ID)
	assert.Equal(t, "", all[2][0])
}

func TestReconcileRetriesThenSucceeds(t *testing.T) {
	sheet := NewMemorySheet(nil)
	sheet.FailWrites = 1

	batch := models.NewExportBatch([]*models.ListingRecord{place("a", "Crumb & Co", 4.6, "")}, fixedNow)
	_, err := newTestReconciler(sheet, 3).Reconcile(context.Background(), batch, models.ModeOverwrite)

	require.NoError(t, err)
	assert.Equal(t, 1, sheet.Writes())
	assert.Len(t, sheet.Rows(), 1)
}

func TestReconcileWriteFailure(t *testing.T) {
	sheet := NewMemorySheet(nil)
	sheet.FailWrites = 10

	batch := models.NewExportBatch([]*models.ListingRecord{place("a", "Crumb & Co", 4.6, "")}, fixedNow)
	_, err := newTestReconciler(sheet, 2).Reconcile(context.Background(), batch, models.ModeAppend)

	require.Error(t, err)
	var wErr *ReconcileWriteError
	require.ErrorAs(t, err, &wErr)
	assert.Equal(t, models.ModeAppend, wErr.Mode)
	assert.Equal(t, perr.ExitWriteFailure, perr.ExitCode(err))
	assert.Equal(t, 0, sheet.Writes())
	assert.Equal(t, 8, sheet.FailWrites)
}

func TestReconcileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sheet := NewMemorySheet(nil)
	batch := models.NewExportBatch([]*models.ListingRecord{place("a", "Crumb & Co", 4.6, "")}, fixedNow)
	_, err := newTestReconciler(sheet, 3).Reconcile(ctx, batch, models.ModeOverwrite)

	assert.True(t, perr.IsKind(err, perr.KindCanceled))
	assert.Equal(t, 0, sheet.Writes())
}

func TestMergeRowEnrichment(t *testing.T) {
	old := models.SheetRow{ID: "a", Enrichment: "failed"}

	merged := MergeRow(old, models.SheetRow{ID: "a", Enrichment: "not_attempted"})
	assert.Equal(t, "failed", merged.Enrichment)

	merged = MergeRow(old, models.SheetRow{ID: "a", Enrichment: "success", Socials: "https://instagram.com/crumb"})
	assert.Equal(t, "success", merged.Enrichment)
	assert.Equal(t, models.CategoryWithSocials, merged.SheetCategory)
	assert.Equal(t, "FALSE", merged.HasWebsite)
}
