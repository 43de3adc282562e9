package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"maps-scraper/models"
)

func TestProjectRecord(t *testing.T) {
	r := place("a", "Crumb & Co", 4.5, "")
	r.Phone = "+44 20 7946 0000"
	r.AltPhones = []string{"+44 7700 900123"}
	r.Emails = []string{"hello@crumb.example", "orders@crumb.example"}
	r.Socials = []models.Social{{Platform: "instagram", Handle: "crumbco"}, {Platform: "whatsapp", Handle: "447700900123"}}
	r.Enrichment = models.EnrichmentSuccess

	row := ProjectRecord(r, fixedNow)

	assert.Equal(t, "4.5", row.Rating)
	assert.Equal(t, "100", row.ReviewCount)
	assert.Equal(t, "+44 20 7946 0000, +44 7700 900123", row.Phone)
	assert.Equal(t, "hello@crumb.example, orders@crumb.example", row.Emails)
	assert.Equal(t, "https://instagram.com/crumbco, https://wa.me/447700900123", row.Socials)
	assert.Equal(t, "FALSE", row.HasWebsite)
	assert.Equal(t, models.CategoryWithSocials, row.SheetCategory)
	assert.Equal(t, "success", row.Enrichment)
	assert.Equal(t, fixedNow, row.LastSeenAt)
}

func TestProjectRecordAbsentValues(t *testing.T) {
	row := ProjectRecord(place("a", "Crumb & Co", 0, "https://crumb.example"), fixedNow)

	assert.Empty(t, row.Rating)
	assert.Empty(t, row.ReviewCount)
	assert.Empty(t, row.Phone)
	assert.Equal(t, "TRUE", row.HasWebsite)
	assert.Equal(t, models.CategoryWithWebsites, row.SheetCategory)
}

func TestFromCellsUsesHeader(t *testing.T) {
	header := []string{" name ", "Extra", "id", "LAST SEEN", "Rating"}
	cells := []string{"Crumb & Co", "x", "a", "2026-03-14T09:30:00Z"}

	row := FromCells(header, cells)

	assert.Equal(t, "a", row.ID)
	assert.Equal(t, "Crumb & Co", row.Name)
	assert.Equal(t, "", row.Rating)
	assert.Equal(t, fixedNow, row.LastSeenAt)
}

func TestToCellsMatchesColumns(t *testing.T) {
	row := ProjectRecord(place("a", "Crumb & Co", 4.6, ""), fixedNow)
	cells := ToCells(row)

	assert.Len(t, cells, len(Columns))
	assert.Equal(t, row, FromCells(Columns, cells))
}
