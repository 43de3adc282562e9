package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maps-scraper/models"
)

func TestSnapshotRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	batch := models.NewExportBatch([]*models.ListingRecord{
		place("a", "Crumb & Co, Soho", 4.6, ""),
		place("b", `Flour "Power"`, 0, "https://flour.example"),
	}, fixedNow)
	rows := Project(batch, fixedNow)

	path, err := WriteSnapshot(dir, rows, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "batch-20260314-093000.csv"), path)

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestReadSnapshotRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(path, []byte("platform,title\nairbnb,Loft\n"), 0o644))

	_, err := ReadSnapshot(path)
	assert.Error(t, err)
}

func TestReadSnapshotMissing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
