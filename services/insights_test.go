package services

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"maps-scraper/models"
	"maps-scraper/utils"
)

func sampleRecords() []*models.ListingRecord {
	return []*models.ListingRecord{
		{ID: "1", Name: "Rise Bakery", Category: "Bakery", Rating: models.Present(4.9), Website: "https://rise.example", Enrichment: models.EnrichmentSuccess},
		{ID: "2", Name: "Crumb & Co", Category: "Bakery", Rating: models.Present(4.6), Enrichment: models.EnrichmentNotAttempted},
		{ID: "3", Name: "Bean There", Category: "Cafe", Rating: models.Present(4.8), Website: "https://bean.example", Enrichment: models.EnrichmentFailed},
		{ID: "4", Name: "Knead", Category: "Bakery", Rating: models.Absent[float64]("not shown"), Enrichment: models.EnrichmentNotAttempted},
		{ID: "5", Name: "Bun Fight", Category: "Cafe", Rating: models.Present(4.7),
			Socials: []models.Social{{Platform: "instagram", Handle: "bunfight"}}, Enrichment: models.EnrichmentNotAttempted},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	recs := sampleRecords()
	r := svc.Generate(&models.SearchRequest{Query: "Bakery", Region: "Soho"}, recs, nil, models.NewExportBatch(recs, time.Now()))
	if r.Acquired != 5 {
		t.Errorf("Acquired: got %d, want 5", r.Acquired)
	}
	if r.Exported != 5 {
		t.Errorf("Exported: got %d, want 5", r.Exported)
	}
	if r.Enrichment[models.EnrichmentNotAttempted] != 3 {
		t.Errorf("NotAttempted: got %d, want 3", r.Enrichment[models.EnrichmentNotAttempted])
	}
	if r.Query != "Bakery" || r.Region != "Soho" {
		t.Errorf("search: got %q near %q", r.Query, r.Region)
	}
}

func TestInsightAverageRating(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(nil, sampleRecords(), nil, nil)
	if r.AverageRating != 4.75 {
		t.Errorf("AverageRating: got %.2f, want 4.75", r.AverageRating)
	}
}

func TestInsightTopRated(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(nil, sampleRecords(), nil, nil)
	if len(r.TopRated) != 4 {
		t.Fatalf("TopRated len: got %d, want 4", len(r.TopRated))
	}
	if r.TopRated[0].Name != "Rise Bakery" {
		t.Errorf("TopRated[0]: got %q, want Rise Bakery", r.TopRated[0].Name)
	}
}

func TestInsightGrouping(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	recs := sampleRecords()
	outcomes := []models.FilterOutcome{
		{RecordID: "x", Passed: false, Reason: "min_rating: rating absent"},
		{RecordID: "y", Passed: false, Reason: "min_rating: rating 3.0 below 4.0"},
		{RecordID: "z", Passed: true},
	}
	r := svc.Generate(nil, recs, outcomes, models.NewExportBatch(recs, time.Now()))
	if r.ByCategory["Bakery"] != 3 {
		t.Errorf("Bakery count: got %d, want 3", r.ByCategory["Bakery"])
	}
	if r.BySheetTab[models.CategoryWithWebsites] != 2 || r.BySheetTab[models.CategoryWithSocials] != 1 ||
		r.BySheetTab[models.CategoryWithoutWebsites] != 2 {
		t.Errorf("BySheetTab: got %v", r.BySheetTab)
	}
	if r.Rejections["min_rating"] != 2 {
		t.Errorf("Rejections: got %v", r.Rejections)
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(nil, nil, nil, nil)
	if r.Acquired != 0 || r.Exported != 0 {
		t.Errorf("expected an empty summary, got %+v", r)
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(nil, sampleRecords(), nil, nil)
	r.Aborted = true
	r.AbortReason = "blocked by captcha"
	r.SnapshotPath = "output/batch.csv"

	var buf bytes.Buffer
	svc.Print(&buf, r)
	out := buf.String()
	for _, want := range []string{"Rise Bakery", "blocked by captcha", "output/batch.csv", "Nothing exported"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q", want)
		}
	}
}
