package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"maps-scraper/models"
	"maps-scraper/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes the run statistics over the acquired records and the
// exported batch. Reconcile and abort details are filled in by the caller.
func (s *InsightService) Generate(req *models.SearchRequest, records []*models.ListingRecord, outcomes []models.FilterOutcome, batch *models.ExportBatch) *models.RunSummary {
	summary := &models.RunSummary{
		Acquired:   len(records),
		Enrichment: make(map[models.EnrichmentStatus]int),
		Rejections: RejectionCounts(outcomes),
		ByCategory: make(map[string]int),
		BySheetTab: make(map[string]int),
		Exported:   batch.Len(),
	}
	if req != nil {
		summary.Query = req.Query
		summary.Region = req.Region
	}

	var rated []*models.ListingRecord
	var total float64
	for _, r := range records {
		summary.Enrichment[r.Enrichment]++
		if r.Category != "" {
			summary.ByCategory[r.Category]++
		}
		if r.Rating.Present {
			rated = append(rated, r)
			total += r.Rating.Value
		}
	}
	if batch != nil {
		for _, r := range batch.Records {
			summary.BySheetTab[r.SheetCategory()]++
		}
	}

	if len(rated) > 0 {
		summary.AverageRating = round2(total / float64(len(rated)))
	}

	// Top 5 by rating
	sort.SliceStable(rated, func(i, j int) bool {
		return rated[i].Rating.Value > rated[j].Rating.Value
	})
	if len(rated) > 5 {
		summary.TopRated = rated[:5]
	} else {
		summary.TopRated = rated
	}

	return summary
}

func (s *InsightService) Print(w io.Writer, r *models.RunSummary) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📍 MAPS SCRAPE SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.Query != "" {
		fmt.Fprintf(w, "  Search                 : %s near %s\n", r.Query, r.Region)
	}
	fmt.Fprintf(w, "  Listings acquired      : \033[1m%d\033[0m\n", r.Acquired)
	if r.Dropped > 0 {
		fmt.Fprintf(w, "  Listings dropped       : %d\n", r.Dropped)
	}
	fmt.Fprintf(w, "  Listings exported      : \033[1m%d\033[0m\n", r.Exported)
	if r.Aborted {
		fmt.Fprintf(w, "  \033[1;31mAborted\033[0m                : %s\n", r.AbortReason)
	}
	if r.AverageRating > 0 {
		fmt.Fprintf(w, "  Average rating         : \033[1;32m%.2f ★\033[0m\n", r.AverageRating)
	}
	fmt.Fprintln(w)

	// Enrichment
	fmt.Fprintf(w, "\033[1;33m  Website Enrichment\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, st := range []models.EnrichmentStatus{
		models.EnrichmentSuccess, models.EnrichmentFailed, models.EnrichmentSkipped, models.EnrichmentNotAttempted,
	} {
		fmt.Fprintf(w, "  %-22s : %d\n", st.String(), r.Enrichment[st])
	}
	fmt.Fprintln(w)

	// Filters
	if len(r.Rejections) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Filtered Out\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		for _, kv := range sortedCounts(r.Rejections) {
			fmt.Fprintf(w, "  %-22s : %d\n", kv.key, kv.count)
		}
		fmt.Fprintln(w)
	}

	// ── TOP 5 HIGHEST RATED ──────────────────────────────────────────────
	fmt.Fprintf(w, "\033[1;33m  Top 5 Highest Rated Places\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopRated) == 0 {
		fmt.Fprintf(w, "  No rated listings found\n")
	} else {
		for i, l := range r.TopRated {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%.1f ★\033[0m\n",
				i+1, truncate(l.Name, 38), l.Rating.Value)
		}
	}
	fmt.Fprintln(w)

	// Sheet categories
	fmt.Fprintf(w, "\033[1;33m  Exported by Sheet Category\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.BySheetTab) == 0 {
		fmt.Fprintf(w, "  Nothing exported\n")
	} else {
		for _, kv := range sortedCounts(r.BySheetTab) {
			bar := strings.Repeat("█", kv.count)
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(kv.key, 28), bar, kv.count)
		}
	}

	if r.Reconcile != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "\033[1;33m  Sheet (%s)\033[0m\n", r.Reconcile.Mode)
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  Inserted : %d\n", r.Reconcile.Inserted)
		fmt.Fprintf(w, "  Updated  : %d\n", r.Reconcile.Updated)
		fmt.Fprintf(w, "  Rows     : %d\n", r.Reconcile.TotalRows)
	}
	if r.SnapshotPath != "" {
		fmt.Fprintf(w, "\n  Batch saved to %s (rerun with --resume)\n", r.SnapshotPath)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

type keyCount struct {
	key   string
	count int
}

// sortedCounts orders by count descending, then key.
func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, v := range m {
		if k != "" {
			out = append(out, keyCount{k, v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
