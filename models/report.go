package models

// RunSummary holds the computed statistics of one run.
type RunSummary struct {
	Query        string
	Region       string
	Acquired     int
	Dropped      int
	Aborted      bool
	AbortReason  string
	Enrichment   map[EnrichmentStatus]int
	Rejections   map[string]int
	Exported     int
	Reconcile    *ReconcileResult
	SnapshotPath string

	AverageRating float64
	TopRated      []*ListingRecord
	ByCategory    map[string]int
	BySheetTab    map[string]int
}
