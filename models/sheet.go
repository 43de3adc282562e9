package models

import "time"

// SheetRow is the persisted projection of a ListingRecord. Every value is
// already rendered as the destination stores it; empty means absent.
type SheetRow struct {
	ID            string
	Name          string
	Address       string
	Category      string
	Rating        string
	ReviewCount   string
	Phone         string
	Website       string
	Emails        string
	Socials       string
	HasWebsite    string
	SheetCategory string
	Enrichment    string
	SourceMapURL  string
	Region        string
	LastSeenAt    time.Time
}

// ReconcileMode selects how a batch is merged into the destination.
type ReconcileMode int

const (
	ModeOverwrite ReconcileMode = iota
	ModeAppend
)

func (m ReconcileMode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "overwrite"
}

// ReconcileResult reports what a reconcile did to the destination.
type ReconcileResult struct {
	Mode      ReconcileMode
	Inserted  int
	Updated   int
	TotalRows int
}
