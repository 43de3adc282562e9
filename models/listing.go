package models

import (
	"sort"
	"strings"
	"time"
)

// RawListing holds the unprocessed strings read from one listing's summary
// card and, when opened, its detail panel.
type RawListing struct {
	Href        string
	Name        string
	Rating      string
	Reviews     string
	Category    string
	Address     string
	Phone       string
	Website     string
	Region      string
	DetailRead  bool
	ScrapedAt   time.Time
	CardWebsite bool
}

// EnrichmentStatus tracks what the contact enricher did with a record.
type EnrichmentStatus int

const (
	EnrichmentNotAttempted EnrichmentStatus = iota
	EnrichmentSuccess
	EnrichmentFailed
	EnrichmentSkipped
)

func (s EnrichmentStatus) String() string {
	switch s {
	case EnrichmentSuccess:
		return "success"
	case EnrichmentFailed:
		return "failed"
	case EnrichmentSkipped:
		return "skipped"
	default:
		return "not_attempted"
	}
}

// ParseEnrichmentStatus is the inverse of String. Unknown values map to NotAttempted.
func ParseEnrichmentStatus(s string) EnrichmentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success":
		return EnrichmentSuccess
	case "failed":
		return EnrichmentFailed
	case "skipped":
		return EnrichmentSkipped
	default:
		return EnrichmentNotAttempted
	}
}

// Field is a best-effort extracted value. Reason explains an absent value.
type Field[T any] struct {
	Value   T
	Present bool
	Reason  string
}

// Present wraps a successfully read value.
func Present[T any](v T) Field[T] { return Field[T]{Value: v, Present: true} }

// Absent records why a value could not be read.
func Absent[T any](reason string) Field[T] { return Field[T]{Reason: reason} }

// Social is one social-media presence of a listing.
type Social struct {
	Platform string
	Handle   string
}

// URL renders the canonical profile link for the handle.
func (s Social) URL() string {
	switch s.Platform {
	case "instagram":
		return "https://instagram.com/" + s.Handle
	case "facebook":
		return "https://facebook.com/" + s.Handle
	case "twitter":
		return "https://x.com/" + s.Handle
	case "whatsapp":
		return "https://wa.me/" + s.Handle
	case "telegram":
		return "https://t.me/" + s.Handle
	case "messenger":
		return "https://m.me/" + s.Handle
	case "line":
		return "https://line.me/ti/p/" + s.Handle
	default:
		return s.Handle
	}
}

// MergeSocials returns the sorted set union of a and b.
func MergeSocials(a, b []Social) []Social {
	seen := make(map[Social]struct{}, len(a)+len(b))
	out := make([]Social, 0, len(a)+len(b))
	for _, list := range [][]Social{a, b} {
		for _, s := range list {
			s.Platform = strings.ToLower(strings.TrimSpace(s.Platform))
			s.Handle = strings.TrimSpace(s.Handle)
			if s.Platform == "" || s.Handle == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}

// Sheet categories, as used by the destination's "Sheet Category" column.
const (
	CategoryWithWebsites    = "with websites"
	CategoryWithSocials     = "with socials"
	CategoryWithoutWebsites = "without websites"
)

// ListingRecord is one structured place.
type ListingRecord struct {
	ID           string
	Name         string
	Address      string
	Category     string
	Rating       Field[float64]
	ReviewCount  Field[int]
	Phone        string
	AltPhones    []string
	Website      string
	Emails       []string
	Socials      []Social
	SourceMapURL string
	Region       string
	Enrichment   EnrichmentStatus
	ScrapedAt    time.Time
}

// HasWebsite is derived; it is never stored separately.
func (r *ListingRecord) HasWebsite() bool { return r.Website != "" }

// SheetCategory buckets the record the way the destination groups places.
func (r *ListingRecord) SheetCategory() string {
	switch {
	case r.HasWebsite():
		return CategoryWithWebsites
	case len(r.Socials) > 0:
		return CategoryWithSocials
	default:
		return CategoryWithoutWebsites
	}
}

// FilterOutcome is the pass/fail verdict for one record.
type FilterOutcome struct {
	RecordID string
	Name     string
	Passed   bool
	Reason   string
}

// ExportBatch is the filtered set handed to the reconciler in one piece.
type ExportBatch struct {
	Records   []*ListingRecord
	CreatedAt time.Time
}

// NewExportBatch keeps the first record for each ID.
func NewExportBatch(records []*ListingRecord, createdAt time.Time) *ExportBatch {
	seen := make(map[string]struct{}, len(records))
	out := make([]*ListingRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return &ExportBatch{Records: out, CreatedAt: createdAt}
}

// Len returns the number of records in the batch.
func (b *ExportBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}
