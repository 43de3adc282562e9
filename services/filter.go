package services

import (
	"fmt"
	"time"

	"maps-scraper/models"
	"maps-scraper/utils"
)

// Predicate rejects a record by returning a non-empty reason.
type Predicate struct {
	Name  string
	Check func(r *models.ListingRecord) string
}

// FilterPipeline applies predicates in a fixed order; a record passes only
// when every predicate accepts it.
type FilterPipeline struct {
	predicates []Predicate
	logger     *utils.Logger
}

// NewFilterPipeline builds the pipeline for a request: minimum rating, then
// only-no-website, then only-has-socials, then minimum reviews.
func NewFilterPipeline(req *models.SearchRequest, logger *utils.Logger) *FilterPipeline {
	var preds []Predicate

	if req.MinRating != nil {
		min := *req.MinRating
		preds = append(preds, Predicate{Name: "min_rating", Check: func(r *models.ListingRecord) string {
			if !r.Rating.Present {
				return "rating absent"
			}
			if r.Rating.Value < min {
				return fmt.Sprintf("rating %.1f below %.1f", r.Rating.Value, min)
			}
			return ""
		}})
	}
	if req.OnlyNoWebsite {
		preds = append(preds, Predicate{Name: "only_no_website", Check: func(r *models.ListingRecord) string {
			if r.HasWebsite() {
				return "has website"
			}
			return ""
		}})
	}
	if req.OnlyHasSocials {
		preds = append(preds, Predicate{Name: "only_has_socials", Check: func(r *models.ListingRecord) string {
			if len(r.Socials) == 0 {
				return "no socials"
			}
			return ""
		}})
	}
	if req.MinReviews > 0 {
		min := req.MinReviews
		preds = append(preds, Predicate{Name: "min_reviews", Check: func(r *models.ListingRecord) string {
			if !r.ReviewCount.Present {
				return "review count absent"
			}
			if r.ReviewCount.Value < min {
				return fmt.Sprintf("%d reviews below %d", r.ReviewCount.Value, min)
			}
			return ""
		}})
	}

	return &FilterPipeline{predicates: preds, logger: logger}
}

// Predicates returns the active predicate names in evaluation order.
func (f *FilterPipeline) Predicates() []string {
	names := make([]string, len(f.predicates))
	for i, p := range f.predicates {
		names[i] = p.Name
	}
	return names
}

// Apply evaluates every record and returns the passing ones as a batch,
// together with one outcome per input record. Only the first rejection
// reason is recorded.
func (f *FilterPipeline) Apply(records []*models.ListingRecord, now time.Time) (*models.ExportBatch, []models.FilterOutcome) {
	outcomes := make([]models.FilterOutcome, 0, len(records))
	passed := make([]*models.ListingRecord, 0, len(records))

	for _, r := range records {
		out := models.FilterOutcome{RecordID: r.ID, Name: r.Name, Passed: true}
		for _, p := range f.predicates {
			if reason := p.Check(r); reason != "" {
				out.Passed = false
				out.Reason = p.Name + ": " + reason
				break
			}
		}
		outcomes = append(outcomes, out)
		if out.Passed {
			passed = append(passed, r)
		}
	}

	batch := models.NewExportBatch(passed, now)
	if f.logger != nil {
		f.logger.Info("[filter] %d/%d records passed %v", batch.Len(), len(records), f.Predicates())
	}
	return batch, outcomes
}

// RejectionCounts tallies rejected outcomes by predicate name.
func RejectionCounts(outcomes []models.FilterOutcome) map[string]int {
	counts := make(map[string]int)
	for _, o := range outcomes {
		if o.Passed {
			continue
		}
		name := o.Reason
		for i := 0; i < len(name); i++ {
			if name[i] == ':' {
				name = name[:i]
				break
			}
		}
		counts[name]++
	}
	return counts
}
