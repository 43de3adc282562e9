package models

// DefaultMinRating applies when --rating is not given.
const DefaultMinRating = 4.0

// DefaultOutputPath is where a run leaves its filtered results.
const DefaultOutputPath = ".tmp/scraped_places.json"

// SearchRequest describes one run. It is not modified once the run starts.
type SearchRequest struct {
	Query          string   `validate:"required_without=ResumeFrom"`
	Region         string   `validate:"required_without=ResumeFrom"`
	MaxResults     int      `validate:"gt=0,lte=500"`
	MinRating      *float64 `validate:"omitempty,gte=1,lte=5"`
	MinReviews     int      `validate:"gte=0"`
	ScrapeWebsites bool
	Headless       bool
	Append         bool
	OnlyNoWebsite  bool
	OnlyHasSocials bool
	FlushPartial   bool
	DryRun         bool
	ResumeFrom     string
	OutputPath     string
}

// SearchTerm is what gets typed into the provider's search box.
func (r *SearchRequest) SearchTerm() string {
	if r.Region == "" {
		return r.Query
	}
	return r.Query + " near " + r.Region
}
