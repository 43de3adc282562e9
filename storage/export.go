package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"maps-scraper/models"
)

type exportSocial struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
	URL      string `json:"url"`
}

type exportPlace struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Address       string         `json:"address,omitempty"`
	Category      string         `json:"category,omitempty"`
	Rating        *float64       `json:"rating"`
	ReviewCount   *int           `json:"reviews"`
	Phone         string         `json:"phone,omitempty"`
	AltPhones     []string       `json:"alt_phones,omitempty"`
	Website       string         `json:"website,omitempty"`
	Emails        []string       `json:"emails,omitempty"`
	Socials       []exportSocial `json:"socials,omitempty"`
	HasWebsite    bool           `json:"has_website"`
	SheetCategory string         `json:"sheet_category"`
	Enrichment    string         `json:"enrichment"`
	MapsURL       string         `json:"maps_url"`
	Region        string         `json:"region,omitempty"`
	ScrapedAt     time.Time      `json:"scraped_at"`
}

// WriteExport saves the batch to path, replacing any previous file. A .csv
// path gets the sheet columns; anything else gets an indented JSON array.
func WriteExport(path string, batch *models.ExportBatch, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("export: create output dir: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return writeCSVFile(path, Project(batch, now))
	}

	places := make([]exportPlace, 0)
	if batch != nil {
		for _, r := range batch.Records {
			places = append(places, toExport(r))
		}
	}

	data, err := json.MarshalIndent(places, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("export: write %q: %w", path, err)
	}
	return nil
}

func toExport(r *models.ListingRecord) exportPlace {
	p := exportPlace{
		ID:            r.ID,
		Name:          r.Name,
		Address:       r.Address,
		Category:      r.Category,
		Phone:         r.Phone,
		AltPhones:     r.AltPhones,
		Website:       r.Website,
		Emails:        r.Emails,
		HasWebsite:    r.HasWebsite(),
		SheetCategory: r.SheetCategory(),
		Enrichment:    r.Enrichment.String(),
		MapsURL:       r.SourceMapURL,
		Region:        r.Region,
		ScrapedAt:     r.ScrapedAt.UTC(),
	}
	if r.Rating.Present {
		v := r.Rating.Value
		p.Rating = &v
	}
	if r.ReviewCount.Present {
		v := r.ReviewCount.Value
		p.ReviewCount = &v
	}
	for _, s := range r.Socials {
		p.Socials = append(p.Socials, exportSocial{Platform: s.Platform, Handle: s.Handle, URL: s.URL()})
	}
	return p
}
