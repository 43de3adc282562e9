package storage

import (
	"strconv"
	"strings"
	"time"

	"maps-scraper/models"
)

// Sheet column headers, in write order.
const (
	ColID            = "ID"
	ColName          = "Name"
	ColAddress       = "Address"
	ColCategory      = "Category"
	ColRating        = "Rating"
	ColReviewCount   = "Review Count"
	ColPhone         = "Phone"
	ColWebsite       = "Website"
	ColEmails        = "Emails"
	ColSocials       = "Socials"
	ColHasWebsite    = "Has Website"
	ColSheetCategory = "Sheet Category"
	ColEnrichment    = "Enrichment"
	ColSourceURL     = "Maps URL"
	ColRegion        = "Region"
	ColLastSeen      = "Last Seen"
)

// Columns is the header row.
var Columns = []string{
	ColID, ColName, ColAddress, ColCategory, ColRating, ColReviewCount, ColPhone,
	ColWebsite, ColEmails, ColSocials, ColHasWebsite, ColSheetCategory,
	ColEnrichment, ColSourceURL, ColRegion, ColLastSeen,
}

// mutableColumns are refreshed in place when an existing row is matched.
var mutableColumns = []string{
	ColRating, ColReviewCount, ColPhone, ColWebsite, ColEmails, ColSocials,
	ColHasWebsite, ColSheetCategory, ColEnrichment, ColLastSeen,
}

const listSep = ", "

// Project renders a batch as sheet rows, in batch order.
func Project(batch *models.ExportBatch, now time.Time) []models.SheetRow {
	if batch == nil {
		return nil
	}
	rows := make([]models.SheetRow, 0, len(batch.Records))
	for _, r := range batch.Records {
		rows = append(rows, ProjectRecord(r, now))
	}
	return rows
}

// ProjectRecord renders one record. Absent values become empty cells.
func ProjectRecord(r *models.ListingRecord, now time.Time) models.SheetRow {
	row := models.SheetRow{
		ID:            r.ID,
		Name:          r.Name,
		Address:       r.Address,
		Category:      r.Category,
		Website:       r.Website,
		Emails:        strings.Join(r.Emails, listSep),
		HasWebsite:    boolCell(r.HasWebsite()),
		SheetCategory: r.SheetCategory(),
		Enrichment:    r.Enrichment.String(),
		SourceMapURL:  r.SourceMapURL,
		Region:        r.Region,
		LastSeenAt:    now.UTC(),
	}
	if r.Rating.Present {
		row.Rating = strconv.FormatFloat(r.Rating.Value, 'f', 1, 64)
	}
	if r.ReviewCount.Present {
		row.ReviewCount = strconv.Itoa(r.ReviewCount.Value)
	}

	phones := make([]string, 0, 1+len(r.AltPhones))
	if r.Phone != "" {
		phones = append(phones, r.Phone)
	}
	phones = append(phones, r.AltPhones...)
	row.Phone = strings.Join(phones, listSep)

	socials := make([]string, 0, len(r.Socials))
	for _, s := range r.Socials {
		socials = append(socials, s.URL())
	}
	row.Socials = strings.Join(socials, listSep)
	return row
}

// ToCells renders a row in Columns order.
func ToCells(r models.SheetRow) []string {
	lastSeen := ""
	if !r.LastSeenAt.IsZero() {
		lastSeen = r.LastSeenAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.ID, r.Name, r.Address, r.Category, r.Rating, r.ReviewCount, r.Phone,
		r.Website, r.Emails, r.Socials, r.HasWebsite, r.SheetCategory,
		r.Enrichment, r.SourceMapURL, r.Region, lastSeen,
	}
}

// FromCells reads a row using header to locate columns. Unknown or missing
// columns are ignored.
func FromCells(header, cells []string) models.SheetRow {
	get := func(col string) string {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), col) && i < len(cells) {
				return strings.TrimSpace(cells[i])
			}
		}
		return ""
	}
	row := models.SheetRow{
		ID:            get(ColID),
		Name:          get(ColName),
		Address:       get(ColAddress),
		Category:      get(ColCategory),
		Rating:        get(ColRating),
		ReviewCount:   get(ColReviewCount),
		Phone:         get(ColPhone),
		Website:       get(ColWebsite),
		Emails:        get(ColEmails),
		Socials:       get(ColSocials),
		HasWebsite:    get(ColHasWebsite),
		SheetCategory: get(ColSheetCategory),
		Enrichment:    get(ColEnrichment),
		SourceMapURL:  get(ColSourceURL),
		Region:        get(ColRegion),
	}
	if ts, err := time.Parse(time.RFC3339, get(ColLastSeen)); err == nil {
		row.LastSeenAt = ts
	}
	return row
}

// cell returns the value of a named column.
func cell(r *models.SheetRow, col string) *string {
	switch col {
	case ColID:
		return &r.ID
	case ColName:
		return &r.Name
	case ColAddress:
		return &r.Address
	case ColCategory:
		return &r.Category
	case ColRating:
		return &r.Rating
	case ColReviewCount:
		return &r.ReviewCount
	case ColPhone:
		return &r.Phone
	case ColWebsite:
		return &r.Website
	case ColEmails:
		return &r.Emails
	case ColSocials:
		return &r.Socials
	case ColHasWebsite:
		return &r.HasWebsite
	case ColSheetCategory:
		return &r.SheetCategory
	case ColEnrichment:
		return &r.Enrichment
	case ColSourceURL:
		return &r.SourceMapURL
	case ColRegion:
		return &r.Region
	}
	return nil
}

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
