package services

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	perr "maps-scraper/errors"
	"maps-scraper/models"
	"maps-scraper/utils"
)

var (
	// decimalRegexp captures the first number, with either '.' or ',' as decimal mark
	decimalRegexp = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	// countRegexp captures a count with optional group separators and K/M suffix
	countRegexp = regexp.MustCompile(`\d[\d.,\s\x{00a0}\x{202f}']*(?:\s?[kKmM]\b)?`)
	// placeIDRegexp captures the provider-native place token of a maps URL
	placeIDRegexp = regexp.MustCompile(`!1s(0x[0-9a-fA-F]+:0x[0-9a-fA-F]+|ChIJ[\w-]+)`)
	// cidRegexp captures the numeric place id used by ?cid= links
	cidRegexp = regexp.MustCompile(`[?&]cid=(\d+)`)

	// listingNamespace scopes the deterministic listing IDs
	listingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://www.google.com/maps/place"))
)

// Cleaner transforms RawListings into ListingRecords. Every field is parsed
// on its own; a field that cannot be read is left absent.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Normalise converts one raw listing. It fails only when the listing has no
// readable name or no source URL; such listings cannot enter a batch.
func (c *Cleaner) Normalise(r *models.RawListing) (*models.ListingRecord, error) {
	name := normaliseText(r.Name)
	if name == "" {
		return nil, perr.Fieldf("name", "listing %q has no readable name", r.Href)
	}
	href := strings.TrimSpace(r.Href)
	if href == "" {
		return nil, perr.Fieldf("source_url", "listing %q has no source URL", name)
	}

	address := normaliseText(strings.TrimPrefix(strings.TrimSpace(r.Address), "Address: "))
	website := NormaliseWebsiteURL(r.Website)

	rec := &models.ListingRecord{
		Name:         name,
		Address:      address,
		Category:     normaliseText(r.Category),
		Rating:       ParseRating(r.Rating),
		ReviewCount:  ParseReviewCount(r.Reviews),
		Phone:        NormalisePhone(r.Phone),
		SourceMapURL: href,
		Region:       normaliseText(r.Region),
		Enrichment:   models.EnrichmentNotAttempted,
		ScrapedAt:    r.ScrapedAt,
	}
	rec.ID = ListingID(href, name, address)

	if website != "" {
		rec.Website = website
		if social, ok := SocialFromURL(website); ok {
			rec.Socials = models.MergeSocials(rec.Socials, []models.Social{social})
		}
	}

	if !rec.Rating.Present && c.logger != nil {
		c.logger.Debug("[cleaner] %s: rating absent (%s)", name, rec.Rating.Reason)
	}
	return rec, nil
}

// Admit normalises raw and records its ID in seen. It returns a nil record
// with a nil error for a listing already admitted, and an error for one
// that cannot be kept.
func (c *Cleaner) Admit(raw *models.RawListing, seen *utils.KeySet) (*models.ListingRecord, error) {
	rec, err := c.Normalise(raw)
	if err != nil {
		c.logger.Warn("[cleaner] Dropping listing: %v", err)
		return nil, err
	}
	if !seen.Add(rec.ID) {
		c.logger.Debug("[cleaner] Duplicate listing skipped: %s", rec.Name)
		return nil, nil
	}
	return rec, nil
}

// ListingID derives the stable key of a place: the provider-native place
// identifier when the URL carries one, otherwise the normalised name and
// address.
func ListingID(href, name, address string) string {
	if native := NativePlaceID(href); native != "" {
		return uuid.NewSHA1(listingNamespace, []byte("place:"+native)).String()
	}
	key := strings.ToLower(normaliseText(name)) + "|" + strings.ToLower(normaliseText(address))
	return uuid.NewSHA1(listingNamespace, []byte("name:"+key)).String()
}

// NativePlaceID extracts the provider's own place identifier from a maps URL.
func NativePlaceID(href string) string {
	decoded := href
	if u, err := url.QueryUnescape(href); err == nil {
		decoded = u
	}
	if m := placeIDRegexp.FindStringSubmatch(decoded); len(m) == 2 {
		return strings.ToLower(m[1])
	}
	if m := cidRegexp.FindStringSubmatch(decoded); len(m) == 2 {
		return "cid:" + m[1]
	}
	return ""
}

// ParseRating reads a 1.0–5.0 rating, accepting either decimal mark
// ("4.5 stars", "4,5 Sterne").
func ParseRating(raw string) models.Field[float64] {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Absent[float64]("not shown")
	}
	match := decimalRegexp.FindString(raw)
	if match == "" {
		return models.Absent[float64]("no number in " + strconv.Quote(raw))
	}
	val, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil {
		return models.Absent[float64]("unparseable " + strconv.Quote(match))
	}
	if val < 1 || val > 5 {
		return models.Absent[float64]("out of range " + strconv.Quote(match))
	}
	return models.Present(val)
}

// ParseReviewCount reads review counts such as "(1,234)", "1.234", "1 234"
// or "1.2K". Separators are treated as grouping unless a K/M suffix is used.
func ParseReviewCount(raw string) models.Field[int] {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Absent[int]("not shown")
	}
	match := strings.TrimSpace(countRegexp.FindString(raw))
	if match == "" {
		return models.Absent[int]("no number in " + strconv.Quote(raw))
	}

	last := match[len(match)-1]
	if last == 'k' || last == 'K' || last == 'm' || last == 'M' {
		mult := 1000.0
		if last == 'm' || last == 'M' {
			mult = 1000000.0
		}
		num := strings.TrimSpace(match[:len(match)-1])
		num = strings.Replace(num, ",", ".", 1)
		val, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return models.Absent[int]("unparseable " + strconv.Quote(match))
		}
		return models.Present(int(val*mult + 0.5))
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, match)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return models.Absent[int]("unparseable " + strconv.Quote(match))
	}
	return models.Present(n)
}

// NormaliseWebsiteURL unwraps provider redirect links and trims the value.
func NormaliseWebsiteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "google.") && strings.Contains(raw, "/url?") {
		if parsed, err := url.Parse(raw); err == nil {
			if target := parsed.Query().Get("q"); target != "" {
				raw = target
			} else if target := parsed.Query().Get("url"); target != "" {
				raw = target
			}
		}
	}
	return raw
}

// NormalisePhone strips "tel:" and "Phone:" prefixes.
func NormalisePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "tel:"):
		raw = raw[4:]
	case strings.HasPrefix(lower, "phone:"):
		raw = raw[6:]
	}
	return normaliseText(raw)
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
