package maps

import (
	"context"
	"strings"
	"time"

	perr "maps-scraper/errors"
	"maps-scraper/models"
	"maps-scraper/services"
	"maps-scraper/utils"
)

// Page is the part of the browser session the extractor and feed drive.
type Page interface {
	Evaluate(ctx context.Context, script string, out any) error
}

type cardJSON struct {
	Found    bool   `json:"found"`
	Name     string `json:"name"`
	Rating   string `json:"rating"`
	Reviews  string `json:"reviews"`
	Category string `json:"category"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Website  string `json:"website"`
}

type detailJSON struct {
	Ready    bool   `json:"ready"`
	Href     string `json:"href"`
	Name     string `json:"name"`
	Rating   string `json:"rating"`
	Reviews  string `json:"reviews"`
	Category string `json:"category"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Website  string `json:"website"`
}

// Extractor reads one listing from its summary card and, when the card is
// incomplete, from its detail panel.
type Extractor struct {
	page          Page
	logger        *utils.Logger
	detailTimeout time.Duration
	pollInterval  time.Duration
}

// NewExtractor creates an Extractor on page.
func NewExtractor(page Page, detailTimeout, pollInterval time.Duration, logger *utils.Logger) *Extractor {
	if detailTimeout <= 0 {
		detailTimeout = 6 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 300 * time.Millisecond
	}
	return &Extractor{page: page, logger: logger, detailTimeout: detailTimeout, pollInterval: pollInterval}
}

// Extract reads the listing behind h. Only a failure to read the card at all
// is an error; a detail panel that does not open leaves the card data as is.
func (e *Extractor) Extract(ctx context.Context, h Handle, region string) (*models.RawListing, error) {
	var card cardJSON
	if err := e.page.Evaluate(ctx, cardScript(h.Href), &card); err != nil {
		return nil, err
	}
	if !card.Found {
		return nil, perr.Newf(perr.KindExtractionField, "card for %s no longer rendered", h.Href)
	}

	raw := &models.RawListing{
		Href:        h.Href,
		Name:        firstNonEmpty(card.Name, h.Label),
		Rating:      card.Rating,
		Reviews:     card.Reviews,
		Category:    card.Category,
		Address:     card.Address,
		Phone:       card.Phone,
		Website:     card.Website,
		CardWebsite: card.Website != "",
		Region:      region,
		ScrapedAt:   time.Now(),
	}

	if needsDetail(raw) {
		detail, err := e.readDetail(ctx, h, raw.Name)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			e.logger.Debug("[extractor] %s: detail panel unavailable (%v), keeping card data", raw.Name, err)
		default:
			mergeDetail(raw, detail)
		}
	}
	return raw, nil
}

// ExtractPlacePage reads a single place page (search that resolved to one
// result) as a listing.
func (e *Extractor) ExtractPlacePage(ctx context.Context, href, region string) (*models.RawListing, error) {
	detail, err := e.pollDetail(ctx, "", "")
	if err != nil {
		return nil, err
	}
	raw := &models.RawListing{Href: firstNonEmpty(detail.Href, href), Region: region, ScrapedAt: time.Now()}
	mergeDetail(raw, detail)
	return raw, nil
}

// needsDetail reports whether the card leaves something the detail panel
// can answer: address, category, rating, or whether there is a website.
func needsDetail(r *models.RawListing) bool {
	return strings.TrimSpace(r.Address) == "" ||
		strings.TrimSpace(r.Category) == "" ||
		strings.TrimSpace(r.Rating) == "" ||
		!r.CardWebsite
}

func (e *Extractor) readDetail(ctx context.Context, h Handle, name string) (detailJSON, error) {
	var clicked bool
	if err := e.page.Evaluate(ctx, clickScript(h.Href), &clicked); err != nil {
		return detailJSON{}, err
	}
	if !clicked {
		return detailJSON{}, perr.Newf(perr.KindExtractionField, "could not open %s", h.Href)
	}
	return e.pollDetail(ctx, h.Href, name)
}

// pollDetail waits for the panel of the listing at href to render. The
// panel's own URL must carry the same place token as href; when href has
// none, its title must equal name. With neither, any ready panel is taken.
func (e *Extractor) pollDetail(ctx context.Context, href, name string) (detailJSON, error) {
	wantID := services.NativePlaceID(href)
	name = strings.TrimSpace(name)
	deadline := time.Now().Add(e.detailTimeout)
	for {
		var d detailJSON
		if err := e.page.Evaluate(ctx, detailScript, &d); err != nil {
			return detailJSON{}, err
		}
		if d.Ready && panelMatches(d, wantID, name) {
			return d, nil
		}
		if !time.Now().Before(deadline) {
			return detailJSON{}, perr.Newf(perr.KindExtractionField, "detail panel not ready after %v", e.detailTimeout)
		}
		if err := sleepCtx(ctx, e.pollInterval); err != nil {
			return detailJSON{}, err
		}
	}
}

func panelMatches(d detailJSON, wantID, name string) bool {
	switch {
	case wantID != "":
		return services.NativePlaceID(d.Href) == wantID
	case name != "":
		return strings.EqualFold(strings.TrimSpace(d.Name), name)
	default:
		return true
	}
}

// mergeDetail lets non-empty detail values override card values. Once the
// panel has been read, a missing website means the place has none.
func mergeDetail(r *models.RawListing, d detailJSON) {
	r.DetailRead = true
	override := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	override(&r.Name, d.Name)
	override(&r.Rating, d.Rating)
	override(&r.Reviews, d.Reviews)
	override(&r.Category, d.Category)
	override(&r.Address, d.Address)
	override(&r.Phone, d.Phone)
	override(&r.Website, d.Website)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
