package maps

import (
	"context"
	"net/url"
	"strings"
	"time"

	perr "maps-scraper/errors"
	"maps-scraper/models"
	"maps-scraper/services"
	"maps-scraper/utils"
)

const searchBaseURL = "https://www.google.com/maps/search/"

// Browser is the session surface the scraper needs.
type Browser interface {
	Page
	Navigate(ctx context.Context, url string) error
	DetectBlocked(ctx context.Context) (bool, error)
}

// Acquisition is what one search produced. On abort it holds the records
// read before the abort.
type Acquisition struct {
	Records []*models.ListingRecord
	Dropped int
}

// ScraperOptions tunes waits inside a search.
type ScraperOptions struct {
	FeedTimeout   time.Duration
	DetailTimeout time.Duration
	GrowthTimeout time.Duration
	PollInterval  time.Duration
}

// Scraper runs one search on a browser session and turns the results into
// ListingRecords.
type Scraper struct {
	browser Browser
	cleaner *services.Cleaner
	opts    ScraperOptions
	logger  *utils.Logger
}

// New creates a ready-to-use Scraper.
func New(browser Browser, cleaner *services.Cleaner, opts ScraperOptions, logger *utils.Logger) *Scraper {
	if opts.FeedTimeout <= 0 {
		opts.FeedTimeout = 20 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Scraper{browser: browser, cleaner: cleaner, opts: opts, logger: logger}
}

// BuildSearchURL renders the search URL for "<query> near <region>".
func BuildSearchURL(query, region string) string {
	term := strings.TrimSpace(query)
	if r := strings.TrimSpace(region); r != "" {
		term += " near " + r
	}
	return searchBaseURL + url.PathEscape(term) + "?hl=en"
}

// Acquire runs the search in req. A block page or a cancelled ctx ends the
// search early; the records read so far are returned with the error.
func (s *Scraper) Acquire(ctx context.Context, req *models.SearchRequest) (*Acquisition, error) {
	searchURL := BuildSearchURL(req.Query, req.Region)
	s.logger.Info("[maps] Searching %q (max %d results)", req.SearchTerm(), req.MaxResults)

	acq := &Acquisition{}
	if err := s.browser.Navigate(ctx, searchURL); err != nil {
		return acq, abortError(ctx, err)
	}

	var dismissed bool
	if err := s.browser.Evaluate(ctx, consentScript, &dismissed); err == nil && dismissed {
		s.logger.Info("[maps] Dismissed consent dialog")
	}

	if err := s.checkBlocked(ctx); err != nil {
		return acq, err
	}

	state, err := s.waitForResults(ctx)
	if err != nil {
		return acq, abortError(ctx, err)
	}

	extractor := NewExtractor(s.browser, s.opts.DetailTimeout, s.opts.PollInterval, s.logger)
	switch state {
	case "place":
		s.logger.Info("[maps] Search resolved to a single place")
		raw, err := extractor.ExtractPlacePage(ctx, searchURL, req.Region)
		if err != nil {
			return acq, abortError(ctx, err)
		}
		s.keep(acq, raw, utils.NewKeySet())
		return acq, nil
	case "feed":
	case "empty":
		s.logger.Warn("[maps] No results for %q", req.SearchTerm())
		return acq, nil
	default:
		if err := s.checkBlocked(ctx); err != nil {
			return acq, err
		}
		s.logger.Error("[maps] Neither a results feed nor a place page rendered within %v", s.opts.FeedTimeout)
		return acq, perr.Navigationf("no results page for %q after %v", req.SearchTerm(), s.opts.FeedTimeout)
	}

	pager := NewPaginator(&domFeed{page: s.browser}, PaginatorOptions{
		MaxResults:    req.MaxResults,
		GrowthTimeout: s.opts.GrowthTimeout,
	}, s.logger)

	err = s.collect(ctx, pager, extractor, req.Region, acq)
	s.logger.Info("[maps] Acquired %d listings (%d dropped)", len(acq.Records), acq.Dropped)
	return acq, err
}

// collect pulls handles until the paginator ends, checking for a block page
// after every listing.
func (s *Scraper) collect(ctx context.Context, pager *Paginator, ex *Extractor, region string, acq *Acquisition) error {
	seen := utils.NewKeySet()
	for {
		h, ok, err := pager.Next(ctx)
		if err != nil {
			return abortError(ctx, err)
		}
		if !ok {
			return nil
		}

		raw, err := ex.Extract(ctx, h, region)
		if err != nil {
			if ctx.Err() != nil {
				return abortError(ctx, err)
			}
			acq.Dropped++
			s.logger.Warn("[maps] Listing %d (%s) skipped: %v", h.Index, h.Label, err)
		} else {
			s.keep(acq, raw, seen)
		}

		if err := s.checkBlocked(ctx); err != nil {
			return err
		}
	}
}

func (s *Scraper) keep(acq *Acquisition, raw *models.RawListing, seen *utils.KeySet) {
	rec, err := s.cleaner.Admit(raw, seen)
	if err != nil {
		acq.Dropped++
		return
	}
	if rec == nil {
		return
	}
	acq.Records = append(acq.Records, rec)
	s.logger.Debug("[maps] [%d] %s", len(acq.Records), rec.Name)
}

func (s *Scraper) checkBlocked(ctx context.Context) error {
	blocked, err := s.browser.DetectBlocked(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return abortError(ctx, err)
		}
		s.logger.Warn("[maps] Block check failed: %v", err)
		return nil
	}
	if blocked {
		return perr.Blockedf("provider served a block or CAPTCHA page")
	}
	return nil
}

func (s *Scraper) waitForResults(ctx context.Context) (string, error) {
	deadline := time.Now().Add(s.opts.FeedTimeout)
	for {
		var state string
		if err := s.browser.Evaluate(ctx, pageStateScript, &state); err != nil {
			return "", err
		}
		if state != "" || !time.Now().Before(deadline) {
			return state, nil
		}
		if err := sleepCtx(ctx, s.opts.PollInterval); err != nil {
			return "", err
		}
	}
}

// abortError maps an acquisition failure to its final kind: cancellation
// wins, typed errors keep their kind, anything else aborts the acquisition.
func abortError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return perr.Wrap(ctx.Err(), perr.KindCanceled, "acquisition interrupted")
	}
	if _, ok := perr.As(err); ok {
		return err
	}
	return perr.Wrap(err, perr.KindAcquisition, "acquisition failed")
}
