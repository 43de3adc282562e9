package services

import (
	"context"
	"time"

	perr "maps-scraper/errors"
	"maps-scraper/models"
	"maps-scraper/utils"
)

// EnricherOptions configures an Enricher.
type EnricherOptions struct {
	MaxConcurrency int
	RateLimitMs    int
	Timeout        time.Duration
	// ContactPages is how many same-site contact/about pages are read when
	// the home page has no email.
	ContactPages int
}

// Enricher visits listing websites and merges the contacts found there
// into the records.
type Enricher struct {
	fetcher PageFetcher
	mx      MXChecker
	opts    EnricherOptions
	logger  *utils.Logger
}

// NewEnricher creates an Enricher. mx may be nil to skip MX verification.
func NewEnricher(fetcher PageFetcher, mx MXChecker, opts EnricherOptions, logger *utils.Logger) *Enricher {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Enricher{fetcher: fetcher, mx: mx, opts: opts, logger: logger}
}

type enrichResult struct {
	index    int
	contacts ContactSet
	err      error
}

// Enrich updates records in place. Records without a website keep
// NotAttempted. Platform pages are Skipped. When scrape is false every
// eligible record is Skipped without any network access. A site that fails
// or times out marks its record Failed and leaves its fields untouched.
// Enrich only returns an error when ctx is cancelled.
func (e *Enricher) Enrich(ctx context.Context, records []*models.ListingRecord, scrape bool) error {
	var eligible []int
	for i, rec := range records {
		switch {
		case !rec.HasWebsite():
			rec.Enrichment = models.EnrichmentNotAttempted
		case IsPlatformURL(rec.Website):
			if social, ok := SocialFromURL(rec.Website); ok {
				rec.Socials = models.MergeSocials(rec.Socials, []models.Social{social})
			}
			rec.Enrichment = models.EnrichmentSkipped
		case !scrape:
			rec.Enrichment = models.EnrichmentSkipped
		default:
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	e.logger.Info("[enricher] Visiting %d websites (concurrency %d)", len(eligible), e.opts.MaxConcurrency)

	results := make(chan enrichResult, len(eligible))
	pool := utils.NewWorkerPool(e.opts.MaxConcurrency, e.opts.RateLimitMs)

	var submitErr error
	for _, idx := range eligible {
		idx := idx
		website := records[idx].Website
		if err := pool.Submit(ctx, func(ctx context.Context) {
			contacts, err := e.visit(ctx, website)
			results <- enrichResult{index: idx, contacts: contacts, err: err}
		}); err != nil {
			submitErr = err
			break
		}
	}
	pool.Wait()
	close(results)

	var ok, failed int
	for res := range results {
		rec := records[res.index]
		if res.err != nil {
			rec.Enrichment = models.EnrichmentFailed
			failed++
			e.logger.Warn("[enricher] %s: %v", rec.Name, res.err)
			continue
		}
		mergeContacts(rec, res.contacts)
		rec.Enrichment = models.EnrichmentSuccess
		ok++
	}

	e.logger.Info("[enricher] Done: %d enriched, %d failed", ok, failed)

	if submitErr != nil {
		return perr.Wrap(submitErr, perr.KindCanceled, "enrichment interrupted")
	}
	if err := ctx.Err(); err != nil {
		return perr.Wrap(err, perr.KindCanceled, "enrichment interrupted")
	}
	return nil
}

// visit reads the home page and, when it has no email, a few contact pages.
func (e *Enricher) visit(ctx context.Context, website string) (ContactSet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	home := ensureScheme(website)
	html, err := e.fetcher.FetchHTML(ctx, home)
	if err != nil {
		return ContactSet{}, perr.Wrapf(err, perr.KindEnrichment, "visit %s", home)
	}
	set := ExtractContacts(html)

	if len(set.Emails) == 0 && e.opts.ContactPages > 0 {
		for _, link := range ContactLinks(html, home, e.opts.ContactPages) {
			page, err := e.fetcher.FetchHTML(ctx, link)
			if err != nil {
				e.logger.Debug("[enricher] %s: %v", link, err)
				continue
			}
			set = combineContacts(set, ExtractContacts(page))
			if len(set.Emails) > 0 {
				break
			}
		}
	}

	if e.mx != nil {
		set.Emails = FilterEmailsByMX(ctx, e.mx, set.Emails)
	}
	return set, nil
}

func combineContacts(a, b ContactSet) ContactSet {
	phones := newOrderedSet()
	emails := newOrderedSet()
	for _, p := range append(append([]string{}, a.Phones...), b.Phones...) {
		phones.add(p)
	}
	for _, m := range append(append([]string{}, a.Emails...), b.Emails...) {
		emails.add(m)
	}
	out := ContactSet{
		Phones:  phones.items,
		Emails:  emails.items,
		Socials: models.MergeSocials(a.Socials, b.Socials),
	}
	if len(out.Emails) > maxEmails {
		out.Emails = out.Emails[:maxEmails]
	}
	return out
}

// mergeContacts never clears a value the record already has: the phone is
// only filled when empty, other numbers go to AltPhones, emails and socials
// are unioned.
func mergeContacts(rec *models.ListingRecord, found ContactSet) {
	alt := newOrderedSet()
	for _, p := range rec.AltPhones {
		alt.add(p)
	}
	for _, p := range found.Phones {
		switch {
		case rec.Phone == "":
			rec.Phone = p
		case samePhone(rec.Phone, p):
		default:
			alt.add(p)
		}
	}
	rec.AltPhones = alt.items

	emails := newOrderedSet()
	for _, m := range rec.Emails {
		emails.add(m)
	}
	for _, m := range found.Emails {
		emails.add(m)
	}
	rec.Emails = emails.items
	if len(rec.Emails) > maxEmails {
		rec.Emails = rec.Emails[:maxEmails]
	}

	rec.Socials = models.MergeSocials(rec.Socials, found.Socials)
}

func samePhone(a, b string) bool {
	return digitsOnly(a) == digitsOnly(b)
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
