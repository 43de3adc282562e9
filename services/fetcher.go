package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	perr "maps-scraper/errors"
	"maps-scraper/utils"
)

const (
	maxWebsiteResponseBytes = 2 << 20
	defaultUserAgent        = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// PageFetcher loads the HTML of a website.
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages with a plain HTTP GET.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTPFetcher. The per-request deadline comes from
// the caller's context; timeout is an upper bound for the client.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// FetchHTML implements PageFetcher.
func (f *HTTPFetcher) FetchHTML(ctx context.Context, target string) (string, error) {
	target = ensureScheme(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", perr.Wrapf(err, perr.KindEnrichment, "invalid website URL %q", target)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", perr.Wrapf(err, perr.KindEnrichment, "fetch %s", target)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", perr.Newf(perr.KindEnrichment, "website %s responded with status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebsiteResponseBytes))
	if err != nil {
		return "", perr.Wrapf(err, perr.KindEnrichment, "read %s", target)
	}
	return string(body), nil
}

// FallbackFetcher tries primary first and secondary when primary fails.
type FallbackFetcher struct {
	primary   PageFetcher
	secondary PageFetcher
	logger    *utils.Logger
}

// NewFallbackFetcher chains two fetchers.
func NewFallbackFetcher(primary, secondary PageFetcher, logger *utils.Logger) *FallbackFetcher {
	return &FallbackFetcher{primary: primary, secondary: secondary, logger: logger}
}

// FetchHTML implements PageFetcher.
func (f *FallbackFetcher) FetchHTML(ctx context.Context, target string) (string, error) {
	html, err := f.primary.FetchHTML(ctx, target)
	if err == nil {
		return html, nil
	}
	if ctx.Err() != nil || f.secondary == nil {
		return "", err
	}
	f.logger.Debug("[fetcher] %s: primary failed (%v), trying fallback", target, err)

	html, err2 := f.secondary.FetchHTML(ctx, target)
	if err2 != nil {
		return "", fmt.Errorf("%w; fallback: %v", err, err2)
	}
	return html, nil
}

func ensureScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + strings.TrimLeft(raw, "/")
}
