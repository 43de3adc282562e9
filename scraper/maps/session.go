package maps

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"maps-scraper/config"
	perr "maps-scraper/errors"
	"maps-scraper/utils"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// SessionOptions configures the browser session.
type SessionOptions struct {
	Headless      bool
	ChromeBin     string
	UserAgent     string
	NavTimeout    time.Duration
	EvalTimeout   time.Duration
	FetchTimeout  time.Duration
	MinInterval   time.Duration
	Jitter        time.Duration
	MaxRetries    int
	RetryBaseWait time.Duration
}

// OptionsFromConfig derives session options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config, headless bool) SessionOptions {
	return SessionOptions{
		Headless:      headless,
		ChromeBin:     cfg.ChromeBin,
		NavTimeout:    cfg.NavTimeout,
		EvalTimeout:   10 * time.Second,
		FetchTimeout:  cfg.EnrichTimeout,
		MinInterval:   time.Duration(cfg.RateLimitMs) * time.Millisecond,
		Jitter:        time.Duration(cfg.JitterMs) * time.Millisecond,
		MaxRetries:    cfg.MaxRetries,
		RetryBaseWait: 2 * time.Second,
	}
}

// Session owns one browser and its main page. All navigations on the main
// page go through Navigate, one at a time.
type Session struct {
	opts   SessionOptions
	logger *utils.Logger
	pacer  *Pacer
	retry  *utils.RetryConfig

	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc

	mu        sync.Mutex
	closeOnce sync.Once
}

// Open starts the browser. Call Close to release it.
func Open(ctx context.Context, opts SessionOptions, logger *utils.Logger) (*Session, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 45 * time.Second
	}
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = 10 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}

	chromeBin := opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[session] Using browser binary: %s", valueOr(chromeBin, "(chromedp default)"))

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.UserAgent(opts.UserAgent),
	)
	if chromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}),
		chromedp.WithErrorf(func(format string, args ...interface{}) { logger.Debug("[chromedp] "+format, args...) }),
	)

	s := &Session{
		opts:          opts,
		logger:        logger,
		pacer:         NewPacer(opts.MinInterval, opts.Jitter),
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   opts.RetryBaseWait,
			Logger:      logger,
		},
	}

	// The first Run allocates the browser; it must not carry a deadline.
	if err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-US,en;q=0.9"}),
	); err != nil {
		s.Close()
		return nil, perr.Wrap(err, perr.KindAcquisition, "start browser")
	}
	if ctx.Err() != nil {
		s.Close()
		return nil, ctx.Err()
	}
	return s, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancelBrowser()
		s.cancelAlloc()
		s.logger.Debug("[session] Browser closed")
	})
}

// Navigate loads url in the main page. Calls are serialised and paced;
// failures are retried. A 403/429 response is reported as a block.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retry.Do(ctx, "navigate", func(ctx context.Context) error {
		if err := s.pacer.Wait(ctx); err != nil {
			return err
		}

		navCtx, cancel := s.bounded(ctx, s.opts.NavTimeout)
		defer cancel()

		s.logger.Debug("[session] Navigating to %s", url)
		resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(url))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return perr.WithOp(perr.Wrapf(err, perr.KindNavigation, "navigate %s", url), "navigate")
		}
		if resp != nil {
			switch {
			case resp.Status == 403 || resp.Status == 429:
				return perr.Blockedf("navigate %s: status %d", url, resp.Status)
			case resp.Status >= 400:
				return perr.Navigationf("navigate %s: status %d", url, resp.Status)
			}
		}
		return nil
	})
}

// Evaluate runs script on the main page and decodes its result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	evalCtx, cancel := s.bounded(ctx, s.opts.EvalTimeout)
	defer cancel()

	if err := chromedp.Run(evalCtx, chromedp.Evaluate(script, out)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return perr.WithOp(perr.Wrap(err, perr.KindNavigation, "evaluate script"), "evaluate")
	}
	return nil
}

// DetectBlocked reports whether the main page shows a block or CAPTCHA
// interstitial.
func (s *Session) DetectBlocked(ctx context.Context) (bool, error) {
	var probe BlockProbe
	if err := s.Evaluate(ctx, blockProbeScript, &probe); err != nil {
		return false, err
	}
	if IsBlocked(probe) {
		s.logger.Warn("[session] Block page detected at %s", probe.URL)
		return true, nil
	}
	return false, nil
}

// FetchHTML renders url in a fresh, isolated browser context and returns
// its HTML. It does not touch the main page.
func (s *Session) FetchHTML(ctx context.Context, url string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx, chromedp.WithNewBrowserContext())
	defer cancelTab()

	fetchCtx, cancel := context.WithTimeout(tabCtx, s.opts.FetchTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(fetchCtx,
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", perr.Wrapf(err, perr.KindEnrichment, "render %s", url)
	}
	return html, nil
}

// bounded derives a context from the browser that also ends with ctx.
func (s *Session) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	c, cancel := context.WithTimeout(s.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

// BlockProbe is what the page reveals about itself for block detection.
type BlockProbe struct {
	URL    string   `json:"url"`
	Title  string   `json:"title"`
	Text   string   `json:"text"`
	Frames []string `json:"frames"`
}

var blockMarkers = []string{
	"unusual traffic",
	"our systems have detected",
	"not a robot",
	"to continue, please type the characters",
}

// IsBlocked classifies a page as a block or CAPTCHA interstitial.
func IsBlocked(p BlockProbe) bool {
	url := strings.ToLower(p.URL)
	if strings.Contains(url, "/sorry/") || strings.Contains(url, "google.com/sorry") {
		return true
	}
	text := strings.ToLower(p.Title + "\n" + p.Text)
	for _, m := range blockMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	for _, f := range p.Frames {
		f = strings.ToLower(f)
		if strings.Contains(f, "recaptcha") || strings.Contains(f, "captcha") {
			return true
		}
	}
	return false
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
