package config

import (
	"flag"
	"io"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	perr "maps-scraper/errors"
	"maps-scraper/models"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ParseRequest builds the run's SearchRequest from command-line arguments.
// defaultQuery is used when --query is omitted. Every failure is a
// configuration error.
func ParseRequest(args []string, defaultQuery string, output io.Writer) (*models.SearchRequest, error) {
	fs := flag.NewFlagSet("maps-scraper", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	query := fs.String("query", defaultQuery, "Search query (e.g. 'Coffee Shop')")
	region := fs.String("region", "", "Region to search in (e.g. 'Paris')")
	maxResults := fs.Int("max-results", 20, "Maximum number of listings to acquire")
	noScrape := fs.Bool("no-scrape", false, "Skip visiting listing websites for contacts")
	headless := fs.Bool("headless", true, "Run the browser headless")
	appendMode := fs.Bool("append", false, "Merge into existing sheet rows instead of replacing them")
	rating := fs.Float64("rating", models.DefaultMinRating, "Minimum rating (0 disables the filter)")
	minReviews := fs.Int("min-reviews", 0, "Minimum review count (0 disables the filter)")
	onlyNoWebsite := fs.Bool("only-no-website", false, "Keep only places without a website")
	onlyHasSocials := fs.Bool("only-has-socials", false, "Keep only places with social media links")
	flushPartial := fs.Bool("flush-partial", false, "Write partial results when acquisition is aborted")
	dryRun := fs.Bool("dry-run", false, "Reconcile into memory and print rows instead of writing the sheet")
	resume := fs.String("resume", "", "Reconcile a saved batch snapshot (CSV) without scraping")
	outputPath := fs.String("output", models.DefaultOutputPath, "File for the filtered results, JSON or .csv (empty disables)")

	if err := fs.Parse(args); err != nil {
		return nil, perr.Wrap(err, perr.KindConfig, "invalid arguments")
	}
	if fs.NArg() > 0 {
		return nil, perr.Configf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	req := &models.SearchRequest{
		Query:          strings.TrimSpace(*query),
		Region:         strings.TrimSpace(*region),
		MaxResults:     *maxResults,
		MinReviews:     *minReviews,
		ScrapeWebsites: !*noScrape,
		Headless:       *headless,
		Append:         *appendMode,
		OnlyNoWebsite:  *onlyNoWebsite,
		OnlyHasSocials: *onlyHasSocials,
		FlushPartial:   *flushPartial,
		DryRun:         *dryRun,
		ResumeFrom:     strings.TrimSpace(*resume),
		OutputPath:     strings.TrimSpace(*outputPath),
	}
	if *rating > 0 {
		r := *rating
		req.MinRating = &r
	}

	if err := validatorInstance().Struct(req); err != nil {
		return nil, perr.Wrap(err, perr.KindConfig, "invalid search request")
	}
	return req, nil
}
