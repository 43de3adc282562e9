// Package pipeline runs one search end to end: acquire, enrich, filter,
// reconcile into the sheet and, when configured, the relational store.
package pipeline

import (
	"context"
	"errors"
	"time"

	perr "maps-scraper/errors"
	"maps-scraper/models"
	"maps-scraper/scraper/maps"
	"maps-scraper/services"
	"maps-scraper/storage"
	"maps-scraper/utils"
)

// flushTimeout bounds the partial write made after an interrupt.
const flushTimeout = 60 * time.Second

// Acquirer produces the listings of one search.
type Acquirer interface {
	Acquire(ctx context.Context, req *models.SearchRequest) (*maps.Acquisition, error)
}

// ContactEnricher fills contact fields from listing websites.
type ContactEnricher interface {
	Enrich(ctx context.Context, records []*models.ListingRecord, scrape bool) error
}

// BatchReconciler writes projected rows to the sheet.
type BatchReconciler interface {
	ReconcileRows(ctx context.Context, rows []models.SheetRow, mode models.ReconcileMode) (*models.ReconcileResult, error)
}

// Stages are the collaborators of a Runner. Secondary may be nil.
type Stages struct {
	Acquirer    Acquirer
	Enricher    ContactEnricher
	Reconciler  BatchReconciler
	Secondary   storage.ListingWriter
	SnapshotDir string
}

// Runner drives the stages for one SearchRequest.
type Runner struct {
	stages   Stages
	insights *services.InsightService
	logger   *utils.Logger
	now      func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(stages Stages, logger *utils.Logger) *Runner {
	if stages.SnapshotDir == "" {
		stages.SnapshotDir = "./output"
	}
	return &Runner{
		stages:   stages,
		insights: services.NewInsightService(logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes req. The summary is returned even when err is not nil.
// An aborted acquisition writes nothing unless req.FlushPartial is set; the
// abort error is still returned after a flush.
func (r *Runner) Run(ctx context.Context, req *models.SearchRequest) (*models.RunSummary, error) {
	if req.ResumeFrom != "" {
		return r.resume(ctx, req)
	}

	acq, acqErr := r.stages.Acquirer.Acquire(ctx, req)
	if acq == nil {
		acq = &maps.Acquisition{}
	}
	records := acq.Records

	if acqErr != nil && (!req.FlushPartial || len(records) == 0) {
		r.logger.Error("[pipeline] Acquisition aborted (%s): %v. Discarding %d partial records",
			perr.KindOf(acqErr), acqErr, len(records))
		summary := r.summarise(req, acq, nil, nil)
		markAborted(summary, acqErr)
		return summary, acqErr
	}

	writeCtx := ctx
	if acqErr != nil {
		r.logger.Warn("[pipeline] Acquisition aborted (%s): %v. Flushing %d partial records without enrichment",
			perr.KindOf(acqErr), acqErr, len(records))
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
	} else if err := r.stages.Enricher.Enrich(ctx, records, req.ScrapeWebsites); err != nil {
		summary := r.summarise(req, acq, nil, nil)
		markAborted(summary, err)
		return summary, err
	}

	now := r.now()
	batch, outcomes := services.NewFilterPipeline(req, r.logger).Apply(records, now)
	summary := r.summarise(req, acq, outcomes, batch)
	if acqErr != nil {
		markAborted(summary, acqErr)
	} else if req.OutputPath != "" {
		if err := storage.WriteExport(req.OutputPath, batch, now); err != nil {
			r.logger.Warn("[pipeline] Could not write %s: %v", req.OutputPath, err)
		} else {
			r.logger.Info("[pipeline] Saved %d places to %s", len(batch.Records), req.OutputPath)
		}
	}

	rows := storage.Project(batch, now)
	result, err := r.reconcile(writeCtx, rows, req, summary, "")
	if err != nil {
		return summary, err
	}
	summary.Reconcile = result

	if r.stages.Secondary != nil {
		if err := r.stages.Secondary.Write(writeCtx, batch.Records); err != nil {
			r.logger.Warn("[pipeline] Secondary store write failed: %v", err)
		}
	}

	return summary, acqErr
}

// resume reconciles a saved snapshot without scraping.
func (r *Runner) resume(ctx context.Context, req *models.SearchRequest) (*models.RunSummary, error) {
	rows, err := storage.ReadSnapshot(req.ResumeFrom)
	if err != nil {
		return nil, perr.Wrap(err, perr.KindConfig, "resume")
	}
	r.logger.Info("[pipeline] Resuming %d rows from %s", len(rows), req.ResumeFrom)

	summary := r.summarise(req, &maps.Acquisition{}, nil, nil)
	summary.Exported = len(rows)
	for _, row := range rows {
		summary.BySheetTab[row.SheetCategory]++
	}

	result, err := r.reconcile(ctx, rows, req, summary, req.ResumeFrom)
	if err != nil {
		return summary, err
	}
	summary.Reconcile = result
	return summary, nil
}

// reconcile writes rows and, on a final write failure, saves them to a
// snapshot so the run can be resumed. snapshot names an existing one.
func (r *Runner) reconcile(ctx context.Context, rows []models.SheetRow, req *models.SearchRequest, summary *models.RunSummary, snapshot string) (*models.ReconcileResult, error) {
	mode := models.ModeOverwrite
	if req.Append {
		mode = models.ModeAppend
	}

	result, err := r.stages.Reconciler.ReconcileRows(ctx, rows, mode)
	if err == nil {
		return result, nil
	}

	var wErr *storage.ReconcileWriteError
	if !errors.As(err, &wErr) {
		return nil, err
	}
	if snapshot == "" {
		path, sErr := storage.WriteSnapshot(r.stages.SnapshotDir, rows, r.now())
		if sErr != nil {
			r.logger.Error("[pipeline] Could not save batch snapshot: %v", sErr)
		} else {
			snapshot = path
		}
	}
	wErr.SnapshotPath = snapshot
	summary.SnapshotPath = snapshot
	r.logger.Error("[pipeline] %v", err)
	return nil, err
}

func (r *Runner) summarise(req *models.SearchRequest, acq *maps.Acquisition, outcomes []models.FilterOutcome, batch *models.ExportBatch) *models.RunSummary {
	summary := r.insights.Generate(req, acq.Records, outcomes, batch)
	summary.Dropped = acq.Dropped
	return summary
}

func markAborted(summary *models.RunSummary, err error) {
	summary.Aborted = true
	summary.AbortReason = err.Error()
}

