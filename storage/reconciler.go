package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	perr "maps-scraper/errors"
	"maps-scraper/models"
	"maps-scraper/utils"
)

// ReconcileWriteError is the final failure of a reconcile. SnapshotPath
// names the saved batch that can be retried with --resume.
type ReconcileWriteError struct {
	Mode         models.ReconcileMode
	SnapshotPath string
	Err          error
}

func (e *ReconcileWriteError) Error() string {
	msg := fmt.Sprintf("sheet %s write failed: %v", e.Mode, e.Err)
	if e.SnapshotPath != "" {
		msg += " (batch saved to " + e.SnapshotPath + ")"
	}
	return msg
}

func (e *ReconcileWriteError) Unwrap() error { return e.Err }

// Reconciler merges an ExportBatch into a sheet in one write request.
type Reconciler struct {
	backend SheetBackend
	retry   *utils.RetryConfig
	logger  *utils.Logger
	now     func() time.Time
}

// NewReconciler creates a Reconciler writing to backend.
func NewReconciler(backend SheetBackend, retry *utils.RetryConfig, logger *utils.Logger) *Reconciler {
	if retry == nil {
		retry = &utils.RetryConfig{MaxAttempts: 1}
	}
	return &Reconciler{backend: backend, retry: retry, logger: logger, now: time.Now}
}

// Reconcile writes batch to the sheet. Overwrite replaces the sheet with the
// batch; append updates rows matched by ID and adds the rest. The sheet is
// re-read on every attempt so a retry never writes against stale rows.
func (r *Reconciler) Reconcile(ctx context.Context, batch *models.ExportBatch, mode models.ReconcileMode) (*models.ReconcileResult, error) {
	return r.ReconcileRows(ctx, Project(batch, r.now()), mode)
}

// ReconcileRows is Reconcile for rows that are already projected, such as
// the contents of a snapshot.
func (r *Reconciler) ReconcileRows(ctx context.Context, rows []models.SheetRow, mode models.ReconcileMode) (*models.ReconcileResult, error) {
	var result *models.ReconcileResult
	err := r.retry.Do(ctx, "sheet reconcile", func(ctx context.Context) error {
		existing, err := r.backend.ReadAll(ctx)
		if err != nil {
			return asWriteError(err, "read sheet")
		}

		var updates []RowUpdate
		if mode == models.ModeAppend {
			updates, result = planAppend(existing, rows)
		} else {
			updates, result = planOverwrite(existing, rows)
		}

		if err := r.backend.BatchWrite(ctx, updates); err != nil {
			return asWriteError(err, "write sheet")
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && perr.IsKind(err, perr.KindCanceled) {
			return nil, err
		}
		if !perr.IsKind(err, perr.KindReconcileWrite) {
			err = perr.Wrap(err, perr.KindReconcileWrite, "reconcile")
		}
		return nil, &ReconcileWriteError{Mode: mode, Err: err}
	}

	r.logger.Info("[sheet] %s: %d inserted, %d updated, %d rows", mode, result.Inserted, result.Updated, result.TotalRows)
	return result, nil
}

// planOverwrite writes the header and the sorted batch from the top, then
// blanks whatever rows the previous content had below it.
func planOverwrite(existing [][]string, rows []models.SheetRow) ([]RowUpdate, *models.ReconcileResult) {
	sorted := append([]models.SheetRow(nil), rows...)
	SortRows(sorted)

	width := len(Columns)
	for _, row := range existing {
		if len(row) > width {
			width = len(row)
		}
	}

	updates := make([]RowUpdate, 0, len(existing)+len(sorted)+1)
	updates = append(updates, RowUpdate{Row: 0, Values: pad(Columns, width)})
	for i, row := range sorted {
		updates = append(updates, RowUpdate{Row: i + 1, Values: pad(ToCells(row), width)})
	}
	for i := len(sorted) + 1; i < len(existing); i++ {
		updates = append(updates, RowUpdate{Row: i, Values: make([]string, width)})
	}

	return updates, &models.ReconcileResult{
		Mode:      models.ModeOverwrite,
		Inserted:  len(sorted),
		TotalRows: len(sorted),
	}
}

// planAppend updates matched rows in place and appends the rest. Cells are
// addressed by the sheet's own header; missing columns are added at the end.
// No row is ever removed.
func planAppend(existing [][]string, rows []models.SheetRow) ([]RowUpdate, *models.ReconcileResult) {
	var header []string
	if len(existing) > 0 {
		for _, h := range existing[0] {
			header = append(header, strings.TrimSpace(h))
		}
	}
	headerChanged := len(existing) == 0
	for _, col := range Columns {
		if indexOf(header, col) < 0 {
			header = append(header, col)
			headerChanged = true
		}
	}

	var updates []RowUpdate
	if headerChanged {
		updates = append(updates, RowUpdate{Row: 0, Values: header})
	}

	byID := make(map[string]int)
	for i := 1; i < len(existing); i++ {
		id := strings.TrimSpace(valueAt(existing[i], indexOf(header, ColID)))
		if id == "" {
			continue
		}
		if _, dup := byID[id]; !dup {
			byID[id] = i
		}
	}

	result := &models.ReconcileResult{Mode: models.ModeAppend}
	next := len(existing)
	if next == 0 {
		next = 1
	}

	for _, row := range rows {
		if idx, ok := byID[row.ID]; ok {
			old := FromCells(header, existing[idx])
			merged := MergeRow(old, row)
			updates = append(updates, RowUpdate{Row: idx, Values: render(header, merged, existing[idx])})
			result.Updated++
			continue
		}
		updates = append(updates, RowUpdate{Row: next, Values: render(header, row, nil)})
		byID[row.ID] = next
		next++
		result.Inserted++
	}

	result.TotalRows = next - 1
	return updates, result
}

// MergeRow refreshes the mutable cells of old with row. An empty value in
// row never blanks a filled cell, and "not_attempted" never replaces a
// recorded enrichment outcome. Derived cells follow the merged values.
func MergeRow(old, row models.SheetRow) models.SheetRow {
	merged := old
	for _, col := range mutableColumns {
		if col == ColLastSeen || col == ColHasWebsite || col == ColSheetCategory {
			continue
		}
		nv := *cell(&row, col)
		if nv == "" {
			continue
		}
		if col == ColEnrichment && nv == models.EnrichmentNotAttempted.String() && *cell(&merged, col) != "" {
			continue
		}
		*cell(&merged, col) = nv
	}
	for _, col := range []string{ColName, ColAddress, ColCategory, ColSourceURL, ColRegion} {
		if p := cell(&merged, col); *p == "" {
			*p = *cell(&row, col)
		}
	}

	merged.HasWebsite = boolCell(merged.Website != "")
	switch {
	case merged.Website != "":
		merged.SheetCategory = models.CategoryWithWebsites
	case merged.Socials != "":
		merged.SheetCategory = models.CategoryWithSocials
	default:
		merged.SheetCategory = models.CategoryWithoutWebsites
	}
	if !row.LastSeenAt.IsZero() {
		merged.LastSeenAt = row.LastSeenAt
	}
	return merged
}

// SortRows orders rows by rating (highest first, unrated last), then name
// case-insensitively, then ID.
func SortRows(rows []models.SheetRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		ri, okI := parseRating(rows[i].Rating)
		rj, okJ := parseRating(rows[j].Rating)
		if okI != okJ {
			return okI
		}
		if okI && ri != rj {
			return ri > rj
		}
		ni, nj := strings.ToLower(rows[i].Name), strings.ToLower(rows[j].Name)
		if ni != nj {
			return ni < nj
		}
		return rows[i].ID < rows[j].ID
	})
}

// render lays row out in header order. Columns this program does not know
// keep their previous cell value.
func render(header []string, row models.SheetRow, previous []string) []string {
	full := ToCells(row)
	out := make([]string, len(header))
	for i, h := range header {
		if k := indexOf(Columns, h); k >= 0 {
			out[i] = full[k]
			continue
		}
		out[i] = valueAt(previous, i)
	}
	return out
}

func parseRating(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if strings.EqualFold(s, v) {
			return i
		}
	}
	return -1
}

func valueAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func pad(values []string, width int) []string {
	if len(values) >= width {
		return values
	}
	out := make([]string, width)
	copy(out, values)
	return out
}

func asWriteError(err error, msg string) error {
	if _, ok := perr.As(err); ok {
		return err
	}
	if perr.KindOf(err) == perr.KindCanceled {
		return perr.Wrap(err, perr.KindCanceled, msg)
	}
	return perr.Wrap(err, perr.KindReconcileWrite, msg)
}
