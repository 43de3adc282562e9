package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
)

// MemorySheet is an in-process SheetBackend used for dry runs and tests.
// FailWrites makes the next n BatchWrite calls fail.
type MemorySheet struct {
	mu         sync.Mutex
	rows       [][]string
	writes     int
	FailWrites int
}

// NewMemorySheet creates a sheet holding a copy of rows.
func NewMemorySheet(rows [][]string) *MemorySheet {
	return &MemorySheet{rows: cloneRows(rows)}
}

// ReadAll implements SheetBackend. Trailing blank rows are not returned.
func (m *MemorySheet) ReadAll(ctx context.Context) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last := len(m.rows)
	for last > 0 && blank(m.rows[last-1]) {
		last--
	}
	return cloneRows(m.rows[:last]), nil
}

// BatchWrite implements SheetBackend. Either every update lands or none does.
func (m *MemorySheet) BatchWrite(ctx context.Context, updates []RowUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites > 0 {
		m.FailWrites--
		return fmt.Errorf("memory sheet: injected write failure")
	}
	for _, u := range updates {
		for len(m.rows) <= u.Row {
			m.rows = append(m.rows, nil)
		}
		m.rows[u.Row] = append([]string(nil), u.Values...)
	}
	m.writes++
	return nil
}

// Rows returns the non-blank rows below the header.
func (m *MemorySheet) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]string
	for i, r := range m.rows {
		if i == 0 || blank(r) {
			continue
		}
		out = append(out, append([]string(nil), r...))
	}
	return out
}

// Writes returns how many BatchWrite calls succeeded.
func (m *MemorySheet) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Print writes the sheet as an aligned table.
func (m *MemorySheet) Print(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range m.rows {
		if blank(r) {
			continue
		}
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
