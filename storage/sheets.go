package storage

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	perr "maps-scraper/errors"
	"maps-scraper/utils"
)

// GoogleSheet is a SheetBackend over one tab of a Google spreadsheet.
type GoogleSheet struct {
	srv           *sheets.Service
	spreadsheetID string
	tab           string
	logger        *utils.Logger
}

// NewGoogleSheet authenticates with a service-account key file and makes
// sure the tab exists. Failing to reach the spreadsheet or create the tab is
// a configuration error: nothing has been written yet.
func NewGoogleSheet(ctx context.Context, spreadsheetID, credsPath, tab string, logger *utils.Logger) (*GoogleSheet, error) {
	return newGoogleSheet(ctx, spreadsheetID, tab, logger,
		option.WithCredentialsFile(credsPath),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
}

func newGoogleSheet(ctx context.Context, spreadsheetID, tab string, logger *utils.Logger, opts ...option.ClientOption) (*GoogleSheet, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, perr.Wrap(err, perr.KindConfig, "sheets: create client")
	}

	g := &GoogleSheet{srv: srv, spreadsheetID: spreadsheetID, tab: tab, logger: logger}
	if err := g.ensureTab(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GoogleSheet) ensureTab(ctx context.Context) error {
	doc, err := g.srv.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return perr.Wrapf(err, perr.KindConfig, "sheets: open spreadsheet %s", g.spreadsheetID)
	}
	for _, s := range doc.Sheets {
		if s.Properties != nil && s.Properties.Title == g.tab {
			return nil
		}
	}

	g.logger.Info("[sheet] Creating tab %q", g.tab)
	_, err = g.srv.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: g.tab}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return perr.Wrapf(err, perr.KindConfig, "sheets: create tab %q", g.tab)
	}
	return nil
}

// ReadAll implements SheetBackend.
func (g *GoogleSheet) ReadAll(ctx context.Context) ([][]string, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(g.spreadsheetID, g.quotedTab()).Context(ctx).Do()
	if err != nil {
		return nil, perr.Wrapf(err, perr.KindReconcileWrite, "sheets: read %s", g.tab)
	}
	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = fmt.Sprint(v)
		}
	}
	return rows, nil
}

// BatchWrite implements SheetBackend with a single values.batchUpdate call.
func (g *GoogleSheet) BatchWrite(ctx context.Context, updates []RowUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		cells := make([]interface{}, len(u.Values))
		for i, v := range u.Values {
			cells[i] = v
		}
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!A%d", g.quotedTab(), u.Row+1),
			Values: [][]interface{}{cells},
		})
	}

	_, err := g.srv.Spreadsheets.Values.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return perr.Wrapf(err, perr.KindReconcileWrite, "sheets: batch update %d rows", len(updates))
	}
	return nil
}

func (g *GoogleSheet) quotedTab() string {
	return "'" + strings.ReplaceAll(g.tab, "'", "''") + "'"
}
