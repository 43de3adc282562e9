package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maps-scraper/models"
	"maps-scraper/utils"
)

func newMockWriter(t *testing.T, d dialect) (*SQLWriter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	w := newSQLWriter(db, d, utils.NewNopLogger())
	w.now = func() time.Time { return fixedNow }
	return w, mock
}

func TestPostgresUpsertSingle(t *testing.T) {
	w, mock := newMockWriter(t, postgresDialect)
	r := place("a", "Crumb & Co", 4.5, "")
	r.Phone = "+44 20 7946 0000"

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO places \(id, name, .*, last_seen\) VALUES \(\$1,\$2,.*,\$16\) ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("a", "Crumb & Co", "a Dean St", "Bakery", 4.5, int64(100), "+44 20 7946 0000",
			"", "", "", false, models.CategoryWithoutWebsites, "not_attempted",
			"https://www.google.com/maps/place/a", "Soho", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, w.Write(context.Background(), []*models.ListingRecord{r}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertNullRating(t *testing.T) {
	w, mock := newMockWriter(t, postgresDialect)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO places`).
		WithArgs("u", "Unrated", sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, w.Write(context.Background(), []*models.ListingRecord{place("u", "Unrated", 0, "")}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDerivesSheetCategoryFromMergedContacts(t *testing.T) {
	for _, d := range []dialect{postgresDialect, mysqlDialect} {
		t.Run(d.driver, func(t *testing.T) {
			assert.NotRegexp(t, `sheet_category\s*=\s*(EXCLUDED\.sheet_category|VALUES\(sheet_category\))`, d.upsert)
			assert.Regexp(t, `sheet_category\s*=\s*CASE\s+WHEN COALESCE\(NULLIF\((EXCLUDED\.website|VALUES\(website\)), ''\), (places\.)?website, ''\) <> '' THEN 'with websites'`, d.upsert)
			assert.Contains(t, d.upsert, "THEN '"+models.CategoryWithSocials+"'")
			assert.Contains(t, d.upsert, "ELSE '"+models.CategoryWithoutWebsites+"' END")
		})
	}

	// A re-scrape without contacts must not move a stored place out of its tab.
	w, mock := newMockWriter(t, postgresDialect)
	mock.ExpectBegin()
	mock.ExpectExec(`ON CONFLICT \(id\) DO UPDATE SET .*sheet_category = CASE\s+WHEN COALESCE\(NULLIF\(EXCLUDED\.website, ''\), places\.website, ''\)`).
		WithArgs("a", "Crumb & Co", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), "", "", "", false, models.CategoryWithoutWebsites, sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, w.Write(context.Background(), []*models.ListingRecord{place("a", "Crumb & Co", 4.5, "")}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchesInOneTransaction(t *testing.T) {
	w, mock := newMockWriter(t, mysqlDialect)

	var records []*models.ListingRecord
	for i := 0; i < 120; i++ {
		records = append(records, place(fmt.Sprintf("p%03d", i), fmt.Sprintf("Place %d", i), 4.2, ""))
	}

	mock.ExpectBegin()
	for _, n := range []int{50, 50, 20} {
		mock.ExpectExec(`INSERT INTO places .* VALUES \(\?,.*\) ON DUPLICATE KEY UPDATE`).
			WillReturnResult(sqlmock.NewResult(0, int64(n)))
	}
	mock.ExpectCommit()

	require.NoError(t, w.Write(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRollsBackOnFailure(t *testing.T) {
	w, mock := newMockWriter(t, postgresDialect)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO places`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := w.Write(context.Background(), []*models.ListingRecord{place("a", "Crumb & Co", 4.5, "")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertNothing(t *testing.T) {
	w, mock := newMockWriter(t, postgresDialect)

	require.NoError(t, w.Write(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
