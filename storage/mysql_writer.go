package storage

import (
	"context"

	_ "github.com/go-sql-driver/mysql"

	"maps-scraper/utils"
)

var mysqlDialect = dialect{
	driver:      "mysql",
	placeholder: func(int) string { return "?" },
	upsert: `ON DUPLICATE KEY UPDATE
		rating         = COALESCE(VALUES(rating), rating),
		review_count   = COALESCE(VALUES(review_count), review_count),
		phone          = COALESCE(NULLIF(VALUES(phone), ''), phone),
		website        = COALESCE(NULLIF(VALUES(website), ''), website),
		emails         = COALESCE(NULLIF(VALUES(emails), ''), emails),
		socials        = COALESCE(NULLIF(VALUES(socials), ''), socials),
		has_website    = VALUES(has_website) OR has_website,
		sheet_category = CASE
			WHEN COALESCE(NULLIF(VALUES(website), ''), website, '') <> '' THEN 'with websites'
			WHEN COALESCE(NULLIF(VALUES(socials), ''), socials, '') <> '' THEN 'with socials'
			ELSE 'without websites' END,
		enrichment     = IF(VALUES(enrichment) = 'not_attempted', enrichment, VALUES(enrichment)),
		last_seen      = VALUES(last_seen)`,
}

// NewMySQLWriter opens a connection to MySQL, runs schema migrations, and
// returns a ready-to-use writer.
func NewMySQLWriter(ctx context.Context, dsn string, logger *utils.Logger) (*SQLWriter, error) {
	return openSQL(ctx, dsn, mysqlDialect, logger)
}
