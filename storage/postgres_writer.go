package storage

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"

	"maps-scraper/utils"
)

// postgresDialect refreshes the mutable columns on conflict. A NULL or empty
// incoming value keeps what is stored, and sheet_category follows the merged
// website and socials.
var postgresDialect = dialect{
	driver:      "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	upsert: `ON CONFLICT (id) DO UPDATE SET
		rating         = COALESCE(EXCLUDED.rating, places.rating),
		review_count   = COALESCE(EXCLUDED.review_count, places.review_count),
		phone          = COALESCE(NULLIF(EXCLUDED.phone, ''), places.phone),
		website        = COALESCE(NULLIF(EXCLUDED.website, ''), places.website),
		emails         = COALESCE(NULLIF(EXCLUDED.emails, ''), places.emails),
		socials        = COALESCE(NULLIF(EXCLUDED.socials, ''), places.socials),
		has_website    = EXCLUDED.has_website OR places.has_website,
		sheet_category = CASE
			WHEN COALESCE(NULLIF(EXCLUDED.website, ''), places.website, '') <> '' THEN 'with websites'
			WHEN COALESCE(NULLIF(EXCLUDED.socials, ''), places.socials, '') <> '' THEN 'with socials'
			ELSE 'without websites' END,
		enrichment     = CASE WHEN EXCLUDED.enrichment = 'not_attempted' THEN places.enrichment ELSE EXCLUDED.enrichment END,
		last_seen      = EXCLUDED.last_seen`,
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use writer.
func NewPostgresWriter(ctx context.Context, dsn string, logger *utils.Logger) (*SQLWriter, error) {
	return openSQL(ctx, dsn, postgresDialect, logger)
}
