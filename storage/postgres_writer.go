package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"listing-scraper/models"
)

// PostgresWriter appends exported listings to a flat PostgreSQL table. Rows
// are never updated or merged.
type PostgresWriter struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresWriter opens a connection to PostgreSQL, creates the export
// table if needed, and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db, now: time.Now}
	if err := pw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS listing_exports (
			project        TEXT        NOT NULL,
			property_type  TEXT,
			price          NUMERIC(14,2),
			area_sqft      NUMERIC(12,2),
			bedrooms       VARCHAR(8),
			bathrooms      VARCHAR(8),
			location       TEXT,
			developer      TEXT,
			agent_name     TEXT,
			property_url   TEXT,
			description    TEXT,
			price_per_sqft NUMERIC(12,2),
			exported_at    TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_listing_exports_project  ON listing_exports(project);
		CREATE INDEX IF NOT EXISTS idx_listing_exports_exported ON listing_exports(exported_at);
	`)
	return err
}

// Write batch-inserts the listings in a single transaction.
func (pw *PostgresWriter) Write(listings []models.CanonicalListing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := pw.db.Begin()
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	exportedAt := pw.now().UTC()
	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		query, args := insertBatch(listings[i:end], exportedAt)
		if _, err := tx.Exec(query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("postgres: insert batch at %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// insertBatch builds a multi-row INSERT for batch.
func insertBatch(batch []models.CanonicalListing, exportedAt time.Time) (string, []any) {
	cols := len(Columns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*cols)

	for idx, l := range batch {
		base := idx * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			l.Project, l.PropertyType, l.Price, l.AreaSqft,
			roomArg(l.Bedrooms), roomArg(l.Bathrooms),
			l.Location, l.Developer, l.AgentName, l.PropertyURL, l.Description,
			l.PricePerSqft, exportedAt)
	}

	query := fmt.Sprintf(`INSERT INTO listing_exports (%s) VALUES %s`,
		strings.Join(Columns, ", "), strings.Join(valueStrings, ","))
	return query, valueArgs
}

func roomArg(r *models.RoomCount) any {
	if r == nil {
		return nil
	}
	return r.String()
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
