package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These are not expressible in ent's schema DSL, so they are applied here
// after the golang-migrate run, exactly as the teacher applies its own
// custom indexes.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_runs_prompt_gin
		ON runs USING gin(to_tsvector('english', prompt))`)
	if err != nil {
		return fmt.Errorf("failed to create prompt GIN index: %w", err)
	}

	return nil
}
