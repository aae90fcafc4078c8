package collab

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLDocumentLoader implements DocumentLoader against the ot_documents
// table (pkg/database/migrations/0001_init.up.sql), using plain
// database/sql rather than ent: the collaboration store's access
// pattern is a single keyed row read-or-insert, not the relational
// querying ent is for, and the table already exists as a migration
// the rest of the core shares.
type SQLDocumentLoader struct {
	db *sql.DB
}

// NewSQLDocumentLoader constructs a loader against db, the same
// *sql.DB the rest of the core's store layer uses (pkg/database.Client.DB()).
func NewSQLDocumentLoader(db *sql.DB) *SQLDocumentLoader {
	return &SQLDocumentLoader{db: db}
}

// LoadDocument implements DocumentLoader. A document_id with no
// existing row is created at version 0 with empty content, matching
// spec §4.6's "lazily created on first join" behavior.
func (l *SQLDocumentLoader) LoadDocument(ctx context.Context, documentID string) (string, int, error) {
	var content string
	var version int
	err := l.db.QueryRowContext(ctx,
		`SELECT content, version FROM ot_documents WHERE document_id = $1`, documentID,
	).Scan(&content, &version)
	if err == nil {
		return content, version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("loading document %s: %w", documentID, err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO ot_documents (document_id, content, version) VALUES ($1, '', 0)
		 ON CONFLICT (document_id) DO NOTHING`, documentID,
	)
	if err != nil {
		return "", 0, fmt.Errorf("creating document %s: %w", documentID, err)
	}
	return "", 0, nil
}

// PersistBatch records one applied batch to ot_operation_batches and
// advances the document's authoritative row, so a restarted gateway
// (or another pod loading the document for the first time) resumes
// from the same state rather than from empty content (spec §6
// "Persisted state layout").
func (l *SQLDocumentLoader) PersistBatch(ctx context.Context, documentID string, batch Batch, newContent string, newVersion int) error {
	opsJSON, err := json.Marshal(batch.Operations)
	if err != nil {
		return fmt.Errorf("marshaling operations for document %s: %w", documentID, err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction for document %s: %w", documentID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ot_operation_batches (batch_id, document_id, user_id, base_version, version, operations)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (document_id, version) DO NOTHING`,
		batch.ID, documentID, batch.UserID, batch.BaseVersion, newVersion, opsJSON,
	); err != nil {
		return fmt.Errorf("inserting batch for document %s: %w", documentID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ot_documents SET content = $1, version = $2, updated_at = now() WHERE document_id = $3`,
		newContent, newVersion, documentID,
	); err != nil {
		return fmt.Errorf("updating document %s: %w", documentID, err)
	}

	return tx.Commit()
}
