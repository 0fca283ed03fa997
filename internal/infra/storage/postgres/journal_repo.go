package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/txgate/internal/infra/storage"
)

// JournalRepo implements storage.SubmissionJournal using PostgreSQL.
type JournalRepo struct {
	db *DB
}

var _ storage.SubmissionJournal = (*JournalRepo)(nil)

// NewJournalRepo creates a new PostgreSQL submission journal.
func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

const journalColumns = `attempt_id, result, signature, fee_payer, commitment, error_code, error_message,
	certainty, retryable, expiry_reference, expiry_slot, details, created_at`

// Append inserts a record. Journal rows are never updated.
func (r *JournalRepo) Append(ctx context.Context, rec *storage.SubmissionRecord) error {
	query := `
		INSERT INTO submission_journal (` + journalColumns + `)
		VALUES (:attempt_id, :result, :signature, :fee_payer, :commitment, :error_code, :error_message,
			:certainty, :retryable, :expiry_reference, :expiry_slot, :details, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to append submission record: %w", err)
	}
	return nil
}

// Get retrieves one attempt.
func (r *JournalRepo) Get(ctx context.Context, attemptID string) (*storage.SubmissionRecord, error) {
	var rec storage.SubmissionRecord
	query := `SELECT ` + journalColumns + ` FROM submission_journal WHERE attempt_id = $1`
	if err := r.db.GetContext(ctx, &rec, query, attemptID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get submission record: %w", err)
	}
	return &rec, nil
}

// BySignature retrieves every attempt for a signature, oldest first.
func (r *JournalRepo) BySignature(ctx context.Context, signature string) ([]*storage.SubmissionRecord, error) {
	var recs []*storage.SubmissionRecord
	query := `SELECT ` + journalColumns + ` FROM submission_journal WHERE signature = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &recs, query, signature); err != nil {
		return nil, fmt.Errorf("failed to query submission records: %w", err)
	}
	return recs, nil
}

// Recent retrieves the newest records.
func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]*storage.SubmissionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []*storage.SubmissionRecord
	query := `SELECT ` + journalColumns + ` FROM submission_journal ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent submission records: %w", err)
	}
	return recs, nil
}
