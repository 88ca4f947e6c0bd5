package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// SQLitePendingChangeRepository implements PendingChangeRepository using
// SQLite. The AUTOINCREMENT seq column gives the queue its admission order:
// it is assigned on first insert and never reused, so replay order matches
// the order mutations were made.
type SQLitePendingChangeRepository struct {
	db *sql.DB
}

// NewSQLitePendingChangeRepository creates a new SQLite pending change repository.
func NewSQLitePendingChangeRepository(db *sql.DB) *SQLitePendingChangeRepository {
	return &SQLitePendingChangeRepository{db: db}
}

// Save persists a pending change; the store assigns the sequence on first
// insert.
func (r *SQLitePendingChangeRepository) Save(ctx context.Context, change *domain.PendingChange) error {
	query := `
		INSERT INTO pending_changes (
			id, operation, account_id, calendar_id, event_id,
			payload, retry_count, last_error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			retry_count = excluded.retry_count,
			last_error = excluded.last_error
	`

	var payload *string
	if p := change.Payload(); len(p) > 0 {
		v := string(p)
		payload = &v
	}
	var lastError *string
	if s := change.LastError(); s != "" {
		lastError = &s
	}

	_, err := r.db.ExecContext(ctx, query,
		change.ID().String(),
		string(change.Operation()),
		change.AccountID().String(),
		change.CalendarID(),
		change.EventID(),
		payload,
		change.RetryCount(),
		lastError,
		change.CreatedAt().Format(time.RFC3339),
	)
	return err
}

// FindAllOrdered returns every pending change in admission order.
func (r *SQLitePendingChangeRepository) FindAllOrdered(ctx context.Context) ([]*domain.PendingChange, error) {
	query := `
		SELECT seq, id, operation, account_id, calendar_id, event_id,
			   payload, retry_count, last_error, created_at
		FROM pending_changes
		ORDER BY seq
	`
	return r.queryChanges(ctx, query)
}

// FindByEvent finds open changes targeting an event, oldest first.
func (r *SQLitePendingChangeRepository) FindByEvent(ctx context.Context, eventID string) ([]*domain.PendingChange, error) {
	query := `
		SELECT seq, id, operation, account_id, calendar_id, event_id,
			   payload, retry_count, last_error, created_at
		FROM pending_changes
		WHERE event_id = ?
		ORDER BY seq
	`
	return r.queryChanges(ctx, query, eventID)
}

// FindByID finds a change by ID.
func (r *SQLitePendingChangeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.PendingChange, error) {
	query := `
		SELECT seq, id, operation, account_id, calendar_id, event_id,
			   payload, retry_count, last_error, created_at
		FROM pending_changes
		WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, id.String())

	change, err := scanPendingChange(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return change, err
}

// Delete removes a change after successful replay or manual discard.
func (r *SQLitePendingChangeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM pending_changes WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id.String())
	return err
}

func (r *SQLitePendingChangeRepository) queryChanges(ctx context.Context, query string, args ...any) ([]*domain.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*domain.PendingChange
	for rows.Next() {
		change, err := scanPendingChange(rows.Scan)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

func scanPendingChange(scan func(dest ...any) error) (*domain.PendingChange, error) {
	var (
		seq          int64
		idStr        string
		operation    string
		accountIDStr string
		calendarID   string
		eventID      string
		payload      sql.NullString
		retryCount   int
		lastError    sql.NullString
		createdAtStr string
	)

	err := scan(
		&seq, &idStr, &operation, &accountIDStr, &calendarID, &eventID,
		&payload, &retryCount, &lastError, &createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, err
	}

	var rawPayload json.RawMessage
	if payload.Valid {
		rawPayload = json.RawMessage(payload.String)
	}

	return domain.RehydratePendingChange(
		id, seq,
		domain.ChangeOperation(operation),
		accountID, calendarID, eventID,
		rawPayload,
		retryCount,
		lastError.String,
		createdAt,
	), nil
}
