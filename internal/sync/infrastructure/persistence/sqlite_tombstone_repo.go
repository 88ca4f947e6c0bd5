package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// SQLiteTombstoneRepository implements TombstoneRepository using SQLite.
type SQLiteTombstoneRepository struct {
	db *sql.DB
}

// NewSQLiteTombstoneRepository creates a new SQLite tombstone repository.
func NewSQLiteTombstoneRepository(db *sql.DB) *SQLiteTombstoneRepository {
	return &SQLiteTombstoneRepository{db: db}
}

// Save persists a tombstone.
func (r *SQLiteTombstoneRepository) Save(ctx context.Context, tombstone *domain.Tombstone) error {
	query := `
		INSERT INTO tombstones (event_id, account_id, calendar_id, deleted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET
			deleted_at = excluded.deleted_at
	`
	_, err := r.db.ExecContext(ctx, query,
		tombstone.EventID(),
		tombstone.AccountID().String(),
		tombstone.CalendarID(),
		tombstone.DeletedAt().Format(time.RFC3339),
	)
	return err
}

// FindByEvent finds a tombstone by event ID.
func (r *SQLiteTombstoneRepository) FindByEvent(ctx context.Context, eventID string) (*domain.Tombstone, error) {
	query := `
		SELECT event_id, account_id, calendar_id, deleted_at
		FROM tombstones
		WHERE event_id = ?
	`
	row := r.db.QueryRowContext(ctx, query, eventID)

	tombstone, err := scanTombstone(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return tombstone, err
}

// FindByAccount finds all tombstones for an account.
func (r *SQLiteTombstoneRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Tombstone, error) {
	query := `
		SELECT event_id, account_id, calendar_id, deleted_at
		FROM tombstones
		WHERE account_id = ?
		ORDER BY deleted_at
	`
	rows, err := r.db.QueryContext(ctx, query, accountID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tombstones []*domain.Tombstone
	for rows.Next() {
		tombstone, err := scanTombstone(rows.Scan)
		if err != nil {
			return nil, err
		}
		tombstones = append(tombstones, tombstone)
	}
	return tombstones, rows.Err()
}

// Delete removes a tombstone once the remote delete is confirmed.
func (r *SQLiteTombstoneRepository) Delete(ctx context.Context, eventID string) error {
	query := `DELETE FROM tombstones WHERE event_id = ?`
	_, err := r.db.ExecContext(ctx, query, eventID)
	return err
}

func scanTombstone(scan func(dest ...any) error) (*domain.Tombstone, error) {
	var (
		eventID      string
		accountIDStr string
		calendarID   string
		deletedAtStr string
	)

	if err := scan(&eventID, &accountIDStr, &calendarID, &deletedAtStr); err != nil {
		return nil, err
	}

	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		return nil, err
	}
	deletedAt, err := time.Parse(time.RFC3339, deletedAtStr)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateTombstone(accountID, calendarID, eventID, deletedAt), nil
}
