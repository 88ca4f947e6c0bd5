package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// SQLiteSyncMetadataRepository implements SyncMetadataRepository using SQLite.
type SQLiteSyncMetadataRepository struct {
	db *sql.DB
}

// NewSQLiteSyncMetadataRepository creates a new SQLite sync metadata repository.
func NewSQLiteSyncMetadataRepository(db *sql.DB) *SQLiteSyncMetadataRepository {
	return &SQLiteSyncMetadataRepository{db: db}
}

// Save persists sync metadata (create or update, unique per calendar).
func (r *SQLiteSyncMetadataRepository) Save(ctx context.Context, metadata *domain.SyncMetadata) error {
	query := `
		INSERT INTO sync_metadata (
			id, account_id, calendar_id, sync_token,
			last_sync_at, last_sync_status, error_message,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, calendar_id) DO UPDATE SET
			sync_token = excluded.sync_token,
			last_sync_at = excluded.last_sync_at,
			last_sync_status = excluded.last_sync_status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`

	var syncToken, errorMessage *string
	if s := metadata.SyncToken(); s != "" {
		syncToken = &s
	}
	if s := metadata.ErrorMessage(); s != "" {
		errorMessage = &s
	}

	var lastSyncAt *string
	if !metadata.LastSyncAt().IsZero() {
		t := metadata.LastSyncAt().Format(time.RFC3339)
		lastSyncAt = &t
	}

	_, err := r.db.ExecContext(ctx, query,
		metadata.ID().String(),
		metadata.AccountID().String(),
		metadata.CalendarID(),
		syncToken,
		lastSyncAt,
		string(metadata.LastStatus()),
		errorMessage,
		metadata.CreatedAt().Format(time.RFC3339),
		metadata.UpdatedAt().Format(time.RFC3339),
	)
	return err
}

// FindByAccountAndCalendar finds metadata for a calendar.
func (r *SQLiteSyncMetadataRepository) FindByAccountAndCalendar(ctx context.Context, accountID uuid.UUID, calendarID string) (*domain.SyncMetadata, error) {
	query := `
		SELECT id, account_id, calendar_id, sync_token,
			   last_sync_at, last_sync_status, error_message,
			   created_at, updated_at
		FROM sync_metadata
		WHERE account_id = ? AND calendar_id = ?
	`
	row := r.db.QueryRowContext(ctx, query, accountID.String(), calendarID)

	metadata, err := scanSyncMetadata(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return metadata, err
}

// FindByAccount finds all metadata rows for an account.
func (r *SQLiteSyncMetadataRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.SyncMetadata, error) {
	query := `
		SELECT id, account_id, calendar_id, sync_token,
			   last_sync_at, last_sync_status, error_message,
			   created_at, updated_at
		FROM sync_metadata
		WHERE account_id = ?
		ORDER BY calendar_id
	`
	rows, err := r.db.QueryContext(ctx, query, accountID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SyncMetadata
	for rows.Next() {
		metadata, err := scanSyncMetadata(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, metadata)
	}
	return out, rows.Err()
}

// Delete removes a metadata row.
func (r *SQLiteSyncMetadataRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM sync_metadata WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id.String())
	return err
}

func scanSyncMetadata(scan func(dest ...any) error) (*domain.SyncMetadata, error) {
	var (
		idStr         string
		accountIDStr  string
		calendarID    string
		syncToken     sql.NullString
		lastSyncAtStr sql.NullString
		statusStr     string
		errorMessage  sql.NullString
		createdAtStr  string
		updatedAtStr  string
	)

	err := scan(
		&idStr, &accountIDStr, &calendarID, &syncToken,
		&lastSyncAtStr, &statusStr, &errorMessage,
		&createdAtStr, &updatedAtStr,
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
	updatedAt, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, err
	}

	var lastSyncAt time.Time
	if lastSyncAtStr.Valid {
		lastSyncAt, err = time.Parse(time.RFC3339, lastSyncAtStr.String)
		if err != nil {
			return nil, err
		}
	}

	return domain.RehydrateSyncMetadata(
		id, accountID, calendarID,
		syncToken.String,
		lastSyncAt,
		domain.SyncStatus(statusStr),
		errorMessage.String,
		createdAt, updatedAt,
	), nil
}
