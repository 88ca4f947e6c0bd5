package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// SQLiteErrorLogRepository implements ErrorLogRepository using SQLite.
type SQLiteErrorLogRepository struct {
	db *sql.DB
}

// NewSQLiteErrorLogRepository creates a new SQLite error log repository.
func NewSQLiteErrorLogRepository(db *sql.DB) *SQLiteErrorLogRepository {
	return &SQLiteErrorLogRepository{db: db}
}

// Append adds an entry to the log.
func (r *SQLiteErrorLogRepository) Append(ctx context.Context, entry *domain.ErrorEntry) error {
	query := `
		INSERT INTO error_log (id, source, message, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID().String(),
		entry.Source(),
		entry.Message(),
		entry.CreatedAt().Format(time.RFC3339),
	)
	return err
}

// FindRecent returns the newest entries, newest first.
func (r *SQLiteErrorLogRepository) FindRecent(ctx context.Context, limit int) ([]*domain.ErrorEntry, error) {
	query := `
		SELECT id, source, message, created_at
		FROM error_log
		ORDER BY rowid DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.ErrorEntry
	for rows.Next() {
		var (
			idStr        string
			source       string
			message      string
			createdAtStr string
		)
		if err := rows.Scan(&idStr, &source, &message, &createdAtStr); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.RehydrateErrorEntry(id, source, message, createdAt))
	}
	return entries, rows.Err()
}
