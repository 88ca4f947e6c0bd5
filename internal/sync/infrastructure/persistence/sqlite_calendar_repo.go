package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// SQLiteCalendarRepository implements CalendarRepository using SQLite.
type SQLiteCalendarRepository struct {
	db *sql.DB
}

// NewSQLiteCalendarRepository creates a new SQLite calendar repository.
func NewSQLiteCalendarRepository(db *sql.DB) *SQLiteCalendarRepository {
	return &SQLiteCalendarRepository{db: db}
}

// Save persists a calendar (create or update).
func (r *SQLiteCalendarRepository) Save(ctx context.Context, calendar *domain.Calendar) error {
	query := `
		INSERT INTO calendars (
			id, account_id, name, color, visible, is_primary,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			visible = excluded.visible,
			is_primary = excluded.is_primary,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		calendar.ID(),
		calendar.AccountID().String(),
		calendar.Name(),
		calendar.Color(),
		boolToInt(calendar.Visible()),
		boolToInt(calendar.Primary()),
		calendar.CreatedAt().Format(time.RFC3339),
		calendar.UpdatedAt().Format(time.RFC3339),
	)
	return err
}

// FindByAccountAndID finds a calendar by account and remote ID.
func (r *SQLiteCalendarRepository) FindByAccountAndID(ctx context.Context, accountID uuid.UUID, id string) (*domain.Calendar, error) {
	query := `
		SELECT id, account_id, name, color, visible, is_primary,
			   created_at, updated_at
		FROM calendars
		WHERE account_id = ? AND id = ?
	`
	row := r.db.QueryRowContext(ctx, query, accountID.String(), id)

	calendar, err := scanCalendar(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return calendar, err
}

// FindByAccount finds all calendars for an account.
func (r *SQLiteCalendarRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Calendar, error) {
	query := `
		SELECT id, account_id, name, color, visible, is_primary,
			   created_at, updated_at
		FROM calendars
		WHERE account_id = ?
		ORDER BY is_primary DESC, name
	`
	return r.queryCalendars(ctx, query, accountID.String())
}

// FindVisibleByAccount finds calendars included in sync for an account.
func (r *SQLiteCalendarRepository) FindVisibleByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Calendar, error) {
	query := `
		SELECT id, account_id, name, color, visible, is_primary,
			   created_at, updated_at
		FROM calendars
		WHERE account_id = ? AND visible = 1
		ORDER BY is_primary DESC, name
	`
	return r.queryCalendars(ctx, query, accountID.String())
}

// Delete removes a calendar.
func (r *SQLiteCalendarRepository) Delete(ctx context.Context, accountID uuid.UUID, id string) error {
	query := `DELETE FROM calendars WHERE account_id = ? AND id = ?`
	_, err := r.db.ExecContext(ctx, query, accountID.String(), id)
	return err
}

func (r *SQLiteCalendarRepository) queryCalendars(ctx context.Context, query string, args ...any) ([]*domain.Calendar, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calendars []*domain.Calendar
	for rows.Next() {
		calendar, err := scanCalendar(rows.Scan)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, calendar)
	}
	return calendars, rows.Err()
}

func scanCalendar(scan func(dest ...any) error) (*domain.Calendar, error) {
	var (
		id           string
		accountIDStr string
		name         string
		color        string
		visible      int
		primary      int
		createdAtStr string
		updatedAtStr string
	)

	if err := scan(&id, &accountIDStr, &name, &color, &visible, &primary, &createdAtStr, &updatedAtStr); err != nil {
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

	return domain.RehydrateCalendar(id, accountID, name, color, visible != 0, primary != 0, createdAt, updatedAt), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
