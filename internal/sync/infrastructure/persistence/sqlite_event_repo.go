package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// SQLiteEventRepository implements EventRepository using SQLite.
// Recurrence rules and attendees are stored as JSON text columns; the
// conflict snapshots stay NULL until a conflict is recorded.
type SQLiteEventRepository struct {
	db *sql.DB
}

// NewSQLiteEventRepository creates a new SQLite event repository.
func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

const eventColumns = `
	id, account_id, calendar_id, title, description, location,
	start_at, end_at, all_day, timezone, recurrence, attendees, status,
	has_conflict, local_snapshot, remote_snapshot,
	pending_sync, last_synced_at, created_at, updated_at
`

// Save persists an event (insert if absent, replace if present).
func (r *SQLiteEventRepository) Save(ctx context.Context, event *domain.CalendarEvent) error {
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			title = excluded.title,
			description = excluded.description,
			location = excluded.location,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			all_day = excluded.all_day,
			timezone = excluded.timezone,
			recurrence = excluded.recurrence,
			attendees = excluded.attendees,
			status = excluded.status,
			has_conflict = excluded.has_conflict,
			local_snapshot = excluded.local_snapshot,
			remote_snapshot = excluded.remote_snapshot,
			pending_sync = excluded.pending_sync,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
	`

	recurrence, err := json.Marshal(event.Recurrence())
	if err != nil {
		return err
	}
	attendees, err := json.Marshal(event.Attendees())
	if err != nil {
		return err
	}

	var localSnap, remoteSnap *string
	if s := event.LocalSnapshot(); len(s) > 0 {
		v := string(s)
		localSnap = &v
	}
	if s := event.RemoteSnapshot(); len(s) > 0 {
		v := string(s)
		remoteSnap = &v
	}

	var lastSyncedAt *string
	if !event.LastSyncedAt().IsZero() {
		t := event.LastSyncedAt().UTC().Format(time.RFC3339)
		lastSyncedAt = &t
	}

	_, err = r.db.ExecContext(ctx, query,
		event.ID(),
		event.AccountID().String(),
		event.CalendarID(),
		event.Title(),
		event.Description(),
		event.Location(),
		// Stored as UTC so RFC3339 strings compare chronologically in SQL.
		event.StartAt().UTC().Format(time.RFC3339),
		event.EndAt().UTC().Format(time.RFC3339),
		boolToInt(event.AllDay()),
		event.Timezone(),
		string(recurrence),
		string(attendees),
		string(event.Status()),
		boolToInt(event.HasConflict()),
		localSnap,
		remoteSnap,
		boolToInt(event.PendingSync()),
		lastSyncedAt,
		event.CreatedAt().UTC().Format(time.RFC3339),
		event.UpdatedAt().UTC().Format(time.RFC3339),
	)
	return err
}

// FindByID finds an event by ID.
func (r *SQLiteEventRepository) FindByID(ctx context.Context, id string) (*domain.CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	event, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return event, err
}

// FindByCalendar finds all events for a calendar.
func (r *SQLiteEventRepository) FindByCalendar(ctx context.Context, accountID uuid.UUID, calendarID string) ([]*domain.CalendarEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE account_id = ? AND calendar_id = ?
		ORDER BY start_at
	`
	return r.queryEvents(ctx, query, accountID.String(), calendarID)
}

// FindOutsideWindow finds events for a calendar whose start lies outside
// [from, to], candidates for pruning.
func (r *SQLiteEventRepository) FindOutsideWindow(ctx context.Context, accountID uuid.UUID, calendarID string, from, to time.Time) ([]*domain.CalendarEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE account_id = ? AND calendar_id = ?
		  AND (start_at < ? OR start_at > ?)
		ORDER BY start_at
	`
	return r.queryEvents(ctx, query,
		accountID.String(), calendarID,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
	)
}

// Delete removes an event.
func (r *SQLiteEventRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM events WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *SQLiteEventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*domain.CalendarEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(scan func(dest ...any) error) (*domain.CalendarEvent, error) {
	var (
		id              string
		accountIDStr    string
		calendarID      string
		title           string
		description     string
		location        string
		startAtStr      string
		endAtStr        string
		allDay          int
		timezone        string
		recurrenceJSON  string
		attendeesJSON   string
		status          string
		hasConflict     int
		localSnapshot   sql.NullString
		remoteSnapshot  sql.NullString
		pendingSync     int
		lastSyncedAtStr sql.NullString
		createdAtStr    string
		updatedAtStr    string
	)

	err := scan(
		&id, &accountIDStr, &calendarID, &title, &description, &location,
		&startAtStr, &endAtStr, &allDay, &timezone, &recurrenceJSON, &attendeesJSON, &status,
		&hasConflict, &localSnapshot, &remoteSnapshot,
		&pendingSync, &lastSyncedAtStr, &createdAtStr, &updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		return nil, err
	}
	startAt, err := time.Parse(time.RFC3339, startAtStr)
	if err != nil {
		return nil, err
	}
	endAt, err := time.Parse(time.RFC3339, endAtStr)
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

	var lastSyncedAt time.Time
	if lastSyncedAtStr.Valid {
		lastSyncedAt, err = time.Parse(time.RFC3339, lastSyncedAtStr.String)
		if err != nil {
			return nil, err
		}
	}

	var recurrence []string
	if err := json.Unmarshal([]byte(recurrenceJSON), &recurrence); err != nil {
		return nil, err
	}
	var attendees []domain.Attendee
	if err := json.Unmarshal([]byte(attendeesJSON), &attendees); err != nil {
		return nil, err
	}

	draft := domain.EventDraft{
		Title:       title,
		Description: description,
		Location:    location,
		StartAt:     startAt,
		EndAt:       endAt,
		AllDay:      allDay != 0,
		Timezone:    timezone,
		Recurrence:  recurrence,
		Attendees:   attendees,
		Status:      domain.EventStatus(status),
	}

	var localSnap, remoteSnap json.RawMessage
	if localSnapshot.Valid {
		localSnap = json.RawMessage(localSnapshot.String)
	}
	if remoteSnapshot.Valid {
		remoteSnap = json.RawMessage(remoteSnapshot.String)
	}

	return domain.RehydrateEvent(
		id, accountID, calendarID, draft,
		hasConflict != 0, localSnap, remoteSnap,
		pendingSync != 0, lastSyncedAt,
		createdAt, updatedAt,
	), nil
}
