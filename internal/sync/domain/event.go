package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

// LocalIDPrefix marks event IDs assigned locally before the first
// successful remote create.
const LocalIDPrefix = "local-"

// EventStatus is the lifecycle status of a calendar event.
type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

// Attendee is one event participant with their response status.
type Attendee struct {
	Email          string `json:"email"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// EventDraft is the mutable payload of an event: the fields a user edit or
// a remote listing can set. It serializes as the pending-change payload and
// the conflict snapshots.
type EventDraft struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Location    string      `json:"location,omitempty"`
	StartAt     time.Time   `json:"startAt"`
	EndAt       time.Time   `json:"endAt"`
	AllDay      bool        `json:"allDay,omitempty"`
	Timezone    string      `json:"timezone,omitempty"`
	Recurrence  []string    `json:"recurrence,omitempty"`
	Attendees   []Attendee  `json:"attendees,omitempty"`
	Status      EventStatus `json:"status,omitempty"`
}

// Domain errors for CalendarEvent.
var (
	ErrEmptyEventID      = errors.New("event ID cannot be empty")
	ErrMissingSnapshot   = errors.New("conflict requires both local and remote snapshots")
	ErrNoConflictToClear = errors.New("event has no conflict to resolve")
)

// CalendarEvent is one occurrence or series held in the local replica.
// Before its first successful remote create the ID carries LocalIDPrefix;
// afterwards it is the remote-assigned ID.
type CalendarEvent struct {
	id             string
	accountID      uuid.UUID
	calendarID     string
	title          string
	description    string
	location       string
	startAt        time.Time
	endAt          time.Time
	allDay         bool
	timezone       string
	recurrence     []string
	attendees      []Attendee
	status         EventStatus
	hasConflict    bool
	localSnapshot  json.RawMessage
	remoteSnapshot json.RawMessage
	pendingSync    bool
	lastSyncedAt   time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewLocalEvent creates an event from a user edit, with a temporary local ID
// and pendingSync set. The caller must enqueue a matching pending change.
func NewLocalEvent(accountID uuid.UUID, calendarID string, draft EventDraft) (*CalendarEvent, error) {
	if accountID == uuid.Nil {
		return nil, ErrEmptyAccountID
	}
	if strings.TrimSpace(calendarID) == "" {
		return nil, ErrEmptyCalendarID
	}
	e := newEvent(LocalIDPrefix+uuid.NewString(), accountID, calendarID, draft)
	e.pendingSync = true
	return e, nil
}

// NewSyncedEvent creates an event ingested from a remote listing.
func NewSyncedEvent(id string, accountID uuid.UUID, calendarID string, draft EventDraft, syncedAt time.Time) (*CalendarEvent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyEventID
	}
	if accountID == uuid.Nil {
		return nil, ErrEmptyAccountID
	}
	e := newEvent(id, accountID, calendarID, draft)
	e.lastSyncedAt = syncedAt
	return e, nil
}

func newEvent(id string, accountID uuid.UUID, calendarID string, draft EventDraft) *CalendarEvent {
	now := time.Now().UTC()
	e := &CalendarEvent{
		id:         id,
		accountID:  accountID,
		calendarID: calendarID,
		status:     StatusConfirmed,
		createdAt:  now,
		updatedAt:  now,
	}
	e.applyDraft(draft)
	return e
}

// Getters
func (e *CalendarEvent) ID() string                      { return e.id }
func (e *CalendarEvent) AccountID() uuid.UUID            { return e.accountID }
func (e *CalendarEvent) CalendarID() string              { return e.calendarID }
func (e *CalendarEvent) Title() string                   { return e.title }
func (e *CalendarEvent) Description() string             { return e.description }
func (e *CalendarEvent) Location() string                { return e.location }
func (e *CalendarEvent) StartAt() time.Time              { return e.startAt }
func (e *CalendarEvent) EndAt() time.Time                { return e.endAt }
func (e *CalendarEvent) AllDay() bool                    { return e.allDay }
func (e *CalendarEvent) Timezone() string                { return e.timezone }
func (e *CalendarEvent) Recurrence() []string            { return e.recurrence }
func (e *CalendarEvent) Attendees() []Attendee           { return e.attendees }
func (e *CalendarEvent) Status() EventStatus             { return e.status }
func (e *CalendarEvent) HasConflict() bool               { return e.hasConflict }
func (e *CalendarEvent) LocalSnapshot() json.RawMessage  { return e.localSnapshot }
func (e *CalendarEvent) RemoteSnapshot() json.RawMessage { return e.remoteSnapshot }
func (e *CalendarEvent) PendingSync() bool               { return e.pendingSync }
func (e *CalendarEvent) LastSyncedAt() time.Time         { return e.lastSyncedAt }
func (e *CalendarEvent) CreatedAt() time.Time            { return e.createdAt }
func (e *CalendarEvent) UpdatedAt() time.Time            { return e.updatedAt }

// IsLocalOnly reports whether this event has never been confirmed remotely.
func (e *CalendarEvent) IsLocalOnly() bool {
	return strings.HasPrefix(e.id, LocalIDPrefix)
}

// IsRecurring reports whether the event carries recurrence rules.
func (e *CalendarEvent) IsRecurring() bool {
	return len(e.recurrence) > 0
}

// Draft returns the event's mutable payload, used for pending-change
// payloads and conflict snapshots.
func (e *CalendarEvent) Draft() EventDraft {
	attendees := make([]Attendee, len(e.attendees))
	copy(attendees, e.attendees)
	recurrence := make([]string, len(e.recurrence))
	copy(recurrence, e.recurrence)
	return EventDraft{
		Title:       e.title,
		Description: e.description,
		Location:    e.location,
		StartAt:     e.startAt,
		EndAt:       e.endAt,
		AllDay:      e.allDay,
		Timezone:    e.timezone,
		Recurrence:  recurrence,
		Attendees:   attendees,
		Status:      e.status,
	}
}

// ApplyDraft overwrites the mutable payload from a user edit and marks the
// event as awaiting remote confirmation.
func (e *CalendarEvent) ApplyDraft(draft EventDraft) {
	e.applyDraft(draft)
	e.pendingSync = true
	e.updatedAt = time.Now().UTC()
}

// ApplyRemote overwrites the mutable payload from a remote-confirmed version
// and clears the pending flag.
func (e *CalendarEvent) ApplyRemote(draft EventDraft, syncedAt time.Time) {
	e.applyDraft(draft)
	e.pendingSync = false
	e.lastSyncedAt = syncedAt
	e.updatedAt = time.Now().UTC()
}

func (e *CalendarEvent) applyDraft(draft EventDraft) {
	e.title = draft.Title
	e.description = draft.Description
	e.location = draft.Location
	e.startAt = draft.StartAt
	e.endAt = draft.EndAt
	e.allDay = draft.AllDay
	e.timezone = draft.Timezone
	e.recurrence = draft.Recurrence
	e.attendees = draft.Attendees
	if draft.Status != "" {
		e.status = draft.Status
	}
}

// MarkSynced records a successful remote confirmation without changing content.
func (e *CalendarEvent) MarkSynced(syncedAt time.Time) {
	e.pendingSync = false
	e.lastSyncedAt = syncedAt
	e.updatedAt = time.Now().UTC()
}

// MarkConflict stashes both versions for manual resolution. Both snapshots
// are required: hasConflict=true implies both are non-null.
func (e *CalendarEvent) MarkConflict(local, remote json.RawMessage) error {
	if len(local) == 0 || len(remote) == 0 {
		return ErrMissingSnapshot
	}
	e.hasConflict = true
	e.localSnapshot = local
	e.remoteSnapshot = remote
	e.updatedAt = time.Now().UTC()
	return nil
}

// ResolveKeepLocal resolves a conflict in favor of the local version. The
// remote snapshot is discarded and the event stays queued for replay.
func (e *CalendarEvent) ResolveKeepLocal() error {
	if !e.hasConflict {
		return ErrNoConflictToClear
	}
	e.clearConflict()
	e.pendingSync = true
	return nil
}

// ResolveKeepRemote resolves a conflict in favor of the remote version,
// overwriting the local payload from the stashed remote snapshot.
func (e *CalendarEvent) ResolveKeepRemote() error {
	if !e.hasConflict {
		return ErrNoConflictToClear
	}
	var draft EventDraft
	if err := json.Unmarshal(e.remoteSnapshot, &draft); err != nil {
		return err
	}
	e.applyDraft(draft)
	e.clearConflict()
	e.pendingSync = false
	return nil
}

func (e *CalendarEvent) clearConflict() {
	e.hasConflict = false
	e.localSnapshot = nil
	e.remoteSnapshot = nil
	e.updatedAt = time.Now().UTC()
}

// OccursWithin reports whether the event has an occurrence inside
// [from, to]. Non-recurring events are checked by start time; recurring
// events expand their rules so a series anchored outside the window is kept
// while it still generates occurrences inside it.
func (e *CalendarEvent) OccursWithin(from, to time.Time) bool {
	inWindow := !e.startAt.Before(from) && !e.startAt.After(to)
	if !e.IsRecurring() {
		return inWindow
	}
	if inWindow {
		return true
	}
	set, err := rrule.StrToRRuleSet(strings.Join(e.recurrence, "\n"))
	if err != nil {
		// Unparseable rules fall back to the anchor check.
		return inWindow
	}
	set.DTStart(e.startAt)
	return len(set.Between(from, to, true)) > 0
}

// RehydrateEvent recreates an event from persisted data.
func RehydrateEvent(
	id string,
	accountID uuid.UUID,
	calendarID string,
	draft EventDraft,
	hasConflict bool,
	localSnapshot, remoteSnapshot json.RawMessage,
	pendingSync bool,
	lastSyncedAt time.Time,
	createdAt, updatedAt time.Time,
) *CalendarEvent {
	e := &CalendarEvent{
		id:             id,
		accountID:      accountID,
		calendarID:     calendarID,
		status:         StatusConfirmed,
		hasConflict:    hasConflict,
		localSnapshot:  localSnapshot,
		remoteSnapshot: remoteSnapshot,
		pendingSync:    pendingSync,
		lastSyncedAt:   lastSyncedAt,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
	e.applyDraft(draft)
	return e
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Save persists an event (insert if absent, replace if present).
	Save(ctx context.Context, event *CalendarEvent) error

	// FindByID finds an event by ID. Returns nil when absent.
	FindByID(ctx context.Context, id string) (*CalendarEvent, error)

	// FindByCalendar finds all events for a calendar.
	FindByCalendar(ctx context.Context, accountID uuid.UUID, calendarID string) ([]*CalendarEvent, error)

	// FindOutsideWindow finds events for a calendar whose start lies
	// outside [from, to], candidates for pruning.
	FindOutsideWindow(ctx context.Context, accountID uuid.UUID, calendarID string, from, to time.Time) ([]*CalendarEvent, error)

	// Delete removes an event.
	Delete(ctx context.Context, id string) error
}
