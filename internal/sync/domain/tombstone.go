package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tombstone marks a locally-deleted event awaiting remote delete
// confirmation. It is removed once the remote delete is confirmed.
type Tombstone struct {
	eventID    string
	accountID  uuid.UUID
	calendarID string
	deletedAt  time.Time
}

// NewTombstone records a local deletion.
func NewTombstone(accountID uuid.UUID, calendarID, eventID string) (*Tombstone, error) {
	if eventID == "" {
		return nil, ErrEmptyEventID
	}
	if accountID == uuid.Nil {
		return nil, ErrEmptyAccountID
	}
	return &Tombstone{
		eventID:    eventID,
		accountID:  accountID,
		calendarID: calendarID,
		deletedAt:  time.Now().UTC(),
	}, nil
}

// Getters
func (t *Tombstone) EventID() string       { return t.eventID }
func (t *Tombstone) AccountID() uuid.UUID  { return t.accountID }
func (t *Tombstone) CalendarID() string    { return t.calendarID }
func (t *Tombstone) DeletedAt() time.Time  { return t.deletedAt }

// RehydrateTombstone recreates a tombstone from persisted data.
func RehydrateTombstone(accountID uuid.UUID, calendarID, eventID string, deletedAt time.Time) *Tombstone {
	return &Tombstone{
		eventID:    eventID,
		accountID:  accountID,
		calendarID: calendarID,
		deletedAt:  deletedAt,
	}
}

// TombstoneRepository defines the interface for tombstone persistence.
type TombstoneRepository interface {
	// Save persists a tombstone.
	Save(ctx context.Context, tombstone *Tombstone) error

	// FindByEvent finds a tombstone by event ID. Returns nil when absent.
	FindByEvent(ctx context.Context, eventID string) (*Tombstone, error)

	// FindByAccount finds all tombstones for an account.
	FindByAccount(ctx context.Context, accountID uuid.UUID) ([]*Tombstone, error)

	// Delete removes a tombstone once the remote delete is confirmed.
	Delete(ctx context.Context, eventID string) error
}
