package domain

import (
	"context"
	"time"

	sharedDomain "github.com/skalley/caldrift/internal/shared/domain"
	"github.com/google/uuid"
)

// SyncStatus is the outcome of the most recent sync pass for a calendar.
type SyncStatus string

const (
	SyncStatusNever   SyncStatus = ""
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// SyncMetadata tracks the synchronization cursor and outcome for one
// calendar. A present sync token implies a prior full sync completed;
// absence forces a full sync on the next run.
type SyncMetadata struct {
	sharedDomain.BaseEntity
	accountID    uuid.UUID
	calendarID   string
	syncToken    string // opaque incremental cursor from the provider
	lastSyncAt   time.Time
	lastStatus   SyncStatus
	errorMessage string
}

// NewSyncMetadata creates sync metadata for a calendar that has never synced.
func NewSyncMetadata(accountID uuid.UUID, calendarID string) *SyncMetadata {
	return &SyncMetadata{
		BaseEntity: sharedDomain.NewBaseEntity(),
		accountID:  accountID,
		calendarID: calendarID,
	}
}

// Getters
func (m *SyncMetadata) AccountID() uuid.UUID  { return m.accountID }
func (m *SyncMetadata) CalendarID() string    { return m.calendarID }
func (m *SyncMetadata) SyncToken() string     { return m.syncToken }
func (m *SyncMetadata) LastSyncAt() time.Time { return m.lastSyncAt }
func (m *SyncMetadata) LastStatus() SyncStatus { return m.lastStatus }
func (m *SyncMetadata) ErrorMessage() string  { return m.errorMessage }

// NeedsFullSync returns true when no incremental cursor is held.
func (m *SyncMetadata) NeedsFullSync() bool {
	return m.syncToken == ""
}

// MarkSuccess records a completed sync and the token for the next
// incremental run. Providers without cursors pass an empty token.
func (m *SyncMetadata) MarkSuccess(syncToken string) {
	m.syncToken = syncToken
	m.lastSyncAt = time.Now().UTC()
	m.lastStatus = SyncStatusSuccess
	m.errorMessage = ""
	m.Touch()
}

// MarkFailure records a failed sync; the stale error surfaces as a
// sync-failure indicator until the next successful pass.
func (m *SyncMetadata) MarkFailure(message string) {
	m.lastStatus = SyncStatusError
	m.errorMessage = message
	m.Touch()
}

// ResetSyncToken clears the cursor to force a full sync next run.
func (m *SyncMetadata) ResetSyncToken() {
	m.syncToken = ""
	m.Touch()
}

// RehydrateSyncMetadata recreates sync metadata from persisted data.
func RehydrateSyncMetadata(
	id uuid.UUID,
	accountID uuid.UUID,
	calendarID string,
	syncToken string,
	lastSyncAt time.Time,
	lastStatus SyncStatus,
	errorMessage string,
	createdAt, updatedAt time.Time,
) *SyncMetadata {
	return &SyncMetadata{
		BaseEntity:   sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		accountID:    accountID,
		calendarID:   calendarID,
		syncToken:    syncToken,
		lastSyncAt:   lastSyncAt,
		lastStatus:   lastStatus,
		errorMessage: errorMessage,
	}
}

// SyncMetadataRepository defines the interface for sync metadata persistence.
type SyncMetadataRepository interface {
	// Save persists sync metadata (create or update, unique per calendar).
	Save(ctx context.Context, metadata *SyncMetadata) error

	// FindByAccountAndCalendar finds metadata for a calendar. Returns nil when absent.
	FindByAccountAndCalendar(ctx context.Context, accountID uuid.UUID, calendarID string) (*SyncMetadata, error)

	// FindByAccount finds all metadata rows for an account.
	FindByAccount(ctx context.Context, accountID uuid.UUID) ([]*SyncMetadata, error)

	// Delete removes a metadata row.
	Delete(ctx context.Context, id uuid.UUID) error
}
