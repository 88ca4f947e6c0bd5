package domain

import (
	"context"
	"time"

	sharedDomain "github.com/skalley/caldrift/internal/shared/domain"
	"github.com/google/uuid"
)

// ErrorEntry is one append-only diagnostic record. It feeds the
// troubleshooting surface only and never drives control flow.
type ErrorEntry struct {
	sharedDomain.BaseEntity
	source  string
	message string
}

// NewErrorEntry records a failure for later inspection.
func NewErrorEntry(source, message string) *ErrorEntry {
	return &ErrorEntry{
		BaseEntity: sharedDomain.NewBaseEntity(),
		source:     source,
		message:    message,
	}
}

// Getters
func (e *ErrorEntry) Source() string  { return e.source }
func (e *ErrorEntry) Message() string { return e.message }

// RehydrateErrorEntry recreates an error entry from persisted data.
func RehydrateErrorEntry(id uuid.UUID, source, message string, createdAt time.Time) *ErrorEntry {
	return &ErrorEntry{
		BaseEntity: sharedDomain.RehydrateBaseEntity(id, createdAt, createdAt),
		source:     source,
		message:    message,
	}
}

// ErrorLogRepository defines the interface for the diagnostic log.
type ErrorLogRepository interface {
	// Append adds an entry to the log.
	Append(ctx context.Context, entry *ErrorEntry) error

	// FindRecent returns the newest entries, newest first.
	FindRecent(ctx context.Context, limit int) ([]*ErrorEntry, error)
}
