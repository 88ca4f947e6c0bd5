package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/skalley/caldrift/internal/shared/domain"
	"github.com/google/uuid"
)

// ChangeOperation is the kind of local mutation awaiting remote replay.
type ChangeOperation string

const (
	OpCreate ChangeOperation = "create"
	OpUpdate ChangeOperation = "update"
	OpDelete ChangeOperation = "delete"
)

// ErrInvalidOperation rejects unknown change operations.
var ErrInvalidOperation = errors.New("invalid change operation")

// PendingChange is one durable record of a local mutation not yet confirmed
// remotely. The store assigns a monotonically increasing sequence on first
// save; the queue replays changes in sequence order.
type PendingChange struct {
	sharedDomain.BaseEntity
	seq        int64 // 0 until persisted
	operation  ChangeOperation
	accountID  uuid.UUID
	calendarID string
	eventID    string
	payload    json.RawMessage // nil for deletes
	retryCount int
	lastError  string
}

// NewPendingChange creates a queued mutation with zero retries.
func NewPendingChange(op ChangeOperation, accountID uuid.UUID, calendarID, eventID string, payload json.RawMessage) (*PendingChange, error) {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return nil, ErrInvalidOperation
	}
	if accountID == uuid.Nil {
		return nil, ErrEmptyAccountID
	}
	if eventID == "" {
		return nil, ErrEmptyEventID
	}
	return &PendingChange{
		BaseEntity: sharedDomain.NewBaseEntity(),
		operation:  op,
		accountID:  accountID,
		calendarID: calendarID,
		eventID:    eventID,
		payload:    payload,
	}, nil
}

// Getters
func (p *PendingChange) Seq() int64                 { return p.seq }
func (p *PendingChange) Operation() ChangeOperation { return p.operation }
func (p *PendingChange) AccountID() uuid.UUID       { return p.accountID }
func (p *PendingChange) CalendarID() string         { return p.calendarID }
func (p *PendingChange) EventID() string            { return p.eventID }
func (p *PendingChange) Payload() json.RawMessage   { return p.payload }
func (p *PendingChange) RetryCount() int            { return p.retryCount }
func (p *PendingChange) LastError() string          { return p.lastError }

// AtCeiling reports whether the change has exhausted its replay attempts.
func (p *PendingChange) AtCeiling(ceiling int) bool {
	return p.retryCount >= ceiling
}

// RecordFailure increments the retry count and annotates the change with
// the latest error. At the ceiling the message is marked terminal; the
// change stays queued, visible for manual retry or discard.
func (p *PendingChange) RecordFailure(err error, ceiling int) {
	p.retryCount++
	if p.retryCount >= ceiling {
		p.lastError = fmt.Sprintf("permanently failed after %d attempts: %v", p.retryCount, err)
	} else {
		p.lastError = err.Error()
	}
	p.Touch()
}

// ResetRetries clears the retry state for a manual retry.
func (p *PendingChange) ResetRetries() {
	p.retryCount = 0
	p.lastError = ""
	p.Touch()
}

// DecodeDraft decodes the payload into an event draft.
func (p *PendingChange) DecodeDraft() (EventDraft, error) {
	var draft EventDraft
	if len(p.payload) == 0 {
		return draft, fmt.Errorf("pending change %s has no payload", p.ID())
	}
	err := json.Unmarshal(p.payload, &draft)
	return draft, err
}

// RehydratePendingChange recreates a pending change from persisted data.
func RehydratePendingChange(
	id uuid.UUID,
	seq int64,
	op ChangeOperation,
	accountID uuid.UUID,
	calendarID, eventID string,
	payload json.RawMessage,
	retryCount int,
	lastError string,
	createdAt time.Time,
) *PendingChange {
	return &PendingChange{
		BaseEntity: sharedDomain.RehydrateBaseEntity(id, createdAt, createdAt),
		seq:        seq,
		operation:  op,
		accountID:  accountID,
		calendarID: calendarID,
		eventID:    eventID,
		payload:    payload,
		retryCount: retryCount,
		lastError:  lastError,
	}
}

// PendingChangeRepository defines the interface for queued-change persistence.
type PendingChangeRepository interface {
	// Save persists a pending change; the store assigns the sequence on
	// first insert.
	Save(ctx context.Context, change *PendingChange) error

	// FindAllOrdered returns every pending change in admission order.
	FindAllOrdered(ctx context.Context) ([]*PendingChange, error)

	// FindByEvent finds open changes targeting an event, oldest first.
	FindByEvent(ctx context.Context, eventID string) ([]*PendingChange, error)

	// FindByID finds a change by ID. Returns nil when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*PendingChange, error)

	// Delete removes a change after successful replay or manual discard.
	Delete(ctx context.Context, id uuid.UUID) error
}
