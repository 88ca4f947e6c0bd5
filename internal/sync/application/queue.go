package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// Queue is the offline change queue: every local mutation is applied to the
// local store immediately and recorded durably for later remote replay.
// Enqueuing never touches the network.
type Queue struct {
	events     domain.EventRepository
	changes    domain.PendingChangeRepository
	tombstones domain.TombstoneRepository
	logger     *slog.Logger
}

// NewQueue creates an offline queue.
func NewQueue(
	events domain.EventRepository,
	changes domain.PendingChangeRepository,
	tombstones domain.TombstoneRepository,
	logger *slog.Logger,
) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		events:     events,
		changes:    changes,
		tombstones: tombstones,
		logger:     logger,
	}
}

// EnqueueCreate inserts a placeholder event with a temporary local ID and
// queues its remote creation.
func (q *Queue) EnqueueCreate(ctx context.Context, accountID uuid.UUID, calendarID string, draft domain.EventDraft) (*domain.PendingChange, error) {
	event, err := domain.NewLocalEvent(accountID, calendarID, draft)
	if err != nil {
		return nil, err
	}
	if err := q.events.Save(ctx, event); err != nil {
		return nil, fmt.Errorf("%w: inserting placeholder event: %v", ErrStore, err)
	}
	return q.append(ctx, domain.OpCreate, accountID, calendarID, event.ID(), draft)
}

// EnqueueUpdate applies an edit to the local event and queues its remote
// replay.
func (q *Queue) EnqueueUpdate(ctx context.Context, accountID uuid.UUID, calendarID, eventID string, draft domain.EventDraft) (*domain.PendingChange, error) {
	event, err := q.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading event %s: %v", ErrStore, eventID, err)
	}
	if event == nil {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	event.ApplyDraft(draft)
	if err := q.events.Save(ctx, event); err != nil {
		return nil, fmt.Errorf("%w: saving event %s: %v", ErrStore, eventID, err)
	}
	return q.append(ctx, domain.OpUpdate, accountID, calendarID, eventID, draft)
}

// EnqueueDelete removes the event locally, records a tombstone, and queues
// the remote delete. Deleting an event that never reached the remote simply
// discards it together with its queued changes.
func (q *Queue) EnqueueDelete(ctx context.Context, accountID uuid.UUID, calendarID, eventID string) (*domain.PendingChange, error) {
	event, err := q.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading event %s: %v", ErrStore, eventID, err)
	}
	if event == nil {
		return nil, fmt.Errorf("event %s not found", eventID)
	}

	if event.IsLocalOnly() {
		// Never confirmed remotely: nothing to delete upstream.
		return nil, q.discardLocalOnly(ctx, event)
	}

	if err := q.events.Delete(ctx, eventID); err != nil {
		return nil, fmt.Errorf("%w: deleting event %s: %v", ErrStore, eventID, err)
	}
	tombstone, err := domain.NewTombstone(accountID, calendarID, eventID)
	if err != nil {
		return nil, err
	}
	if err := q.tombstones.Save(ctx, tombstone); err != nil {
		return nil, fmt.Errorf("%w: saving tombstone for %s: %v", ErrStore, eventID, err)
	}
	return q.append(ctx, domain.OpDelete, accountID, calendarID, eventID, domain.EventDraft{})
}

func (q *Queue) discardLocalOnly(ctx context.Context, event *domain.CalendarEvent) error {
	open, err := q.changes.FindByEvent(ctx, event.ID())
	if err != nil {
		return fmt.Errorf("%w: loading changes for %s: %v", ErrStore, event.ID(), err)
	}
	for _, change := range open {
		if err := q.changes.Delete(ctx, change.ID()); err != nil {
			return fmt.Errorf("%w: discarding change %s: %v", ErrStore, change.ID(), err)
		}
	}
	if err := q.events.Delete(ctx, event.ID()); err != nil {
		return fmt.Errorf("%w: deleting event %s: %v", ErrStore, event.ID(), err)
	}
	q.logger.Debug("discarded local-only event", "event_id", event.ID())
	return nil
}

func (q *Queue) append(ctx context.Context, op domain.ChangeOperation, accountID uuid.UUID, calendarID, eventID string, draft domain.EventDraft) (*domain.PendingChange, error) {
	var payload json.RawMessage
	if op != domain.OpDelete {
		data, err := json.Marshal(draft)
		if err != nil {
			return nil, err
		}
		payload = data
	}

	change, err := domain.NewPendingChange(op, accountID, calendarID, eventID, payload)
	if err != nil {
		return nil, err
	}
	if err := q.changes.Save(ctx, change); err != nil {
		return nil, fmt.Errorf("%w: appending pending change: %v", ErrStore, err)
	}

	q.logger.Debug("queued local mutation",
		"change_id", change.ID(),
		"operation", string(op),
		"event_id", eventID,
	)
	return change, nil
}

// Discard removes a pending change without replaying it. A discarded create
// also drops its placeholder event.
func (q *Queue) Discard(ctx context.Context, changeID uuid.UUID) error {
	change, err := q.changes.FindByID(ctx, changeID)
	if err != nil {
		return fmt.Errorf("%w: loading change %s: %v", ErrStore, changeID, err)
	}
	if change == nil {
		return fmt.Errorf("pending change %s not found", changeID)
	}

	switch change.Operation() {
	case domain.OpCreate:
		if err := q.events.Delete(ctx, change.EventID()); err != nil {
			return fmt.Errorf("%w: deleting placeholder %s: %v", ErrStore, change.EventID(), err)
		}
	case domain.OpUpdate:
		if event, err := q.events.FindByID(ctx, change.EventID()); err == nil && event != nil {
			event.MarkSynced(event.LastSyncedAt())
			if err := q.events.Save(ctx, event); err != nil {
				return fmt.Errorf("%w: clearing pending flag on %s: %v", ErrStore, event.ID(), err)
			}
		}
	case domain.OpDelete:
		if err := q.tombstones.Delete(ctx, change.EventID()); err != nil {
			return fmt.Errorf("%w: removing tombstone for %s: %v", ErrStore, change.EventID(), err)
		}
	}

	return q.changes.Delete(ctx, changeID)
}

// Retry resets the retry state of a terminally failed change so the next
// queue pass replays it again.
func (q *Queue) Retry(ctx context.Context, changeID uuid.UUID) error {
	change, err := q.changes.FindByID(ctx, changeID)
	if err != nil {
		return fmt.Errorf("%w: loading change %s: %v", ErrStore, changeID, err)
	}
	if change == nil {
		return fmt.Errorf("pending change %s not found", changeID)
	}
	change.ResetRetries()
	return q.changes.Save(ctx, change)
}
