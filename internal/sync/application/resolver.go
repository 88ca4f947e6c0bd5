package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skalley/caldrift/internal/sync/domain"
)

// Resolver applies a manual conflict decision to an event and reconciles the
// offline queue with it. Keeping the local version re-queues it for push;
// keeping the remote version withdraws the losing queued change so it is
// never replayed.
type Resolver struct {
	events     domain.EventRepository
	changes    domain.PendingChangeRepository
	tombstones domain.TombstoneRepository
	logger     *slog.Logger
}

// NewResolver creates a conflict resolver.
func NewResolver(
	events domain.EventRepository,
	changes domain.PendingChangeRepository,
	tombstones domain.TombstoneRepository,
	logger *slog.Logger,
) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		events:     events,
		changes:    changes,
		tombstones: tombstones,
		logger:     logger,
	}
}

// KeepLocal resolves a conflict in favor of the local version. The event is
// flagged for push again; any queued change for it resumes replaying.
func (r *Resolver) KeepLocal(ctx context.Context, eventID string) error {
	event, err := r.loadConflicted(ctx, eventID)
	if err != nil {
		return err
	}
	if err := event.ResolveKeepLocal(); err != nil {
		return err
	}
	if err := r.events.Save(ctx, event); err != nil {
		return fmt.Errorf("%w: saving resolved event %s: %v", ErrStore, eventID, err)
	}
	r.logger.Info("conflict resolved", "event_id", eventID, "kept", "local")
	return nil
}

// KeepRemote resolves a conflict in favor of the remote version and deletes
// every queued change for the event, so the overridden local draft never
// reaches the remote.
func (r *Resolver) KeepRemote(ctx context.Context, eventID string) error {
	event, err := r.loadConflicted(ctx, eventID)
	if err != nil {
		return err
	}
	if err := event.ResolveKeepRemote(); err != nil {
		return err
	}
	if err := r.events.Save(ctx, event); err != nil {
		return fmt.Errorf("%w: saving resolved event %s: %v", ErrStore, eventID, err)
	}

	open, err := r.changes.FindByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("%w: loading pending changes for %s: %v", ErrStore, eventID, err)
	}
	for _, change := range open {
		if change.Operation() == domain.OpDelete {
			if err := r.tombstones.Delete(ctx, eventID); err != nil {
				return fmt.Errorf("%w: removing tombstone for %s: %v", ErrStore, eventID, err)
			}
		}
		if err := r.changes.Delete(ctx, change.ID()); err != nil {
			return fmt.Errorf("%w: withdrawing change %s: %v", ErrStore, change.ID(), err)
		}
	}

	r.logger.Info("conflict resolved",
		"event_id", eventID,
		"kept", "remote",
		"withdrawn_changes", len(open),
	)
	return nil
}

func (r *Resolver) loadConflicted(ctx context.Context, eventID string) (*domain.CalendarEvent, error) {
	event, err := r.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading event %s: %v", ErrStore, eventID, err)
	}
	if event == nil {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	return event, nil
}
