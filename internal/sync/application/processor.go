package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// DefaultRetryCeiling is the fixed maximum replay attempts before a queued
// mutation is treated as permanently failed.
const DefaultRetryCeiling = 3

// ItemResult is the outcome of replaying one pending change.
type ItemResult struct {
	ChangeID  uuid.UUID
	EventID   string
	Operation domain.ChangeOperation
	Success   bool
	Terminal  bool
	Error     string
}

// QueueResult summarizes one queue-processing pass.
type QueueResult struct {
	Total      int
	Successful int
	Failed     int
	Items      []ItemResult
}

// Processor drains the offline queue in admission order, replaying each
// change as a remote operation and applying the confirmed result locally.
// One change's failure never aborts its siblings; local-store failures
// abort the pass.
type Processor struct {
	remote     RemoteClient
	events     domain.EventRepository
	changes    domain.PendingChangeRepository
	tombstones domain.TombstoneRepository
	errorLog   domain.ErrorLogRepository
	ceiling    int
	logger     *slog.Logger
	now        func() time.Time
}

// NewProcessor creates a queue processor.
func NewProcessor(
	remote RemoteClient,
	events domain.EventRepository,
	changes domain.PendingChangeRepository,
	tombstones domain.TombstoneRepository,
	errorLog domain.ErrorLogRepository,
	ceiling int,
	logger *slog.Logger,
) *Processor {
	if ceiling <= 0 {
		ceiling = DefaultRetryCeiling
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		remote:     remote,
		events:     events,
		changes:    changes,
		tombstones: tombstones,
		errorLog:   errorLog,
		ceiling:    ceiling,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessQueue replays every pending change in FIFO order. Changes already
// at the retry ceiling are counted failed without a remote call and stay
// queued for manual retry or discard.
func (p *Processor) ProcessQueue(ctx context.Context) (*QueueResult, error) {
	pending, err := p.changes.FindAllOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: loading pending changes: %v", ErrStore, err)
	}

	result := &QueueResult{Total: len(pending)}
	for _, change := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		item := ItemResult{
			ChangeID:  change.ID(),
			EventID:   change.EventID(),
			Operation: change.Operation(),
		}

		if change.AtCeiling(p.ceiling) {
			item.Terminal = true
			item.Error = change.LastError()
			result.Failed++
			result.Items = append(result.Items, item)
			continue
		}

		event, err := p.events.FindByID(ctx, change.EventID())
		if err != nil {
			return result, fmt.Errorf("%w: loading event %s: %v", ErrStore, change.EventID(), err)
		}
		if event != nil && event.HasConflict() {
			// Replaying would push one side of an unresolved conflict.
			// The change stays queued, without burning a retry, until the
			// conflict is resolved.
			item.Error = "event has an unresolved conflict"
			result.Failed++
			result.Items = append(result.Items, item)
			continue
		}

		err = p.dispatch(ctx, change)
		if err == nil {
			item.Success = true
			result.Successful++
			result.Items = append(result.Items, item)
			continue
		}
		if errors.Is(err, ErrStore) {
			// The local store is the one collaborator we cannot work
			// around: propagate instead of burning a retry.
			return result, err
		}

		change.RecordFailure(err, p.ceiling)
		if saveErr := p.changes.Save(ctx, change); saveErr != nil {
			return result, fmt.Errorf("%w: recording failure on %s: %v", ErrStore, change.ID(), saveErr)
		}
		if logErr := p.errorLog.Append(ctx, domain.NewErrorEntry("queue-processor", err.Error())); logErr != nil {
			p.logger.Error("failed to append error log", "error", logErr)
		}
		p.logger.Warn("pending change replay failed",
			"change_id", change.ID(),
			"operation", string(change.Operation()),
			"retry_count", change.RetryCount(),
			"error", err,
		)

		item.Terminal = change.AtCeiling(p.ceiling)
		item.Error = change.LastError()
		result.Failed++
		result.Items = append(result.Items, item)
	}

	p.logger.Info("queue processing completed",
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
	)
	return result, nil
}

func (p *Processor) dispatch(ctx context.Context, change *domain.PendingChange) error {
	switch change.Operation() {
	case domain.OpCreate:
		return p.replayCreate(ctx, change)
	case domain.OpUpdate:
		return p.replayUpdate(ctx, change)
	case domain.OpDelete:
		return p.replayDelete(ctx, change)
	default:
		return domain.ErrInvalidOperation
	}
}

// replayCreate sends the payload remotely, then swaps the temporary
// placeholder for the confirmed event in a delete+insert transition so the
// UI never observes two representations of one logical event.
func (p *Processor) replayCreate(ctx context.Context, change *domain.PendingChange) error {
	draft, err := change.DecodeDraft()
	if err != nil {
		return err
	}

	confirmed, err := p.remote.CreateEvent(ctx, change.AccountID(), change.CalendarID(), draft)
	if err != nil {
		return err
	}

	if err := p.events.Delete(ctx, change.EventID()); err != nil {
		return fmt.Errorf("%w: removing placeholder %s: %v", ErrStore, change.EventID(), err)
	}
	event, err := domain.NewSyncedEvent(confirmed.ID, change.AccountID(), change.CalendarID(), confirmed.EventDraft, p.now())
	if err != nil {
		return err
	}
	if err := p.events.Save(ctx, event); err != nil {
		return fmt.Errorf("%w: inserting confirmed event %s: %v", ErrStore, confirmed.ID, err)
	}
	if err := p.changes.Delete(ctx, change.ID()); err != nil {
		return fmt.Errorf("%w: deleting change %s: %v", ErrStore, change.ID(), err)
	}

	p.logger.Debug("create replayed",
		"temp_id", change.EventID(),
		"remote_id", confirmed.ID,
	)
	return nil
}

func (p *Processor) replayUpdate(ctx context.Context, change *domain.PendingChange) error {
	draft, err := change.DecodeDraft()
	if err != nil {
		return err
	}

	confirmed, err := p.remote.UpdateEvent(ctx, change.AccountID(), change.CalendarID(), change.EventID(), draft)
	if err != nil {
		return err
	}

	event, err := p.events.FindByID(ctx, change.EventID())
	if err != nil {
		return fmt.Errorf("%w: loading event %s: %v", ErrStore, change.EventID(), err)
	}
	if event == nil {
		event, err = domain.NewSyncedEvent(confirmed.ID, change.AccountID(), change.CalendarID(), confirmed.EventDraft, p.now())
		if err != nil {
			return err
		}
	} else {
		event.ApplyRemote(confirmed.EventDraft, p.now())
	}
	if err := p.events.Save(ctx, event); err != nil {
		return fmt.Errorf("%w: saving confirmed event %s: %v", ErrStore, event.ID(), err)
	}
	if err := p.changes.Delete(ctx, change.ID()); err != nil {
		return fmt.Errorf("%w: deleting change %s: %v", ErrStore, change.ID(), err)
	}
	return nil
}

func (p *Processor) replayDelete(ctx context.Context, change *domain.PendingChange) error {
	if err := p.remote.DeleteEvent(ctx, change.AccountID(), change.CalendarID(), change.EventID()); err != nil {
		return err
	}

	if err := p.events.Delete(ctx, change.EventID()); err != nil {
		return fmt.Errorf("%w: deleting event %s: %v", ErrStore, change.EventID(), err)
	}
	if err := p.tombstones.Delete(ctx, change.EventID()); err != nil {
		return fmt.Errorf("%w: removing tombstone for %s: %v", ErrStore, change.EventID(), err)
	}
	if err := p.changes.Delete(ctx, change.ID()); err != nil {
		return fmt.Errorf("%w: deleting change %s: %v", ErrStore, change.ID(), err)
	}
	return nil
}
