package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// Default sync window: a fixed rolling 3-month range centered on now.
const (
	DefaultWindowPastDays   = 45
	DefaultWindowFutureDays = 45
)

// SyncResult describes the outcome of one calendar pull.
type SyncResult struct {
	CalendarID string
	Added      int
	Updated    int
	Deleted    int
	Conflicts  int
}

// CalendarError is one calendar's failure within an account pass.
type CalendarError struct {
	CalendarID string
	Err        error
}

// AccountSyncResult collects per-calendar outcomes for one account.
// A calendar's failure never aborts its siblings.
type AccountSyncResult struct {
	AccountID uuid.UUID
	Calendars []*SyncResult
	Errors    []CalendarError
}

// EngineConfig configures the sync engine.
type EngineConfig struct {
	WindowPastDays   int
	WindowFutureDays int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WindowPastDays:   DefaultWindowPastDays,
		WindowFutureDays: DefaultWindowFutureDays,
	}
}

// Engine orchestrates pull synchronization per calendar or per account:
// window computation, incremental vs. full strategy, applying remote
// changes locally, pruning, and sync metadata bookkeeping.
type Engine struct {
	remote    RemoteClient
	calendars domain.CalendarRepository
	events    domain.EventRepository
	metadata  domain.SyncMetadataRepository
	changes   domain.PendingChangeRepository
	errorLog  domain.ErrorLogRepository
	config    EngineConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a sync engine.
func NewEngine(
	remote RemoteClient,
	calendars domain.CalendarRepository,
	events domain.EventRepository,
	metadata domain.SyncMetadataRepository,
	changes domain.PendingChangeRepository,
	errorLog domain.ErrorLogRepository,
	config EngineConfig,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if config.WindowPastDays <= 0 {
		config.WindowPastDays = DefaultWindowPastDays
	}
	if config.WindowFutureDays <= 0 {
		config.WindowFutureDays = DefaultWindowFutureDays
	}
	return &Engine{
		remote:    remote,
		calendars: calendars,
		events:    events,
		metadata:  metadata,
		changes:   changes,
		errorLog:  errorLog,
		config:    config,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Window returns the current sync window [now−past, now+future].
func (e *Engine) Window() (time.Time, time.Time) {
	now := e.now()
	return now.AddDate(0, 0, -e.config.WindowPastDays), now.AddDate(0, 0, e.config.WindowFutureDays)
}

// SyncAccount pulls every visible calendar of an account, continuing past
// per-calendar failures and collecting them.
func (e *Engine) SyncAccount(ctx context.Context, accountID uuid.UUID) (*AccountSyncResult, error) {
	calendars, err := e.calendars.FindVisibleByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading calendars: %v", ErrStore, err)
	}

	result := &AccountSyncResult{AccountID: accountID}
	for _, cal := range calendars {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		calResult, err := e.SyncCalendar(ctx, accountID, cal.ID())
		if err != nil {
			result.Errors = append(result.Errors, CalendarError{CalendarID: cal.ID(), Err: err})
			continue
		}
		result.Calendars = append(result.Calendars, calResult)
	}

	e.logger.Info("account sync completed",
		"account_id", accountID,
		"calendars", len(result.Calendars),
		"failed", len(result.Errors),
	)
	return result, nil
}

// SyncCalendar pulls one calendar: incremental when a sync token is held,
// full windowed listing otherwise. Rerunning against unchanged remote state
// performs zero further mutations.
func (e *Engine) SyncCalendar(ctx context.Context, accountID uuid.UUID, calendarID string) (*SyncResult, error) {
	from, to := e.Window()

	meta, err := e.metadata.FindByAccountAndCalendar(ctx, accountID, calendarID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading sync metadata: %v", ErrStore, err)
	}
	if meta == nil {
		meta = domain.NewSyncMetadata(accountID, calendarID)
	}

	result := &SyncResult{CalendarID: calendarID}

	token, err := e.pullChanges(ctx, accountID, calendarID, meta, meta.SyncToken(), from, to, result)
	if errors.Is(err, ErrSyncTokenExpired) && meta.SyncToken() != "" {
		// Stale cursor: clear it and fall back to one full windowed
		// listing within the same run.
		e.logger.Warn("sync token expired, falling back to full sync",
			"account_id", accountID,
			"calendar_id", calendarID,
		)
		meta.ResetSyncToken()
		token, err = e.pullChanges(ctx, accountID, calendarID, meta, "", from, to, result)
	}
	if err != nil {
		return nil, e.failSync(ctx, meta, err)
	}

	pruned, err := e.pruneOutsideWindow(ctx, accountID, calendarID, from, to)
	if err != nil {
		return nil, e.failSync(ctx, meta, err)
	}
	result.Deleted += pruned

	meta.MarkSuccess(token)
	if err := e.metadata.Save(ctx, meta); err != nil {
		return nil, fmt.Errorf("%w: saving sync metadata: %v", ErrStore, err)
	}

	e.logger.Info("calendar sync completed",
		"account_id", accountID,
		"calendar_id", calendarID,
		"added", result.Added,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"conflicts", result.Conflicts,
	)
	return result, nil
}

// pullChanges pages through the remote listing, applying each item locally.
// It returns the latest sync token seen across pages.
func (e *Engine) pullChanges(
	ctx context.Context,
	accountID uuid.UUID,
	calendarID string,
	meta *domain.SyncMetadata,
	syncToken string,
	from, to time.Time,
	result *SyncResult,
) (string, error) {
	query := ListQuery{SyncToken: syncToken}
	if syncToken == "" {
		query.TimeMin = from
		query.TimeMax = to
	}

	latestToken := syncToken
	for {
		page, err := e.remote.ListEvents(ctx, accountID, calendarID, query)
		if err != nil {
			return "", err
		}
		for _, item := range page.Items {
			if err := e.applyRemoteItem(ctx, accountID, calendarID, meta, item, result); err != nil {
				return "", err
			}
		}
		if page.NextSyncToken != "" {
			latestToken = page.NextSyncToken
		}
		if page.NextPageToken == "" {
			return latestToken, nil
		}
		query.PageToken = page.NextPageToken
	}
}

// applyRemoteItem reconciles one incoming remote event with the local store.
// When the item targets an event with an open pending change, the conflict
// detector decides whether to stash both versions instead of overwriting.
func (e *Engine) applyRemoteItem(
	ctx context.Context,
	accountID uuid.UUID,
	calendarID string,
	meta *domain.SyncMetadata,
	item RemoteEvent,
	result *SyncResult,
) error {
	existing, err := e.events.FindByID(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("%w: loading event %s: %v", ErrStore, item.ID, err)
	}

	pendings, err := e.changes.FindByEvent(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("%w: loading pending changes for %s: %v", ErrStore, item.ID, err)
	}
	var pending *domain.PendingChange
	if len(pendings) > 0 {
		pending = pendings[0]
	}

	if existing != nil && pending != nil {
		detection := Detect(existing, item, meta.LastSyncAt(), pending)
		if detection.HasConflict {
			return e.recordConflict(ctx, existing, existing.Draft(), item, detection, result)
		}
	}

	if item.Status == domain.StatusCancelled {
		if existing != nil {
			if err := e.events.Delete(ctx, existing.ID()); err != nil {
				return fmt.Errorf("%w: deleting cancelled event %s: %v", ErrStore, existing.ID(), err)
			}
		}
		result.Deleted++
		return nil
	}

	if existing == nil {
		if pending != nil && pending.Operation() == domain.OpDelete {
			return e.reconcileQueuedDelete(ctx, accountID, calendarID, meta, item, pending, result)
		}
		event, err := domain.NewSyncedEvent(item.ID, accountID, calendarID, item.EventDraft, e.now())
		if err != nil {
			return err
		}
		if err := e.events.Save(ctx, event); err != nil {
			return fmt.Errorf("%w: inserting event %s: %v", ErrStore, item.ID, err)
		}
		result.Added++
		return nil
	}

	if Equivalent(existing.Draft(), item.EventDraft) {
		// Unchanged content: no write keeps reruns idempotent.
		return nil
	}

	existing.ApplyRemote(item.EventDraft, e.now())
	if err := e.events.Save(ctx, existing); err != nil {
		return fmt.Errorf("%w: updating event %s: %v", ErrStore, existing.ID(), err)
	}
	result.Updated++
	return nil
}

// reconcileQueuedDelete handles a remote item whose local row was already
// removed by a queued delete. A remote edit since the last sync point means
// the delete would destroy content the user has not seen, so both versions
// are stashed on a restored row. An unchanged echo of the event leaves the
// queued delete standing.
func (e *Engine) reconcileQueuedDelete(
	ctx context.Context,
	accountID uuid.UUID,
	calendarID string,
	meta *domain.SyncMetadata,
	item RemoteEvent,
	pending *domain.PendingChange,
	result *SyncResult,
) error {
	candidate, err := domain.NewSyncedEvent(item.ID, accountID, calendarID, item.EventDraft, e.now())
	if err != nil {
		return err
	}
	detection := Detect(candidate, item, meta.LastSyncAt(), pending)
	if !detection.HasConflict {
		return nil
	}
	localDraft := item.EventDraft
	localDraft.Status = domain.StatusCancelled
	return e.recordConflict(ctx, candidate, localDraft, item, detection, result)
}

func (e *Engine) recordConflict(
	ctx context.Context,
	existing *domain.CalendarEvent,
	localDraft domain.EventDraft,
	item RemoteEvent,
	detection Detection,
	result *SyncResult,
) error {
	localSnap, err := json.Marshal(localDraft)
	if err != nil {
		return err
	}
	remoteSnap, err := json.Marshal(item.EventDraft)
	if err != nil {
		return err
	}
	if err := existing.MarkConflict(localSnap, remoteSnap); err != nil {
		return err
	}
	if err := e.events.Save(ctx, existing); err != nil {
		return fmt.Errorf("%w: saving conflicted event %s: %v", ErrStore, existing.ID(), err)
	}
	result.Conflicts++
	e.logger.Warn("conflict detected",
		"event_id", existing.ID(),
		"kind", string(detection.Kind),
		"reason", detection.Reason,
	)
	return nil
}

// pruneOutsideWindow deletes events whose occurrences have drifted outside
// the window. Events awaiting replay or manual conflict resolution are kept.
func (e *Engine) pruneOutsideWindow(ctx context.Context, accountID uuid.UUID, calendarID string, from, to time.Time) (int, error) {
	candidates, err := e.events.FindOutsideWindow(ctx, accountID, calendarID, from, to)
	if err != nil {
		return 0, fmt.Errorf("%w: loading prune candidates: %v", ErrStore, err)
	}

	pruned := 0
	for _, event := range candidates {
		if event.PendingSync() || event.HasConflict() {
			continue
		}
		if event.OccursWithin(from, to) {
			// A recurring series anchored outside the window can still
			// generate occurrences inside it.
			continue
		}
		if err := e.events.Delete(ctx, event.ID()); err != nil {
			return pruned, fmt.Errorf("%w: pruning event %s: %v", ErrStore, event.ID(), err)
		}
		pruned++
	}
	return pruned, nil
}

// failSync persists the error status so it survives restarts, logs it, and
// propagates the failure for the next scheduled pass.
func (e *Engine) failSync(ctx context.Context, meta *domain.SyncMetadata, cause error) error {
	meta.MarkFailure(cause.Error())
	if err := e.metadata.Save(ctx, meta); err != nil {
		e.logger.Error("failed to persist sync error status", "error", err)
	}
	if err := e.errorLog.Append(ctx, domain.NewErrorEntry("sync-engine", cause.Error())); err != nil {
		e.logger.Error("failed to append error log", "error", err)
	}
	e.logger.Error("calendar sync failed",
		"account_id", meta.AccountID(),
		"calendar_id", meta.CalendarID(),
		"error", cause,
	)
	return cause
}
