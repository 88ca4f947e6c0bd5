package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
)

// DefaultSyncInterval is the default interval between scheduled passes.
const DefaultSyncInterval = 5 * time.Minute

// ErrSyncInProgress is returned when a pass is already running; the new
// invocation is dropped, not queued.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrOffline is returned when connectivity is down and the pass is skipped.
var ErrOffline = errors.New("offline, sync skipped")

// SchedulerConfig configures the periodic sync driver.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// DefaultSchedulerConfig returns the default configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:  true,
		Interval: DefaultSyncInterval,
	}
}

// SchedulerState is a snapshot for status surfaces.
type SchedulerState struct {
	Running bool // timer armed
	Syncing bool // a pass executing
	Online  bool
}

// Scheduler drives periodic and on-demand synchronization under a
// single-flight discipline: at most one pass per process, concurrent
// triggers dropped. Construct one per process and own its lifecycle from
// the composition root.
type Scheduler struct {
	processor *Processor
	engine    *Engine
	accounts  domain.AccountRepository
	config    SchedulerConfig
	logger    *slog.Logger

	running atomic.Bool
	syncing atomic.Bool
	online  atomic.Bool

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. Connectivity starts online; the
// platform's online/offline notifications maintain it via SetOnline.
func NewScheduler(
	processor *Processor,
	engine *Engine,
	accounts domain.AccountRepository,
	config SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSyncInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		processor: processor,
		engine:    engine,
		accounts:  accounts,
		config:    config,
		logger:    logger,
	}
	s.online.Store(true)
	return s
}

// Start arms the repeating timer and runs one immediate pass. It is a no-op
// when auto-sync is disabled or the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info("auto-sync disabled, scheduler not started")
		return
	}

	s.mu.Lock()
	if s.running.Load() {
		s.mu.Unlock()
		return
	}
	s.running.Store(true)
	s.stopChan = make(chan struct{})
	stopChan := s.stopChan
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.config.Interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.tick(ctx)

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.running.Store(false)
				return
			case <-stopChan:
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop disarms the timer and waits for the loop to exit. A pass already in
// flight is not cancelled; only new passes are prevented.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return
	}
	s.running.Store(false)
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// SetOnline records a connectivity change from the platform.
func (s *Scheduler) SetOnline(online bool) {
	if s.online.Swap(online) != online {
		s.logger.Info("connectivity changed", "online", online)
	}
}

// State returns a snapshot for status indicators.
func (s *Scheduler) State() SchedulerState {
	return SchedulerState{
		Running: s.running.Load(),
		Syncing: s.syncing.Load(),
		Online:  s.online.Load(),
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	switch err := s.PerformSync(ctx); {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline):
		s.logger.Debug("scheduled pass skipped", "reason", err)
	default:
		s.logger.Error("scheduled pass failed", "error", err)
	}
}

// PerformSync runs one pass: the queue processor to completion, then a pull
// for every known account sequentially, continuing past per-account
// failures. Concurrent invocations are dropped.
func (s *Scheduler) PerformSync(ctx context.Context) error {
	if !s.online.Load() {
		return ErrOffline
	}
	if !s.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer s.syncing.Store(false)

	start := time.Now()

	if _, err := s.processor.ProcessQueue(ctx); err != nil {
		// A broken store would fail every account pull too.
		s.logger.Error("queue processing failed", "error", err)
		return err
	}

	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return err
	}

	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := s.engine.SyncAccount(ctx, account.ID())
		if err != nil {
			s.logger.Error("account sync failed",
				"account_id", account.ID(),
				"error", err,
			)
			continue
		}
		for _, calErr := range result.Errors {
			s.logger.Warn("calendar sync failed within pass",
				"account_id", account.ID(),
				"calendar_id", calErr.CalendarID,
				"error", calErr.Err,
			)
		}
	}

	s.logger.Info("sync pass completed",
		"accounts", len(accounts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
