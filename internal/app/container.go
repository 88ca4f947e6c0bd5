// Package app wires caldrift's dependencies into a single container.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/skalley/caldrift/internal/shared/infrastructure/database/sqlite"
	"github.com/skalley/caldrift/internal/shared/infrastructure/migrations"
	"github.com/skalley/caldrift/internal/sync/application"
	"github.com/skalley/caldrift/internal/sync/domain"
	caldavclient "github.com/skalley/caldrift/internal/sync/infrastructure/caldav"
	googleclient "github.com/skalley/caldrift/internal/sync/infrastructure/google"
	"github.com/skalley/caldrift/internal/sync/infrastructure/persistence"
	"github.com/skalley/caldrift/pkg/config"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	DB *sql.DB

	// Repositories
	AccountRepo       domain.AccountRepository
	CalendarRepo      domain.CalendarRepository
	EventRepo         domain.EventRepository
	SyncMetadataRepo  domain.SyncMetadataRepository
	PendingChangeRepo domain.PendingChangeRepository
	TombstoneRepo     domain.TombstoneRepository
	ErrorLogRepo      domain.ErrorLogRepository

	// Remote providers, keyed by account provider name.
	Registry *application.Registry

	// Provider clients, exposed for calendar discovery.
	GoogleClient *googleclient.Client
	CalDAVClient *caldavclient.Client

	// Application services
	Queue     *application.Queue
	Processor *application.Processor
	Engine    *application.Engine
	Resolver  *application.Resolver
	Scheduler *application.Scheduler
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
		DB:     db,

		AccountRepo:       persistence.NewSQLiteAccountRepository(db),
		CalendarRepo:      persistence.NewSQLiteCalendarRepository(db),
		EventRepo:         persistence.NewSQLiteEventRepository(db),
		SyncMetadataRepo:  persistence.NewSQLiteSyncMetadataRepository(db),
		PendingChangeRepo: persistence.NewSQLitePendingChangeRepository(db),
		TombstoneRepo:     persistence.NewSQLiteTombstoneRepository(db),
		ErrorLogRepo:      persistence.NewSQLiteErrorLogRepository(db),
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuthTokenURL},
	}
	tokens := googleclient.NewAccountTokenProvider(oauthConfig, c.AccountRepo)
	c.GoogleClient = googleclient.NewClient(tokens, logger)
	c.CalDAVClient = caldavclient.NewClient(c.AccountRepo, logger)

	c.Registry = application.NewRegistry(c.AccountRepo)
	c.Registry.Register("google", c.GoogleClient)
	c.Registry.Register("caldav", c.CalDAVClient)

	c.Queue = application.NewQueue(c.EventRepo, c.PendingChangeRepo, c.TombstoneRepo, logger)
	c.Processor = application.NewProcessor(
		c.Registry, c.EventRepo, c.PendingChangeRepo, c.TombstoneRepo, c.ErrorLogRepo,
		cfg.RetryCeiling, logger,
	)
	c.Engine = application.NewEngine(
		c.Registry, c.CalendarRepo, c.EventRepo, c.SyncMetadataRepo,
		c.PendingChangeRepo, c.ErrorLogRepo,
		application.EngineConfig{
			WindowPastDays:   cfg.WindowPastDays,
			WindowFutureDays: cfg.WindowFutureDays,
		},
		logger,
	)
	c.Resolver = application.NewResolver(c.EventRepo, c.PendingChangeRepo, c.TombstoneRepo, logger)
	c.Scheduler = application.NewScheduler(
		c.Processor, c.Engine, c.AccountRepo,
		application.SchedulerConfig{
			Enabled:  cfg.AutoSyncEnabled,
			Interval: cfg.SyncInterval,
		},
		logger,
	)

	return c, nil
}

// Close stops the scheduler and releases resources.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
