// Package agent assembles and runs the sync agent: it wires the local
// cache, the remote store, the blob uploader and the connectivity monitor
// into a sync engine, handles graceful shutdown, and drives reconciliation
// either once or on every reachability event.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/binlift/binlift/internal/blob"
	"github.com/binlift/binlift/internal/common"
	"github.com/binlift/binlift/internal/config"
	"github.com/binlift/binlift/internal/connectivity"
	"github.com/binlift/binlift/internal/logging"
	"github.com/binlift/binlift/internal/remote"
	"github.com/binlift/binlift/internal/repositories"
	"github.com/binlift/binlift/internal/sync"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   *repositories.Repositories
	store   *remote.PostgresStore
	monitor *connectivity.Monitor
	engine  *sync.Engine
}

// NewApp wires all collaborators from configuration. The remote schema is
// migrated here so a fresh store is usable on first run.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.OwnerID == "" {
		return nil, errors.New("owner id is required (flag -o or BINLIFT_OWNER_ID)")
	}

	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	logger := logging.NewSlogLogger(slog.New(handler)).With("owner", cfg.OwnerID)

	repos, err := repositories.InitDatabase(ctx, cfg.LocalDatabaseDSN, cfg.LockoutPolicy())
	if err != nil {
		return nil, fmt.Errorf("local db init error: %w", err)
	}

	store, err := remote.NewPostgresStore(ctx, cfg.RemoteDatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("remote db init error: %w", err)
	}
	if err := store.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("remote migrations error: %w", err)
	}

	uploader, err := blob.NewS3Uploader(ctx, blob.Config{
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		MaxRetries:   cfg.UploadMaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	monitor := connectivity.NewMonitor(
		connectivity.HTTPProbe{URL: cfg.ProbeURL},
		cfg.ProbeInterval,
		logger,
	)

	engine, err := sync.NewEngine(sync.Config{
		Drafts:           repos.Drafts,
		Attachments:      repos.Attachments,
		Status:           repos.SyncStatus,
		Remote:           store,
		Uploader:         uploader,
		Net:              monitor,
		Logger:           logger,
		AttachmentFolder: cfg.AttachmentFolder,
	})
	if err != nil {
		return nil, fmt.Errorf("engine init error: %w", err)
	}

	return &App{
		config:  cfg,
		logger:  logger,
		repos:   repos,
		store:   store,
		monitor: monitor,
		engine:  engine,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run drives reconciliation until the context is cancelled. In watch mode
// the monitor triggers a pass on every offline->online edge; otherwise a
// single pass runs and the process exits.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)
	defer app.close(ctx)

	if !app.config.Watch {
		return app.runOnce(ctx)
	}

	app.logger.Info(ctx, "starting sync agent", "probe", app.config.ProbeURL, "interval", app.config.ProbeInterval)

	app.monitor.OnReachable(func(ctx context.Context) {
		app.pass(ctx)
	})
	app.monitor.Run(ctx)

	app.logger.Info(ctx, "sync agent stopped")
	return nil
}

// runOnce probes reachability synchronously, runs one pass and reports.
func (app *App) runOnce(ctx context.Context) error {
	if !app.monitor.CheckNow(ctx) {
		return fmt.Errorf("%w: %s unreachable", common.ErrOffline, app.config.ProbeURL)
	}

	report, err := app.engine.SyncAll(ctx, app.config.OwnerID)
	if err != nil {
		return err
	}
	app.logReport(ctx, report)
	if !report.Clean() {
		return fmt.Errorf("%d record(s) failed to sync", len(report.Failures))
	}
	app.evict(ctx)
	return nil
}

// pass runs one reconciliation in watch mode. Errors are logged, never
// fatal: the next reachability event retries.
func (app *App) pass(ctx context.Context) {
	report, err := app.engine.SyncAll(ctx, app.config.OwnerID)
	if err != nil {
		app.logger.Error(ctx, "sync pass failed", "error", err)
		return
	}
	app.logReport(ctx, report)
	if report.Clean() && !report.Skipped && !report.Coalesced {
		app.evict(ctx)
	}
}

func (app *App) logReport(ctx context.Context, r *sync.SyncReport) {
	for _, f := range r.Failures {
		app.logger.Warn(ctx, "record failed to sync", "id", f.ID, "stage", f.Stage, "error", f.Err)
	}
}

func (app *App) evict(ctx context.Context) {
	n, err := app.engine.EvictSynced(ctx, app.config.RetentionWindow)
	if err != nil {
		app.logger.Warn(ctx, "cache eviction failed", "error", err)
		return
	}
	if n > 0 {
		app.logger.Info(ctx, "evicted synced drafts", "count", n)
	}
}

func (app *App) close(ctx context.Context) {
	if err := app.store.Close(); err != nil {
		app.logger.Warn(ctx, "closing remote store", "error", err)
	}
	if err := app.repos.DB.Close(); err != nil {
		app.logger.Warn(ctx, "closing local cache", "error", err)
	}
}
