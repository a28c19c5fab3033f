// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scrinshot/scrinshotd/internal/api"
	"github.com/scrinshot/scrinshotd/internal/capture"
	"github.com/scrinshot/scrinshotd/internal/clock/system"
	"github.com/scrinshot/scrinshotd/internal/config"
	"github.com/scrinshot/scrinshotd/internal/hash/sha256"
	"github.com/scrinshot/scrinshotd/internal/id/uuid"
	"github.com/scrinshot/scrinshotd/internal/metrics"
	logn "github.com/scrinshot/scrinshotd/internal/notify/log"
	psn "github.com/scrinshot/scrinshotd/internal/notify/pubsub"
	"github.com/scrinshot/scrinshotd/internal/pipeline"
	"github.com/scrinshot/scrinshotd/internal/progress"
	"github.com/scrinshot/scrinshotd/internal/progress/sinks"
	"github.com/scrinshot/scrinshotd/internal/scheduler"
	"github.com/scrinshot/scrinshotd/internal/screenshot"
	"github.com/scrinshot/scrinshotd/internal/storage/gcs"
	"github.com/scrinshot/scrinshotd/internal/storage/local"
	"github.com/scrinshot/scrinshotd/internal/storage/memory"
	"github.com/scrinshot/scrinshotd/internal/storage/postgres"
	"github.com/scrinshot/scrinshotd/internal/trigger"
)

// App holds all the shared, long-lived services for the service. It is
// initialized once at startup and torn down by Close.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Store     screenshot.JobStore
	Blobs     screenshot.BlobStore
	Engine    screenshot.CaptureEngine
	Notifier  screenshot.Notifier
	Hub       *progress.Hub
	Scheduler *scheduler.Scheduler
	Server    *api.Server

	closers []func(context.Context)
}

// New builds the provider graph from configuration. It fails fast when
// any backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	clk := system.New()

	if err := a.initBlobs(ctx, logger); err != nil {
		return nil, err
	}
	if err := a.initStore(ctx, clk, logger); err != nil {
		return nil, err
	}
	if err := a.initEngine(clk, logger); err != nil {
		return nil, err
	}
	if err := a.initNotifier(ctx, logger); err != nil {
		return nil, err
	}

	a.Hub = progress.NewHub(
		progress.Config{Logger: logger},
		sinks.NewLog(logger),
		sinks.NewPrometheus(),
	)
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := a.Hub.Close(ctx); err != nil {
			logger.Warn("error closing progress hub", zap.Error(err))
		}
	})

	pipe := pipeline.New(a.Engine, a.Store, a.Notifier, clk, a.Hub, logger)
	table := trigger.NewTable(logger)
	a.Scheduler = scheduler.New(table, pipe, clk, scheduler.Config{
		FireLead:     cfg.Scheduler.FireLead,
		FireTimeout:  cfg.Scheduler.FireTimeout,
		HonorCadence: cfg.Scheduler.HonorCadence,
	}, a.Hub, logger)
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := a.Scheduler.Stop(ctx); err != nil {
			logger.Warn("error stopping scheduler", zap.Error(err))
		}
	})

	a.Server = api.NewServer(a.Store, a.Blobs, a.Scheduler, uuid.New(), cfg, logger)
	return a, nil
}

func (a *App) initBlobs(ctx context.Context, logger *zap.Logger) error {
	switch a.cfg.Storage.Provider {
	case "memory":
		logger.Info("using in-memory blob storage; artifacts are lost on restart")
		a.Blobs = memory.NewBlobStore()
	case "local":
		logger.Info("using local blob storage", zap.String("base_dir", a.cfg.Storage.BaseDir))
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("failed to initialize local storage: %w", err)
		}
		a.Blobs = blobs
	case "gcs":
		logger.Info("using GCS blob storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		blobs, err := gcs.New(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("failed to initialize gcs storage: %w", err)
		}
		a.Blobs = blobs
		a.closers = append(a.closers, func(context.Context) {
			if err := blobs.Close(); err != nil {
				logger.Warn("error closing gcs client", zap.Error(err))
			}
		})
	default:
		return fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
	return nil
}

func (a *App) initStore(ctx context.Context, clk screenshot.Clock, logger *zap.Logger) error {
	switch a.cfg.Store.Provider {
	case "memory":
		logger.Info("using in-memory job store; jobs are lost on restart")
		a.Store = memory.NewJobStore(memory.JobStoreConfig{
			MaxArtifacts: a.cfg.Retention.MaxArtifacts,
		}, clk)
	case "postgres":
		logger.Info("connecting to PostgreSQL")
		store, err := postgres.NewJobStore(ctx, postgres.JobStoreConfig{
			DSN:             a.cfg.Store.DSN,
			MaxConns:        a.cfg.Store.MaxConns,
			MinConns:        a.cfg.Store.MinConns,
			MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
			MaxArtifacts:    a.cfg.Retention.MaxArtifacts,
		}, clk)
		if err != nil {
			return fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return err
		}
		a.Store = store
		a.closers = append(a.closers, func(context.Context) { store.Close() })
	default:
		return fmt.Errorf("unknown store provider: %s", a.cfg.Store.Provider)
	}
	return nil
}

func (a *App) initEngine(clk screenshot.Clock, logger *zap.Logger) error {
	hasher := sha256.New()
	ids := uuid.New()
	switch a.cfg.Capture.Engine {
	case "chromedp":
		engine, err := capture.NewChromedp(capture.Config{
			MaxParallel:       a.cfg.Capture.MaxParallel,
			UserAgent:         a.cfg.Capture.UserAgent,
			NavigationTimeout: a.cfg.Capture.NavigationTimeout,
			ViewportWidth:     a.cfg.Capture.ViewportWidth,
			ViewportHeight:    a.cfg.Capture.ViewportHeight,
		}, a.Blobs, hasher, ids, clk)
		if err != nil {
			return fmt.Errorf("failed to initialize chromedp engine: %w", err)
		}
		a.Engine = engine
		a.closers = append(a.closers, func(context.Context) { engine.Close() })
	case "static":
		logger.Info("using static capture engine; screenshots are placeholders")
		a.Engine = capture.NewStatic(a.Blobs, hasher, ids, clk)
	default:
		return fmt.Errorf("unknown capture engine: %s", a.cfg.Capture.Engine)
	}
	return nil
}

func (a *App) initNotifier(ctx context.Context, logger *zap.Logger) error {
	switch a.cfg.Notifier.Provider {
	case "log":
		a.Notifier = logn.New(logger)
	case "pubsub":
		logger.Info("connecting to GCP Pub/Sub", zap.String("topic", a.cfg.Notifier.TopicName))
		notifier, err := psn.New(ctx, a.cfg.Notifier.ProjectID, a.cfg.Notifier.TopicName, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize pubsub notifier: %w", err)
		}
		a.Notifier = notifier
		a.closers = append(a.closers, func(context.Context) {
			if err := notifier.Close(); err != nil {
				logger.Warn("error closing pubsub notifier", zap.Error(err))
			}
		})
	default:
		return fmt.Errorf("unknown notifier provider: %s", a.cfg.Notifier.Provider)
	}
	return nil
}

// Restore re-installs triggers for every active job and starts the
// scheduler. Called once at boot, after New.
func (a *App) Restore(ctx context.Context) error {
	jobs, err := a.Store.ListActiveJobs(ctx)
	if err != nil {
		return fmt.Errorf("list active jobs: %w", err)
	}
	a.Scheduler.Restore(jobs)
	a.Scheduler.Start()
	a.logger.Info("scheduler started", zap.Int("restored_jobs", len(jobs)))
	return nil
}

// Close gracefully shuts down all services, newest first.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	// Best-effort flush; stderr sync failures are expected on some platforms.
	_ = a.logger.Sync()
}
