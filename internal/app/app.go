// Package app initializes and holds the long-lived services shared by the
// commands, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/preintake/harvester/internal/clock"
	"github.com/preintake/harvester/internal/config"
	"github.com/preintake/harvester/internal/directory"
	"github.com/preintake/harvester/internal/extractor"
	"github.com/preintake/harvester/internal/fetcher"
	"github.com/preintake/harvester/internal/harvest"
	"github.com/preintake/harvester/internal/logging"
	"github.com/preintake/harvester/internal/metrics"
	"github.com/preintake/harvester/internal/report"
	"github.com/preintake/harvester/internal/store/memory"
	"github.com/preintake/harvester/internal/store/postgres"
	"github.com/preintake/harvester/internal/walker"
)

// App holds the shared, long-lived services for the application: the
// logger, the record and progress stores, and the notifier. It is built
// once at startup and handed to the commands through the cobra context.
type App struct {
	cfg           config.Config
	logger        *zap.Logger
	records       directory.RecordStore
	progressStore directory.ProgressStore
	notifier      report.Notifier
	clock         directory.Clock
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Records exposes the destination record store.
func (a *App) Records() directory.RecordStore { return a.records }

// ProgressStore exposes the checkpoint store.
func (a *App) ProgressStore() directory.ProgressStore { return a.progressStore }

// Notifier exposes the run-report channel.
func (a *App) Notifier() report.Notifier { return a.notifier }

// New builds the App from configuration. It fails fast when any critical
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing services",
		zap.String("source", cfg.Source.Name),
		zap.String("db_provider", cfg.DB.Provider),
		zap.String("notify_provider", cfg.Notify.Provider),
	)

	metrics.Init()
	if cfg.Metrics.Enabled {
		serveMetrics(cfg.Metrics.Port, logger)
	}

	var records directory.RecordStore
	var progressStore directory.ProgressStore
	switch cfg.DB.Provider {
	case "postgres":
		records, err = postgres.NewRecordStore(ctx, cfg.DB.DSN, cfg.DB.RecordTable)
		if err != nil {
			return nil, fmt.Errorf("init record store: %w", err)
		}
		progressStore, err = postgres.NewProgressStore(ctx, cfg.DB.DSN, cfg.DB.ProgressTable)
		if err != nil {
			records.Close()
			return nil, fmt.Errorf("init progress store: %w", err)
		}
	case "memory":
		logger.Warn("using in-memory stores, nothing will be persisted")
		records = memory.NewRecordStore()
		progressStore = memory.NewProgressStore()
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}

	var notifier report.Notifier
	switch cfg.Notify.Provider {
	case "pubsub":
		notifier, err = report.NewPubSubNotifier(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicID)
		if err != nil {
			records.Close()
			progressStore.Close()
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
	case "log":
		notifier = report.NewLogNotifier(logger)
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", cfg.Notify.Provider)
	}

	return &App{
		cfg:           cfg,
		logger:        logger,
		records:       records,
		progressStore: progressStore,
		notifier:      notifier,
		clock:         clock.System{},
	}, nil
}

// NewSession assembles the crawl pipeline on top of the App's services.
func (a *App) NewSession() (*harvest.Session, error) {
	f := fetcher.New(fetcher.Config{
		UserAgent:        a.cfg.Source.UserAgent,
		Timeout:          a.cfg.Timeout(),
		MaxAttempts:      a.cfg.HTTP.MaxAttempts,
		BackoffThrottled: time.Duration(a.cfg.HTTP.BackoffThrottledMs) * time.Millisecond,
		BackoffNetwork:   time.Duration(a.cfg.HTTP.BackoffNetworkMs) * time.Millisecond,
	}, a.logger)

	w, err := walker.New(f, walker.Config{
		SearchURL:     a.cfg.Source.SearchURL,
		FilterParam:   a.cfg.Source.FilterParam,
		PageParam:     a.cfg.Source.PageParam,
		DetailPattern: a.cfg.Source.DetailPattern,
		PageDelay:     time.Duration(a.cfg.Crawl.PageDelaySeconds) * time.Second,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init walker: %w", err)
	}

	ex := extractor.New(extractor.NamePolicy(a.cfg.Crawl.NamePolicy))
	profiles := harvest.NewDetailSource(f, ex, a.cfg.Source.DetailURLPrefix)

	return harvest.New(
		harvest.Config{
			Source:            a.cfg.Source.Name,
			State:             a.cfg.Source.State,
			MaxRecords:        a.cfg.Crawl.MaxRecords,
			RecordDelay:       time.Duration(a.cfg.Crawl.RecordDelaySecond) * time.Second,
			ErrorThreshold:    a.cfg.Crawl.ErrorThreshold,
			MaxFailedAttempts: a.cfg.Crawl.MaxFailedAttempts,
			BatchSize:         a.cfg.Crawl.BatchSize,
		},
		a.cfg.WorkUnits,
		w,
		profiles,
		a.records,
		a.progressStore,
		a.notifier,
		a.clock,
		a.logger,
	), nil
}

// serveMetrics exposes the Prometheus endpoint on its own listener. The
// process is a short-lived job, so a failed listener is logged, not fatal.
func serveMetrics(port int, logger *zap.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		addr := fmt.Sprintf(":%d", port)
		logger.Info("metrics listener starting", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
}

// Close shuts down the App's services and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down services")
	a.records.Close()
	a.progressStore.Close()
	if err := a.notifier.Close(); err != nil {
		a.logger.Warn("notifier close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
