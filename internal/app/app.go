// Package app wires the store, job runner, watcher, notifiers and HTTP API
// into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"repairdesk/internal/config"
	"repairdesk/internal/events"
	"repairdesk/internal/httpapi"
	"repairdesk/internal/jobs"
	"repairdesk/internal/logger"
	"repairdesk/internal/metrics"
	"repairdesk/internal/notify"
	"repairdesk/internal/pipeline"
	"repairdesk/internal/servicehistory"
	"repairdesk/internal/store"
	"repairdesk/internal/watch"
)

const eventBuffer = 64

// App wires the data plane components together.
type App struct {
	cfg        config.Config
	log        *slog.Logger
	store      *store.Store
	metrics    *metrics.Metrics
	bus        *events.Bus
	history    *servicehistory.Service
	dispatcher *notify.Dispatcher
	nats       *notify.NATSPublisher
	runner     *jobs.Runner
	watcher    *watch.Watcher
	router     *httpapi.Router
	cron       *cron.Cron
}

func New(cfg config.Config, log *slog.Logger) (*App, error) {
	for _, dir := range []string{cfg.InboxDir, cfg.ProcessedDir(), cfg.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := metrics.New()
	bus := events.NewBus()
	bus.OnDrop = func(any) { m.EventsDropped.Inc() }

	a := &App{cfg: cfg, log: log, store: st, metrics: m, bus: bus}

	var sinks []notify.Sink
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL, cfg.NotifyPerMinute, nil))
	}
	if cfg.NATSURL != "" {
		pub, err := notify.ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			st.Close()
			return nil, err
		}
		a.nats = pub
		sinks = append(sinks, pub)
	}
	a.dispatcher = notify.NewDispatcher(st, m, logger.WithComponent(log, "notify"), sinks...)

	a.history = servicehistory.NewService(st, bus, m, logger.WithComponent(log, "history"))
	registry := pipeline.BuildRegistry(cfg, st, a.history, m)
	a.runner = jobs.NewRunner(cfg, st, registry, m, logger.WithComponent(log, "jobs"))
	a.watcher = watch.New(cfg, a.runner, logger.WithComponent(log, "watch"))
	a.router = httpapi.NewRouter(httpapi.Deps{
		Config:  cfg,
		Store:   st,
		Runner:  a.runner,
		History: a.history,
		Watcher: a.watcher,
		Metrics: m,
		Log:     logger.WithComponent(log, "http"),
	})

	if cfg.SweepSchedule != "" {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(cfg.SweepSchedule, a.scheduledSweep); err != nil {
			a.Close()
			return nil, fmt.Errorf("sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
	}
	return a, nil
}

func (a *App) scheduledSweep() {
	if _, err := a.runner.Enqueue(context.Background(), jobs.SweepSubject, jobs.StageSweep, nil); err != nil {
		a.log.Warn("scheduled sweep not enqueued", "err", err)
	}
}

// Run starts workers, the dispatcher, the watcher, the sweep schedule and
// the HTTP server. It blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ch, unsubscribe := a.bus.Subscribe(eventBuffer)
	defer unsubscribe()
	go a.dispatcher.Run(ctx, ch)

	a.runner.Start(ctx)
	defer a.runner.Stop()

	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	if summary, err := a.watcher.Backfill(ctx, a.store); err != nil {
		a.log.Warn("initial backfill failed", "err", err)
	} else if summary.SelectedForBackfill > 0 {
		a.log.Info("initial backfill", "enqueued", summary.EnqueueSucceeded)
	}

	if a.cron != nil {
		a.cron.Start()
		defer a.cron.Stop()
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPPort,
		Handler:           a.router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http listening", "addr", a.cfg.HTTPPort, "sinks", a.dispatcher.Sinks())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases the store and the NATS connection.
func (a *App) Close() error {
	if a.nats != nil {
		a.nats.Close()
	}
	return a.store.Close()
}

// EnqueueStage exposes the job runner for tests and tools.
func (a *App) EnqueueStage(ctx context.Context, subject string, stage jobs.Stage, params map[string]any) (*store.Job, error) {
	return a.runner.Enqueue(ctx, subject, stage, params)
}

func (a *App) Runner() *jobs.Runner { return a.runner }
func (a *App) Store() *store.Store { return a.store }
func (a *App) History() *servicehistory.Service { return a.history }
func (a *App) Handler() http.Handler { return a.router.Handler() }
func (a *App) Dispatcher() *notify.Dispatcher { return a.dispatcher }
