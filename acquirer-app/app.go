package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/colosseo-ops/acquirer/acquirer-app/config"
	"github.com/colosseo-ops/acquirer/metrics"
	apisrv "github.com/colosseo-ops/acquirer/server/api"
	apimw "github.com/colosseo-ops/acquirer/server/api/middleware"
	"github.com/colosseo-ops/acquirer/x/control"
	"github.com/colosseo-ops/acquirer/x/registry"
	"github.com/colosseo-ops/acquirer/x/store"
)

// App wires the coordination store, lifecycle registry and control plane
// behind one HTTP server.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	store     *store.Redis
	registry  *registry.Registry
	control   *control.Server
	apiServer *apisrv.Server

	startedAt time.Time
	cancel    context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:       cfg,
		log:       log.With().Str("component", "app").Logger(),
		startedAt: time.Now().UTC(),
	}

	if err := app.initialize(log); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

func (a *App) initialize(log zerolog.Logger) error {
	st, err := store.New(a.cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("failed to connect coordination store: %w", err)
	}
	a.store = st

	a.registry = registry.New(log, st)
	a.control = control.NewServer(a.cfg.Monitor, log, a.registry, st, nil, nil)

	return a.initializeAPIServer(log)
}

func (a *App) initializeAPIServer(log zerolog.Logger) error {
	s := apisrv.NewServer(a.cfg.API, log)
	s.Use(apimw.RequestID())
	s.Use(apimw.Recover(log))
	s.Use(apimw.Logger(log))

	// Health/readiness/stats
	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)

	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path,
			promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	a.control.RegisterMux(s.Router)

	a.apiServer = s
	return nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfg.Watch(func(mc control.Config) {
		a.control.SetPollInterval(mc.PollInterval)
	})

	go a.sweeper(runCtx)
	go a.statsReporter(runCtx)

	apiErr := make(chan error, 1)
	go func() {
		apiErr <- a.apiServer.Start(runCtx)
	}()

	return a.runWithGracefulShutdown(runCtx, apiErr)
}

func (a *App) runWithGracefulShutdown(ctx context.Context, apiErr <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info().Msg("Acquirer started successfully")

	var serveErr error
	serverDown := false
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case serveErr = <-apiErr:
		serverDown = true
		if serveErr != nil {
			a.log.Error().Err(serveErr).Msg("API server error")
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	if !serverDown {
		// Streams observe cancellation and drain before the listener is
		// abandoned.
		select {
		case serveErr = <-apiErr:
		case <-time.After(30 * time.Second):
			a.log.Warn().Msg("API server shutdown timed out")
		}
	}

	a.shutdown()
	return serveErr
}

func (a *App) shutdown() {
	a.log.Info().Msg("Initiating graceful shutdown")

	for _, id := range a.registry.Targets() {
		a.registry.Cancel(id)
	}

	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("Store close error")
	}

	a.log.Info().Msg("Graceful shutdown complete")
}

// sweeper periodically removes settled lifecycles from the registry.
func (a *App) sweeper(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := a.registry.CleanupTerminal(); len(removed) > 0 {
				a.log.Info().Strs("target_ids", removed).Msg("Settled lifecycles swept")
			}
		}
	}
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	code := http.StatusOK

	if err := a.store.Ping(r.Context()); err != nil {
		status = "store_unreachable"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":"%s"}`, status)
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.stats())
}

func (a *App) stats() map[string]any {
	return map[string]any{
		"app_version":     Version,
		"app_build_time":  BuildTime,
		"app_git_commit":  GitCommit,
		"tracked_targets": a.registry.Len(),
		"uptime_seconds":  time.Since(a.startedAt).Seconds(),
	}
}

// statsReporter periodically reports application statistics.
func (a *App) statsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.log.Info().
				Int("tracked_targets", a.registry.Len()).
				Float64("uptime_seconds", time.Since(a.startedAt).Seconds()).
				Msg("Acquirer statistics")
		}
	}
}
