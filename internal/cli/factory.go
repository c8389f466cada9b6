// Package cli wires a canvas session from process configuration for the
// command-line entry points.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	backend "github.com/redis/go-redis/v9"

	"github.com/bert-systems/canvas"
	"github.com/bert-systems/canvas/internal/board"
	"github.com/bert-systems/canvas/internal/config"
	"github.com/bert-systems/canvas/internal/logging"
	"github.com/bert-systems/canvas/pkg/adapters/memory"
	"github.com/bert-systems/canvas/pkg/adapters/redis"
	"github.com/bert-systems/canvas/pkg/adapters/remote"
	"github.com/bert-systems/canvas/pkg/adapters/sqlite"
	"github.com/bert-systems/canvas/pkg/observability"
	"github.com/bert-systems/canvas/pkg/ports"
)

// Options adjust how the session is assembled.
type Options struct {
	// Simulate runs jobs and node sync in-process even when remote services are configured.
	Simulate bool
	// LogOutput receives the process logs. Defaults to io.Discard.
	LogOutput io.Writer
}

// App is an assembled session with the infrastructure it owns.
type App struct {
	Session *canvas.Session
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Config  config.Config
	// Board is the seed loaded at startup, if any.
	Board *board.Board

	closers []func() error
	stop    func()
	wg      sync.WaitGroup
}

// NewApp builds a session from cfg. The caller must Close the result.
func NewApp(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(level, cfg.Log.Format, opts.LogOutput)

	app := &App{
		Metrics: observability.NewMetrics(),
		Logger:  logger,
		Config:  cfg,
	}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	sessionOpts := []canvas.Option{
		canvas.WithLogger(logger.With("component", "session")),
		canvas.WithExecutionConfig(cfg.Execution),
		canvas.WithSyncConfig(cfg.Sync),
		canvas.WithLifecycleHooks(observability.LoggingHooks(logger.With("component", "execution"))),
		canvas.WithLifecycleHooks(app.Metrics.ExecutionHooks()),
		canvas.WithSyncHooks(app.Metrics.OutboxHooks()),
	}

	if ns := app.nodeSync(cfg, opts); ns != nil {
		sessionOpts = append(sessionOpts, canvas.WithNodeSync(ns))
	}
	storeOpts, err := app.outboxStore(cfg)
	if err != nil {
		return nil, err
	}
	sessionOpts = append(sessionOpts, storeOpts...)

	session, err := canvas.New(app.jobService(cfg, opts), sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	app.Session = session
	app.observe()

	if cfg.Board != "" {
		b, err := board.Load(cfg.Board)
		if err != nil {
			return nil, err
		}
		if err := b.Apply(ctx, session); err != nil {
			return nil, fmt.Errorf("apply board %s: %w", cfg.Board, err)
		}
		app.Board = b
		logger.Info("board loaded", "path", cfg.Board, "nodes", len(b.Nodes), "edges", len(b.Edges))
	}
	return app, nil
}

func (a *App) jobService(cfg config.Config, opts Options) ports.JobService {
	if cfg.JobService.URL == "" || opts.Simulate {
		a.Logger.Info("using simulated job service")
		return memory.NewJobService()
	}
	return remote.NewJobService(cfg.JobService.URL, remoteOptions(cfg.JobService, a.Logger)...)
}

func (a *App) nodeSync(cfg config.Config, opts Options) ports.NodeSync {
	switch {
	case opts.Simulate:
		return memory.NewNodeSync()
	case cfg.NodeService.URL != "":
		return remote.NewNodeSync(cfg.NodeService.URL, remoteOptions(cfg.NodeService, a.Logger)...)
	default:
		return nil
	}
}

func remoteOptions(svc config.ServiceConfig, logger *slog.Logger) []remote.Option {
	opts := []remote.Option{
		remote.WithHTTPClient(&http.Client{Timeout: svc.Timeout}),
		remote.WithLogger(logger.With("component", "remote")),
	}
	if svc.Token != "" {
		opts = append(opts, remote.WithToken(svc.Token))
	}
	return opts
}

func (a *App) outboxStore(cfg config.Config) ([]canvas.Option, error) {
	switch {
	case cfg.Redis.Addr != "":
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		prefix := cfg.Redis.Prefix
		if prefix == "" {
			prefix = "canvas:"
		}
		a.Logger.Info("using redis outbox", "addr", cfg.Redis.Addr, "prefix", prefix)
		return []canvas.Option{
			canvas.WithOutboxStore(redis.NewFromClient(client, redis.WithPrefix(prefix+"outbox:"))),
			canvas.WithLocker(redis.NewLocker(client, prefix+"lock:")),
		}, nil
	case cfg.SQLite.Path != "":
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite outbox: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Logger.Info("using sqlite outbox", "path", store.Path())
		return []canvas.Option{canvas.WithOutboxStore(store)}, nil
	default:
		return nil, nil
	}
}

// observe keeps the board gauges current.
func (a *App) observe() {
	updates, stop := a.Session.Subscribe()
	a.stop = stop
	snap := a.Session.Graph()
	a.Metrics.ObserveGraph(len(snap.Nodes), len(snap.Edges))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for range updates {
			snap := a.Session.Graph()
			a.Metrics.ObserveGraph(len(snap.Nodes), len(snap.Edges))
		}
	}()
}

// Close shuts the session down and releases stores and connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Session != nil {
		if err := a.Session.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	if a.stop != nil {
		a.stop()
		a.wg.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
