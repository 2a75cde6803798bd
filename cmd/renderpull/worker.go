package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"renderpull/internal/frames"
	"renderpull/internal/httpkit"
	"renderpull/internal/pkg/shutdown"
	"renderpull/internal/statusapi"
	"renderpull/internal/storage"
	"renderpull/internal/worker"
	"renderpull/internal/worker/queue"
)

// runWorker consumes queued render requests until SIGINT or SIGTERM and
// serves their status over HTTP.
func runWorker(args []string) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file (default: ~/.clara-io/config.json)")
	statusAddr := fs.String("status-addr", "", "Status server listen address (default: config status_addr)")
	logFormat := fs.String("log-format", "json", "Log format: text or json")
	shutdownTimeout := fs.Duration("shutdown-timeout", 30*time.Second, "Time allowed for graceful shutdown")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: renderpull worker [options]

Consume render requests queued with 'renderpull enqueue' and serve
/health, /runs, /runs/{id}, /frames/{name} and /events.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fail(ExitConfigError, "%v", err)
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}
	if err := cfg.Validate(); err != nil {
		return fail(ExitConfigError, "%v", err)
	}

	log := newLogger(*logFormat)
	log.Info("starting renderpull worker", "queue", cfg.Redis.Queue, "status_addr", cfg.StatusAddr)

	mgr := shutdown.NewManager(log, *shutdownTimeout)
	ctx := mgr.Context()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	mgr.Register("redis", func(context.Context) error { return rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("failed to ping redis", "addr", cfg.Redis.Addr, "error", err.Error())
		_ = mgr.Shutdown()
		return ExitGeneralError
	}

	store, closeStore, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.Error("failed to open output store", "error", err.Error())
		_ = mgr.Shutdown()
		return ExitStorageError
	}
	mgr.Register("store", func(context.Context) error { return closeStore() })
	log.Info("output store ready", "provider", store.Provider())

	origins := httpkit.ParseList(os.Getenv("RENDERPULL_CORS_ORIGINS"))
	q := queue.NewRedisQueue(rdb, cfg.Redis.Queue)
	registry := worker.NewRegistry(0)
	hub := statusapi.NewHub(log, origins)
	mgr.RegisterSimple("events", hub.Close)

	opts := frames.OptionsFromConfig(cfg)
	opts.Store = store
	opts.Log = log
	opts.Observer = frames.Observers{registry, hub}

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx, worker.Deps{
			Queue:       q,
			Runner:      frames.NewOrchestrator(opts),
			Credentials: frames.CredentialsFromConfig(cfg),
			Registry:    registry,
			Log:         log,
		})
	}()
	mgr.Register("worker", func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	srv := &http.Server{
		Addr: cfg.StatusAddr,
		Handler: statusapi.NewRouter(statusapi.Deps{
			Registry:       registry,
			Queue:          q,
			Store:          store,
			Hub:            hub,
			Log:            log,
			AllowedOrigins: origins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	mgr.Register("status-server", srv.Shutdown)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status server failed", "error", err.Error())
			_ = mgr.Shutdown()
		}
	}()

	if err := mgr.Wait(context.Background()); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
		return ExitGeneralError
	}
	return ExitSuccess
}
