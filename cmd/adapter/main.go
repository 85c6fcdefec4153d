// ServiceNow Change Management Adapter
//
// A standalone Go binary that brokers access to one ServiceNow change
// request table and announces instance connectivity:
//
//	Healthchecks:  Table API fetches     →  ONLINE/OFFLINE status events
//	Records:      GET/POST change requests, translated to change tickets
//
// # Usage
//
//	adapter-change-management [flags]
//
//	Flags:
//	  -config string   Path to config YAML file (default "config.yaml")
//	  -get             Fetch change requests once, print the reply, and exit
//	  -create          Create a change request once, print the reply, and exit
//	  -version         Print version information and exit
//
// # Architecture
//
// The adapter starts the following components based on configuration:
//
//  1. Observability server (always): /healthz, /readyz, /metrics
//  2. Status event bus connecting the adapter to its subscribers
//  3. Kafka relay (if enabled): publishes status events to a topic
//  4. Healthcheck loop: probes the instance on a fixed interval
//
// All components are managed via errgroup for coordinated lifecycle. On
// shutdown (SIGINT/SIGTERM), all goroutines are cancelled gracefully.
//
// # Signal Handling
//
//	SIGINT/SIGTERM → Cancel context → Healthcheck loop and relay stop → Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/stanleypendergraft/adapter-change-management/internal/adapter"
	"github.com/stanleypendergraft/adapter-change-management/internal/config"
	"github.com/stanleypendergraft/adapter-change-management/internal/events"
	"github.com/stanleypendergraft/adapter-change-management/internal/observability"
	"github.com/stanleypendergraft/adapter-change-management/internal/relay"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Parse command-line flags.
	configPath := flag.String("config", "config.yaml", "Path to configuration YAML file")
	getOnce := flag.Bool("get", false, "Fetch change requests once, print the reply, and exit")
	createOnce := flag.Bool("create", false, "Create a change request once, print the reply, and exit")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("adapter-change-management %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Load .env when present so ${VAR} expansion in the config file can
	// see local development values.
	_ = godotenv.Load()

	// Initialize structured logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting adapter-change-management",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
	)

	// Load and validate configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	// Set log level from config.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// One-shot modes bypass the long-running lifecycle.
	if *getOnce || *createOnce {
		if err := runOnce(cfg, logger, *getOnce, *createOnce); err != nil {
			logger.Error("one-shot request failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Setup signal handling for graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Setup config watcher for hot-reload.
	reloadCh := make(chan struct{}, 1)
	go watchConfig(ctx, *configPath, reloadCh, logger)

	for {
		// Create a sub-context for the current run.
		runCtx, runCancel := context.WithCancel(ctx)

		// Start the run in a goroutine so we can listen for signals/reloads.
		errCh := make(chan error, 1)
		go func() {
			errCh <- run(runCtx, *configPath, logger)
		}()

		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			runCancel()
			cancel()
			<-errCh // wait for run to exit
			logger.Info("adapter shutdown complete")
			return
		case <-reloadCh:
			logger.Info("reloading configuration...")
			runCancel()
			if err := <-errCh; err != nil && err != context.Canceled {
				logger.Error("previous run exited with error on reload", "error", err)
			}
			logger.Info("restarting with new configuration")
			// continue loop to restart
		case err := <-errCh:
			if err != nil && err != context.Canceled {
				logger.Error("adapter exited with error", "error", err)
				os.Exit(1)
			}
			logger.Info("adapter shutdown complete")
			return
		}
	}
}

// watchConfig uses fsnotify to watch the config file for changes.
func watchConfig(ctx context.Context, path string, reloadCh chan<- struct{}, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create config watcher", "error", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		logger.Error("failed to watch config file", "path", path, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Trigger a reload on Write or Rename/Create (some editors do this).
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				logger.Info("config file changed", "event", event.Name)
				// Debounce: some editors write multiple times.
				select {
				case reloadCh <- struct{}{}:
				default:
					// already has a reload queued
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}

// run is the main execution function, separated from main() for testability.
// It sets up all components and runs them via errgroup.
func run(ctx context.Context, configPath string, logger *slog.Logger) error {
	// Load and validate configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration from %s: %w", configPath, err)
	}

	// 1. Start the observability server (always runs).
	obsSrv := observability.NewServer(cfg.Observability.Addr, logger)
	defer obsSrv.SetReady(false)

	// 2. Status event bus. Every emission is logged; further subscribers
	// attach below.
	bus := events.NewBus()
	bus.SubscribeAll(func(status events.Status, event events.StatusEvent) {
		logger.Debug("status event", "status", status, "id", event.ID)
	})

	// 3. Use errgroup for coordinated goroutine lifecycle.
	g, gCtx := errgroup.WithContext(ctx)

	// 4. Start the Kafka relay if enabled.
	if cfg.Relay.Enabled {
		rl, err := relay.New(cfg.Relay, logger)
		if err != nil {
			return fmt.Errorf("creating relay: %w", err)
		}
		defer rl.Close()

		bus.SubscribeAll(rl.Subscriber())
		g.Go(func() error {
			return rl.Run(gCtx)
		})
		logger.Info("relay started", "topic", cfg.Relay.Topic, "encoding", cfg.Relay.Encoding)
	}

	// 5. Initialize the adapter itself.
	a, err := adapter.New(cfg.Adapter.ID, cfg.Adapter.Properties, cfg.Request, bus, logger)
	if err != nil {
		return fmt.Errorf("creating adapter: %w", err)
	}
	defer a.Close()

	// Start observability server.
	g.Go(func() error {
		return obsSrv.Start(gCtx)
	})

	// 6. Start the healthcheck loop.
	g.Go(func() error {
		return runHealthchecks(gCtx, a, cfg.Healthcheck.Interval.Duration, logger)
	})

	// Mark as ready — all components are initialized and running.
	obsSrv.SetReady(true)
	logger.Info("adapter is ready",
		"adapter_id", cfg.Adapter.ID,
		"table", cfg.Adapter.Properties.Table,
		"relay_enabled", cfg.Relay.Enabled,
		"observability_addr", cfg.Observability.Addr,
	)

	// Wait for all goroutines to complete (triggered by context cancellation).
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// runHealthchecks drives the adapter's connect-then-probe lifecycle
// until the context is cancelled.
func runHealthchecks(ctx context.Context, a *adapter.Adapter, interval time.Duration, logger *slog.Logger) error {
	a.Connect(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("healthcheck loop shutting down")
			return ctx.Err()
		case <-ticker.C:
			// Outcomes surface through status events and logs.
			_, _ = a.Healthcheck(ctx)
		}
	}
}

// runOnce performs a single fetch or create against the configured
// table and prints the translated reply to stdout.
func runOnce(cfg *config.Config, logger *slog.Logger, doGet, doCreate bool) error {
	a, err := adapter.New(cfg.Adapter.ID, cfg.Adapter.Properties, cfg.Request, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if doGet {
		resp, err := a.GetRecord(ctx)
		if err != nil {
			return err
		}
		fmt.Println(string(resp.Body))
	}
	if doCreate {
		resp, err := a.PostRecord(ctx)
		if err != nil {
			return err
		}
		fmt.Println(string(resp.Body))
	}
	return nil
}
