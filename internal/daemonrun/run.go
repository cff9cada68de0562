// Package daemonrun wires configuration, logging, storage, and every daemon
// collaborator into the reeld process lifecycle.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reel/internal/acquire"
	"reel/internal/analytics"
	"reel/internal/config"
	"reel/internal/creds"
	"reel/internal/daemon"
	"reel/internal/ipc"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/notifications"
	"reel/internal/preflight"
	"reel/internal/publish"
	"reel/internal/queue"
	"reel/internal/services/llm"
	"reel/internal/services/portal"
	"reel/internal/services/speech"
	"reel/internal/services/zoom"
	"reel/internal/source"
	"reel/internal/transcode"
	"reel/internal/transcribe"
	"reel/internal/translate"
	"reel/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the reel daemon runtime loop and blocks until shutdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reel-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update reel.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "reel-*.log", logPath)

	pidPath := filepath.Join(cfg.Paths.LogDir, "reel.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	logPreflight(signalCtx, logger, cfg)

	notifier := notifications.NewService(cfg)

	var (
		sink           metrics.Sink = metrics.NewNoopSink()
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		sink = metrics.NewPrometheusSink(registry, logger)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	var counters analytics.Sink = analytics.NewNoopSink()
	if cfg.Analytics.Enabled {
		redisSink := analytics.NewRedisSink(cfg)
		if err := redisSink.Ping(signalCtx); err != nil {
			logger.Warn("analytics redis unreachable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "per-account counters will not be recorded"))
		}
		counters = redisSink
	}
	defer counters.Close()

	cache := creds.NewCache(zoom.NewTokenSource(cfg),
		creds.WithLogger(logger),
		creds.WithObserver(func(account string, err error) {
			sink.TokenRefresh(account, err)
		}))
	platform := zoom.NewClient(cfg, cache, logger)

	execs := workflow.Executors{
		Acquire:   acquire.NewAcquirer(cfg, store, platform, logger),
		Transcode: transcode.NewTranscoder(cfg, store, logger),
		Publish:   publish.NewPublisher(cfg, store, portal.NewService(cfg), logger),
	}
	if cfg.Stages.Transcribe {
		execs.Transcribe = transcribe.NewTranscriber(cfg, store, speech.NewClient(cfg), logger)
	}
	if cfg.Stages.Translate {
		execs.Translate = translate.NewTranslator(cfg, store, llm.NewClient(llm.Config{
			APIKey:         cfg.Translate.APIKey,
			BaseURL:        cfg.Translate.BaseURL,
			Model:          cfg.Translate.Model,
			TimeoutSeconds: cfg.Translate.TimeoutSeconds,
		}), logger)
	}

	manager := workflow.NewManager(cfg, store, logger, execs,
		workflow.WithNotifier(notifier),
		workflow.WithMetrics(sink),
		workflow.WithAnalytics(counters))

	syncer, err := source.NewSyncer(cfg, store, platform, logger)
	if err != nil {
		return fmt.Errorf("create syncer: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, manager, syncer, notifier, metricsHandler)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	runCtx, stopRequested := context.WithCancel(signalCtx)
	defer stopRequested()

	socketPath := filepath.Join(cfg.Paths.LogDir, "reel.sock")
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, stopRequested, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(runCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "recordings will not be processed"))
		return err
	}

	<-runCtx.Done()
	logger.Info("reel daemon shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "reel.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
