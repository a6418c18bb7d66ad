package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/internal/telemetry"
	"github.com/fleetyard/eldcore/pkg/api"
	"github.com/fleetyard/eldcore/pkg/api/auth"
	"github.com/fleetyard/eldcore/pkg/config"
	"github.com/fleetyard/eldcore/pkg/dlq"
	"github.com/fleetyard/eldcore/pkg/eld/validation"
	"github.com/fleetyard/eldcore/pkg/fleet"
	"github.com/fleetyard/eldcore/pkg/ingest"
	"github.com/fleetyard/eldcore/pkg/metrics"
	"github.com/fleetyard/eldcore/pkg/retry"
	"github.com/fleetyard/eldcore/pkg/sequence"
	"github.com/fleetyard/eldcore/pkg/store"
	"github.com/fleetyard/eldcore/pkg/syncproto"
	"github.com/fleetyard/eldcore/pkg/unidentified"
	"github.com/spf13/cobra"

	// Import prometheus metrics to register init() functions
	_ "github.com/fleetyard/eldcore/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the eldcore server",
	Long: `Start the eldcore server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/eldcore/config.yaml.

Examples:
  # Start in background (default)
  eldcore start

  # Start in foreground
  eldcore start --foreground

  # Start with custom config file
  eldcore start --config /etc/eldcore/config.yaml

  # Start with environment variable overrides
  ELDCORE_LOGGING_LEVEL=DEBUG eldcore start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/eldcore/eldcore.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/eldcore/eldcore.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Refuse to start without a signing secret: every event-facing route
	// sits behind bearer auth, so a server without a secret would reject
	// all traffic anyway.
	if !cfg.API.HasJWTSecret() {
		return fmt.Errorf("no JWT secret configured: run 'eldcore init' or set %s", api.EnvAPISecret)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "eldcore",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "eldcore",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("eldcore - ELD event ingestion and synchronization service")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics FIRST (before creating the pipeline) so the
	// prometheus-backed collectors are registered when sinks are built.
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
	}

	// Open the event store (runs schema migration on first use)
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize event store: %w", err)
	}
	defer func() { _ = st.Close() }()
	logger.Info("Event store ready", "type", cfg.Database.Type)

	// Open the idempotency store for duplicate suppression
	replay, err := config.CreateIdempotencyStore(cfg.Idempotency)
	if err != nil {
		return fmt.Errorf("failed to initialize idempotency store: %w", err)
	}
	defer func() { _ = replay.Close() }()
	logger.Info("Idempotency store ready", "backend", cfg.Idempotency.Backend)

	// Assemble the ingestion pipeline
	directory := fleet.NewDirectory(st)
	validator := validation.New(directory)
	allocator := sequence.New(st)
	policy := retry.Policy{
		MaxAttempts: cfg.Ingest.Retry.MaxAttempts,
		BaseDelay:   cfg.Ingest.Retry.BaseDelay,
		MaxDelay:    cfg.Ingest.Retry.MaxDelay,
	}
	pipeline := ingest.New(st, validator, allocator, directory, policy)

	dlqSvc := dlq.New(st, pipeline, cfg.Ingest.DLQAlertThreshold)
	syncSvc := syncproto.New(st, pipeline)
	unidSvc := unidentified.New(st, pipeline)

	if cfg.Metrics.Enabled {
		pipeline.SetMetrics(metrics.NewIngestMetrics())
		dlqSvc.SetMetrics(metrics.NewDLQMetrics())
	}

	// Surface a backlog left over from a previous run
	if stats, err := dlqSvc.Stats(ctx); err == nil && stats.Pending > 0 {
		logger.Warn("Dead letter queue has pending entries",
			"pending", stats.Pending,
			"threshold_exceeded", stats.AlertThresholdExceeded)
	}

	// Background maintenance: expired-reservation sweeping and
	// dead-letter depth refresh.
	sweeper := sequence.NewSweeper(st, cfg.Ingest.SweepInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	dlqMonitor := dlq.NewMonitor(dlqSvc, cfg.Ingest.SweepInterval)
	dlqMonitor.Start(ctx)
	defer dlqMonitor.Stop()

	jwtSvc, err := auth.NewJWTService(cfg.API.AuthConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	apiServer := api.NewServer(cfg.API, api.Deps{
		Store:        st,
		Pipeline:     pipeline,
		Allocator:    allocator,
		Sync:         syncSvc,
		DLQ:          dlqSvc,
		Unidentified: unidSvc,
		Idempotency:  replay,
		JWT:          jwtSvc,
		Metrics:      metrics.Handler(),
	})
	apiServer.SetShutdownTimeout(cfg.ShutdownTimeout)

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// The scrape server is auxiliary: losing it degrades observability,
	// not ingestion, so its failure is logged rather than fatal.
	if metricsServer != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Start API server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// The server drains under the same budget; the extra grace
		// covers the rest of the teardown before declaring a hang.
		deadline := time.NewTimer(cfg.ShutdownTimeout + 5*time.Second)
		defer deadline.Stop()
		select {
		case err := <-serverDone:
			if err != nil {
				logger.Error("Server shutdown error", "error", err)
				return err
			}
			logger.Info("Server stopped gracefully")
		case <-deadline.C:
			return fmt.Errorf("shutdown timed out after %s", cfg.ShutdownTimeout)
		}

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()

	// Create state directory if it doesn't exist
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(stateDir, "eldcore.pid")
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				// Check if process is still running
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("eldcore is already running (PID %d)\nUse 'eldcore stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(stateDir, "eldcore.log")
	}

	// Get the executable path
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build arguments for the daemon process
	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	// Create the daemon process
	cmd := exec.Command(executable, daemonArgs...)

	// Open log file for stdout/stderr
	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// Start the daemon
	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("eldcore started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'eldcore stop' to stop the server")
	fmt.Println("Use 'eldcore status' to check server status")

	return nil
}
