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

	"github.com/spf13/cobra"

	"github.com/modaq/uploader/internal/logger"
	"github.com/modaq/uploader/pkg/api"
	"github.com/modaq/uploader/pkg/audit"
	"github.com/modaq/uploader/pkg/cache"
	"github.com/modaq/uploader/pkg/config"
	"github.com/modaq/uploader/pkg/events"
	"github.com/modaq/uploader/pkg/jobs"
	"github.com/modaq/uploader/pkg/metrics"
	"github.com/modaq/uploader/pkg/pathcache"
	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

// janitorInterval is how often finished upload jobs are swept from memory.
const janitorInterval = time.Minute

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the MODAQ upload server",
	Long: `Start the MODAQ upload server with the specified settings.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom settings file, or it will use the
default location at $XDG_CONFIG_HOME/modaq/settings.json.

Examples:
  # Start in background (default)
  modaq start

  # Start in foreground
  modaq start --foreground

  # Start with custom settings file
  modaq start --config /etc/modaq/settings.json

  # Start with environment variable overrides
  MODAQ_LOGGING_LEVEL=DEBUG modaq start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/modaq/modaq.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/modaq/modaq.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, cfgPath, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Starting MODAQ upload server",
		"config", cfgPath,
		"bucket", cfg.S3Bucket,
		"profile", cfg.AWSProfile,
		"region", cfg.AWSRegion)

	// Create cancellable context for graceful shutdown. The settings API's
	// shutdown endpoint cancels the same context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics are opt-in; components constructed before InitRegistry would
	// silently record nothing, so this must come first.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	store := config.NewStore(cfg, cfgPath)

	dedup, err := cache.New(cache.Config{
		Path:        cfg.Cache.Path,
		TTL:         cfg.Cache.PathTTL,
		BusyTimeout: cfg.Cache.BusyTimeout,
	}, cache.WithMetrics(metrics.NewCacheMetrics()))
	if err != nil {
		return fmt.Errorf("failed to open path cache: %w", err)
	}
	defer func() {
		if err := dedup.Close(); err != nil {
			logger.Error("cache close error", "error", err)
		}
	}()

	auditLog := audit.New(cfg.LogDirectory)
	hub := events.NewHub()

	// The gateway factory attaches S3 metrics here rather than inside the
	// engines, which know nothing about the registry.
	newStore := func(ctx context.Context, profile, region string) (jobs.Store, error) {
		return s3gw.New(ctx, profile, region, s3gw.WithMetrics(metrics.NewS3Metrics()))
	}

	// Both engines share one collector; registering the same metric names
	// twice would panic.
	jobMetrics := metrics.NewJobMetrics()

	uploads := jobs.NewUploadEngine(jobs.UploadEngineConfig{
		Cache:      dedup,
		Audit:      auditLog,
		Hub:        hub,
		Paths:      pathcache.New(cfg.Cache.PathTTL),
		NewStore:   newStore,
		IOWorkers:  cfg.Uploads.IOWorkers,
		CPUWorkers: cfg.Uploads.AnalysisWorkers,
		Metrics:    jobMetrics,
	})

	deletes := jobs.NewDeleteEngine(jobs.DeleteEngineConfig{
		Cache:    dedup,
		Audit:    auditLog,
		Hub:      hub,
		NewStore: newStore,
		Workers:  cfg.Uploads.IOWorkers,
		Metrics:  jobMetrics,
	})

	go uploads.RunJanitor(ctx, janitorInterval, cfg.Uploads.JobMaxAge)

	router := api.NewRouter(api.Deps{
		Config:   store,
		Uploads:  uploads,
		Deletes:  deletes,
		Hub:      hub,
		Cache:    dedup,
		Audit:    auditLog,
		Shutdown: cancel,
	})

	apiServer := api.NewServer(cfg.API, router)
	logger.Info("API server configured", "host", cfg.API.Host, "port", cfg.API.Port)

	metricsServer := metrics.NewServer(cfg.Metrics.Port)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start the API server in background
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

		// Wait for server to shut down gracefully
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

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
		pidPath = filepath.Join(stateDir, "modaq.pid")
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
						return fmt.Errorf("MODAQ is already running (PID %d)\nUse 'modaq stop' to stop the running instance", pid)
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
		logPath = filepath.Join(stateDir, "modaq.log")
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
	daemon := exec.Command(executable, daemonArgs...)

	// Open log file for stdout/stderr
	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	daemon.Stdout = logFileHandle
	daemon.Stderr = logFileHandle

	// Detach from parent process
	daemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// Start the daemon
	if err := daemon.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("MODAQ started in background (PID %d)\n", daemon.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'modaq stop' to stop the server")
	fmt.Println("Use 'modaq status' to check server status")

	return nil
}
