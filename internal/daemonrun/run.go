package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"daqbridge/internal/config"
	"daqbridge/internal/daemonctl"
	"daqbridge/internal/ipc"
	"daqbridge/internal/logging"
	"daqbridge/internal/preflight"
)

const logHubCapacity = 4096

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath, when set, is watched so a changed logging.level takes
	// effect without a restart.
	ConfigPath  string
	LogLevel    string
	Development bool
}

// Run starts the daqbridge daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logHub := logging.NewStreamHub(logHubCapacity)
	levelVar := new(slog.LevelVar)
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("daqbridge-%s.log", runID))
	loggerOpts := logging.OptionsFromConfig(cfg)
	loggerOpts.OutputPaths = []string{"stdout", logPath}
	loggerOpts.ErrorOutputPaths = []string{"stderr", logPath}
	loggerOpts.Level = level
	loggerOpts.Development = opts.Development
	loggerOpts.LevelVar = levelVar
	loggerOpts.Hub = logHub
	logger, err := logging.New(loggerOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "daqbridge-*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.StateDir, daemonctl.PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logPreflight(signalCtx, logger, cfg)

	d, err := Assemble(signalCtx, cfg, logger, logHub)
	if err != nil {
		logger.Error("daemon assembly failed", logging.Error(err))
		return err
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	if opts.ConfigPath != "" && opts.LogLevel == "" {
		group.Go(func() error {
			return config.Watch(groupCtx, opts.ConfigPath, func(next *config.Config, err error) {
				applyReload(logger, levelVar, next, err)
			})
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		return nil
	})
	if err := group.Wait(); err != nil {
		logger.Warn("config watcher stopped", logging.Error(err))
	}

	logger.Info("daqbridge daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// applyReload applies the settings that can change at runtime. Everything
// else needs a restart.
func applyReload(logger *slog.Logger, levelVar *slog.LevelVar, next *config.Config, err error) {
	if err != nil {
		logging.WarnWithContext(logger, "config reload failed", "config_reload_failed",
			logging.String(logging.FieldErrorHint, "fix the config file; the previous settings stay active"),
			logging.Error(err),
		)
		return
	}
	level := logging.ParseLevel(next.Logging.Level)
	if levelVar.Level() == level {
		return
	}
	levelVar.Set(level)
	logger.Info("log level changed",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.String("level", level.String()),
	)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, r := range preflight.RunAll(ctx, cfg, nil) {
		if r.Passed {
			logger.Debug("preflight passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "the daemon starts anyway and retries on demand"),
		)
	}
}

// ensureCurrentLogPointer points daqbridge.log at the log of this run.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
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
