package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daqbridge/internal/attr"
	"daqbridge/internal/capture"
	"daqbridge/internal/config"
	"daqbridge/internal/daemon"
	"daqbridge/internal/device"
	"daqbridge/internal/logging"
	"daqbridge/internal/metrics"
	"daqbridge/internal/notifications"
	"daqbridge/internal/pipeline"
	"daqbridge/internal/sessions"
	"daqbridge/internal/table"
)

const abandonedStatus = "Capturing disabled, daemon restarted"

// Assemble opens the session store and builds the device client, capture
// controller, table editors and daemon described by cfg. Capture sessions
// derive from ctx. The returned daemon owns the store and the client; Close
// releases both.
func Assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger, hub *logging.StreamHub) (*daemon.Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	componentLogger := func(name string) *slog.Logger {
		return logging.NewComponentLoggerWithLevel(logger, name, cfg.Logging.ComponentLevels[name])
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	store, err := openStore(ctx, cfg, componentLogger("sessions"))
	if err != nil {
		return nil, err
	}

	deviceLogger := componentLogger("device")
	client := device.NewClient(device.ClientOptions{
		Address:        cfg.Device.ControlAddress(),
		ConnectTimeout: cfg.Device.ConnectTimeoutDuration(),
		CommandTimeout: cfg.Device.CommandTimeoutDuration(),
		Logger:         deviceLogger,
		Metrics:        m,
	})
	source := device.NewDataSource(device.DataSourceOptions{
		Address:        cfg.Device.DataAddress(),
		ConnectTimeout: cfg.Device.ConnectTimeoutDuration(),
		Logger:         deviceLogger,
	})
	fail := func(err error) (*daemon.Daemon, error) {
		_ = client.Close()
		_ = store.Close()
		return nil, err
	}

	recorder := notifications.NewSessionRecorder(store, notifications.NewService(cfg),
		cfg.Notifications.OnlyErrors, componentLogger("notifications"))

	registry := attr.NewRegistry()
	captureLogger := componentLogger("capture")
	ctrl, err := capture.NewController(capture.Options{
		Prefix:      cfg.Capture.Prefix,
		FilePath:    cfg.Paths.CaptureDir,
		FileName:    cfg.Capture.FileName,
		NumCapture:  cfg.Capture.NumCapture,
		FlushPeriod: cfg.Capture.FlushPeriod,
		Scaled:      cfg.Capture.Scaled,
		Source:      source,
		Factory:     pipeline.DefaultFactory{Logger: componentLogger("pipeline")},
		Recorder:    recorder,
		Logger:      captureLogger,
		Metrics:     m,
		Base:        ctx,
	})
	if err != nil {
		return fail(fmt.Errorf("create capture controller: %w", err))
	}
	if err := ctrl.Register(registry); err != nil {
		return fail(fmt.Errorf("register capture attributes: %w", err))
	}

	catalog, err := table.LoadCatalog(cfg.Tables.CatalogPath)
	if err != nil {
		return fail(err)
	}
	editors, err := daemon.BuildEditors(ctx, catalog, client, registry, cfg.Capture.Prefix, componentLogger("table"), m)
	if err != nil {
		return fail(fmt.Errorf("build table editors: %w", err))
	}

	d, err := daemon.New(daemon.Options{
		Config:   cfg,
		Logger:   logger,
		Client:   client,
		Capture:  ctrl,
		Editors:  editors,
		Registry: registry,
		Store:    store,
		Metrics:  m,
		LogHub:   hub,
	})
	if err != nil {
		return fail(fmt.Errorf("create daemon: %w", err))
	}
	return d, nil
}

// openStore opens the session history, closes sessions a previous run left
// open and prunes history older than capture.history_days.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sessions.Store, error) {
	store, err := sessions.Open(cfg.SessionsPath())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	closed, err := store.CloseAbandoned(ctx, abandonedStatus)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("close abandoned sessions: %w", err)
	}
	if closed > 0 {
		logger.Warn("closed sessions left open by a previous run",
			logging.String(logging.FieldEventType, "sessions_abandoned"),
			logging.Int64("count", closed),
			logging.String(logging.FieldErrorHint, "the capture files of these sessions may lack an end marker"),
		)
	}
	if days := cfg.Capture.HistoryDays; days > 0 {
		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
		pruned, err := store.PruneBefore(ctx, cutoff)
		if err != nil {
			logger.Warn("session history prune failed", logging.Error(err))
		} else if pruned > 0 {
			logger.Info("pruned session history",
				logging.String(logging.FieldEventType, "sessions_pruned"),
				logging.Int64("count", pruned),
				logging.Int("history_days", days),
			)
		}
	}
	return store, nil
}
