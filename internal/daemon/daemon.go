package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"daqbridge/internal/attr"
	"daqbridge/internal/capture"
	"daqbridge/internal/config"
	"daqbridge/internal/device"
	"daqbridge/internal/health"
	"daqbridge/internal/logging"
	"daqbridge/internal/metrics"
	"daqbridge/internal/services"
	"daqbridge/internal/sessions"
	"daqbridge/internal/table"
)

const captureStopTimeout = 10 * time.Second

// Options carries the components the daemon coordinates. Capture, Registry
// and Config are required; the rest may be nil in tests.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Client   *device.Client
	Capture  *capture.Controller
	Editors  []*table.Editor
	Registry *attr.Registry
	Store    *sessions.Store
	Metrics  *metrics.Metrics
	LogHub   *logging.StreamHub
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *device.Client
	capture  *capture.Controller
	editors  []*table.Editor
	registry *attr.Registry
	store    *sessions.Store
	metrics  *metrics.Metrics
	logHub   *logging.StreamHub

	poller  *tablePoller
	monitor *linkMonitor
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// TableStatus summarizes one table for status output.
type TableStatus struct {
	Name    string `json:"name"`
	Mode    string `json:"mode"`
	Rows    int    `json:"rows"`
	InError string `json:"in_error,omitempty"`
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool            `json:"running"`
	PID            int             `json:"pid"`
	Device         string          `json:"device"`
	LockFilePath   string          `json:"lock_path"`
	SessionsDBPath string          `json:"sessions_db_path"`
	Capture        capture.State   `json:"capture"`
	Tables         []TableStatus   `json:"tables,omitempty"`
	Health         []health.Health `json:"health,omitempty"`
}

// New constructs a daemon. Nothing runs until Start.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Capture == nil || opts.Registry == nil {
		return nil, errors.New("daemon requires config, capture controller, and attribute registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg := opts.Config
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		client:   opts.Client,
		capture:  opts.Capture,
		editors:  opts.Editors,
		registry: opts.Registry,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logHub:   opts.LogHub,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	if opts.Client != nil {
		d.poller = newTablePoller(opts.Client, opts.Editors, cfg.Tables.PollIntervalDuration(), logger)
	}
	d.monitor = newLinkMonitor(cfg.Device.Interface, logger, d.onLinkChange)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another daqbridge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	if d.poller != nil {
		d.poller.Start(runCtx)
	}
	if err := d.monitor.Start(runCtx); err != nil {
		d.logger.Warn("link monitor unavailable", logging.Error(err))
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("daqbridge daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Int("tables", len(d.editors)),
	)
	return nil
}

// Stop ends the running capture session, stops background services and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), captureStopTimeout)
	defer cancel()
	if d.capture.Running() {
		if err := d.capture.Stop(stopCtx); err != nil {
			d.logger.Warn("capture did not stop cleanly",
				logging.String(logging.FieldEventType, "capture_stop_failed"),
				logging.String(logging.FieldErrorHint, "the capture file may lack its end marker"),
				logging.Error(err),
			)
		}
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.poller != nil {
		d.poller.Stop()
	}
	d.monitor.Stop()
	d.api.stop()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daqbridge daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the device connection and the
// session store.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.client != nil {
		errs = append(errs, d.client.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

func (d *Daemon) onLinkChange(_ context.Context, action, iface string) {
	if d.client != nil {
		d.client.Reset()
	}
	if d.poller != nil && action != "remove" {
		d.poller.Trigger()
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		Device:         d.cfg.Device.ControlAddress(),
		LockFilePath:   d.lockPath,
		SessionsDBPath: d.cfg.SessionsPath(),
		Capture:        d.capture.State(),
	}
	for _, e := range d.editors {
		snap := e.Snapshot()
		st.Tables = append(st.Tables, TableStatus{Name: snap.Name, Mode: snap.Mode, Rows: snap.Rows, InError: snap.InError})
	}
	st.Health = d.health(ctx)
	return st
}

func (d *Daemon) health(ctx context.Context) []health.Health {
	var out []health.Health
	if d.client != nil {
		out = append(out, d.deviceHealth(ctx))
	}
	if d.poller != nil {
		out = append(out, d.poller.HealthCheck(ctx))
	}
	if d.monitor != nil {
		out = append(out, d.monitor.HealthCheck(ctx))
	}
	return out
}

func (d *Daemon) deviceHealth(ctx context.Context) health.Health {
	const name = "device"
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ident, err := d.client.Ping(pingCtx)
	if err != nil {
		return health.Unhealthy(name, err.Error())
	}
	h := health.Healthy(name)
	h.Detail = ident
	return h
}

// CaptureEnable writes Capture=1, starting a new session.
func (d *Daemon) CaptureEnable(ctx context.Context) (capture.State, error) {
	if err := d.capture.Start(ctx); err != nil {
		return d.capture.State(), rejected("capture enable", err)
	}
	return d.capture.State(), nil
}

// CaptureDisable writes Capture=0 and waits for the session to finalize.
func (d *Daemon) CaptureDisable(ctx context.Context) (capture.State, error) {
	if err := d.capture.Stop(ctx); err != nil {
		return d.capture.State(), rejected("capture disable", err)
	}
	return d.capture.State(), nil
}

// Attributes lists attributes whose name starts with prefix.
func (d *Daemon) Attributes(prefix string) []attr.Snapshot {
	return d.registry.Snapshot(prefix)
}

// Attribute returns one attribute by name or alias.
func (d *Daemon) Attribute(name string) (attr.Snapshot, error) {
	a, err := d.registry.Lookup(name)
	if err != nil {
		return attr.Snapshot{}, err
	}
	return a.Snapshot(), nil
}

// PutAttribute performs an external write, as a control-system client would.
func (d *Daemon) PutAttribute(ctx context.Context, name string, value any) (attr.Snapshot, error) {
	a, err := d.registry.Lookup(name)
	if err != nil {
		return attr.Snapshot{}, err
	}
	if err := a.Put(ctx, value); err != nil {
		return a.Snapshot(), rejected("put "+a.Name(), err)
	}
	d.logger.Debug("attribute written", logging.String("attribute", a.Name()))
	return a.Snapshot(), nil
}

// Table returns the snapshot of one table by device name, ignoring case.
func (d *Daemon) Table(name string) (table.Snapshot, error) {
	for _, e := range d.editors {
		if strings.EqualFold(e.Name(), strings.TrimSpace(name)) {
			return e.Snapshot(), nil
		}
	}
	return table.Snapshot{}, fmt.Errorf("%w: table %s", services.ErrNotFound, name)
}

// TableNames lists the configured tables.
func (d *Daemon) TableNames() []string {
	names := make([]string, 0, len(d.editors))
	for _, e := range d.editors {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Sessions lists recent capture sessions, newest first.
func (d *Daemon) Sessions(ctx context.Context, limit int) ([]sessions.Session, error) {
	if d.store == nil {
		return nil, errors.New("session history unavailable")
	}
	return d.store.List(ctx, limit)
}

// LogStream returns the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// Metrics returns the metrics registry, if any.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

func rejected(op string, err error) error {
	if attr.IsRejected(err) {
		return services.Wrap(services.ErrValidation, "daemon", op, "write rejected", err)
	}
	return err
}
