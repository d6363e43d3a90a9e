package capture

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"daqbridge/internal/attr"
	"daqbridge/internal/logging"
	"daqbridge/internal/metrics"
	"daqbridge/internal/pipeline"
	"daqbridge/internal/record"
	"daqbridge/internal/services"
	"daqbridge/internal/sessions"
)

// Source opens the device record stream for one session.
type Source interface {
	Open(ctx context.Context, scaled bool, flush time.Duration) (record.Stream, error)
}

// Recorder keeps session history. *sessions.Store satisfies it.
type Recorder interface {
	Begin(ctx context.Context, sess sessions.Session) (string, error)
	Finish(ctx context.Context, id string, out sessions.Outcome) error
}

// Status messages published on the Status attribute.
const (
	StatusOK                 = "OK"
	StatusTargetReached      = "Requested number of frames captured"
	StatusStartMismatch      = "Mismatched StartData packet for file"
	StatusDisabled           = "Capturing disabled"
	StatusUnexpected         = "Capturing disabled, unexpected exception"
	StatusDisconnected       = "Capturing disabled, device disconnected"
	StatusFileError          = "Capturing disabled, cannot create file"
	statusFinishedByDeviceFm = "Capture finished by device (%s)"
)

// Options configures NewController.
type Options struct {
	// Prefix is the attribute namespace, e.g. "DAQ".
	Prefix      string
	FilePath    string
	FileName    string
	NumCapture  int
	FlushPeriod float64
	Scaled      bool

	Source   Source
	Factory  pipeline.Factory
	Recorder Recorder
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Base is the parent of every session context; sessions outlive the
	// request that enabled them.
	Base context.Context
}

// Controller owns the capture attributes and the session supervisor.
type Controller struct {
	prefix   string
	scaled   bool
	source   Source
	factory  pipeline.Factory
	recorder Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics

	supervisor *Supervisor

	filePath      *attr.Attribute
	fileName      *attr.Attribute
	numCapture    *attr.Attribute
	flushPeriod   *attr.Attribute
	capture       *attr.Attribute
	capturing     *attr.Attribute
	status        *attr.Attribute
	numCaptured   *attr.Attribute
	lastEndReason *attr.Attribute
	aliases       map[string]string

	mu          sync.Mutex
	lastSession string
}

// NewController builds the capture attributes. Sessions start when the
// Capture attribute is written with a true value.
func NewController(opts Options) (*Controller, error) {
	if opts.Source == nil {
		return nil, services.Wrap(services.ErrConfiguration, "capture", "new controller", "no record source", nil)
	}
	if opts.Factory == nil {
		return nil, services.Wrap(services.ErrConfiguration, "capture", "new controller", "no pipeline factory", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	flush := opts.FlushPeriod
	if flush <= 0 {
		flush = 1.0
	}
	c := &Controller{
		prefix:     strings.Trim(opts.Prefix, ":"),
		scaled:     opts.Scaled,
		source:     opts.Source,
		factory:    opts.Factory,
		recorder:   opts.Recorder,
		logger:     logger,
		metrics:    opts.Metrics,
		supervisor: NewSupervisor(opts.Base),
	}

	parameter := attr.WithValidator(c.validateParameter)
	c.filePath = attr.New(c.name("FilePath"), []byte(opts.FilePath), parameter,
		attr.WithDescription("directory of the capture file"))
	c.fileName = attr.New(c.name("FileName"), []byte(opts.FileName), parameter,
		attr.WithDescription("name of the capture file"))
	c.numCapture = attr.New(c.name("NumCapture"), int64(opts.NumCapture), parameter,
		attr.WithLimits(0, float64(1<<31-1)),
		attr.WithDescription("rows to capture, 0 captures until stopped"))
	c.flushPeriod = attr.New(c.name("FlushPeriod"), flush, parameter,
		attr.WithLimits(0.001, 3600),
		attr.WithDescription("seconds between file flushes"))
	c.capture = attr.New(c.name("Capture"), false,
		attr.WithValidator(c.validateCapture),
		attr.WithOnUpdate(c.onCapture),
		attr.WithDescription("start or stop capturing"))
	c.capturing = attr.New(c.name("Capturing"), false,
		attr.WithDescription("true while a capture session is active"))
	c.status = attr.New(c.name("Status"), StatusOK,
		attr.WithDescription("state of the last capture session"))
	c.numCaptured = attr.New(c.name("NumCaptured"), int64(0),
		attr.WithDescription("rows written by the current or last session"))
	c.lastEndReason = attr.New(c.name("LastEndReason"), "",
		attr.WithDescription("end reason of the last session"))

	// Snake case aliases keep the device style names addressable, e.g.
	// DAQ:CAPTURE:FILE_NAME.
	c.aliases = make(map[string]string)
	for _, a := range c.Attributes() {
		suffix := strings.TrimPrefix(a.Name(), c.name(""))
		alias := c.name(snakeCase(suffix))
		if !strings.EqualFold(alias, a.Name()) {
			c.aliases[alias] = a.Name()
		}
	}
	return c, nil
}

// snakeCase turns "NumCaptured" into "NUM_CAPTURED".
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func (c *Controller) name(suffix string) string {
	if c.prefix == "" {
		return "CAPTURE:" + suffix
	}
	return c.prefix + ":CAPTURE:" + suffix
}

// Attributes returns every attribute the controller owns.
func (c *Controller) Attributes() []*attr.Attribute {
	return []*attr.Attribute{
		c.filePath, c.fileName, c.numCapture, c.flushPeriod,
		c.capture, c.capturing, c.status, c.numCaptured, c.lastEndReason,
	}
}

// Register adds the attributes and their snake case aliases to reg.
func (c *Controller) Register(reg *attr.Registry) error {
	if err := reg.Add(c.Attributes()...); err != nil {
		return err
	}
	for alias, name := range c.aliases {
		if err := reg.Alias(alias, name); err != nil {
			return err
		}
	}
	return nil
}

// Filename joins FilePath and FileName. NUL terminated values are trimmed.
func (c *Controller) Filename() (string, error) {
	dir := strings.TrimSpace(attr.Text(c.filePath.Get()))
	name := strings.TrimSpace(attr.Text(c.fileName.Get()))
	if dir == "" {
		return "", services.Wrap(services.ErrValidation, "capture", "filename", "FilePath is empty", nil)
	}
	if name == "" {
		return "", services.Wrap(services.ErrValidation, "capture", "filename", "FileName is empty", nil)
	}
	return filepath.Join(dir, name), nil
}

func (c *Controller) captureOn() bool {
	on, _ := attr.Bool(c.capture.Get())
	return on
}

// validateParameter blocks parameter changes while Capture is on.
func (c *Controller) validateParameter(name string, _ any) bool {
	if c.captureOn() {
		c.logger.Debug("parameter write rejected while capturing", logging.String("attribute", name))
		return false
	}
	return true
}

// validateCapture refuses to start without a usable filename.
func (c *Controller) validateCapture(_ string, value any) bool {
	on, err := attr.Bool(value)
	if err != nil {
		return false
	}
	if !on {
		return true
	}
	if _, err := c.Filename(); err != nil {
		c.logger.Warn("capture refused",
			logging.String(logging.FieldEventType, "capture_refused"),
			logging.String(logging.FieldErrorHint, "set FilePath and FileName before enabling capture"),
			logging.Error(err),
		)
		return false
	}
	return true
}

func (c *Controller) onCapture(ctx context.Context, value any) error {
	on, err := attr.Bool(value)
	if err != nil {
		return err
	}
	if on {
		return c.Enable(ctx)
	}
	return c.Disable(ctx)
}

// Enable starts a session with the current parameters, replacing any
// running session.
func (c *Controller) Enable(ctx context.Context) error {
	target, _ := attr.Int(c.numCapture.Get())
	seconds, _ := attr.Float(c.flushPeriod.Get())
	flush := time.Duration(seconds * float64(time.Second))
	return c.supervisor.Enable(ctx, func(taskCtx context.Context) {
		c.RunSession(taskCtx, c.Filename, int(target), flush)
	})
}

// Disable cancels the running session and waits for it to finalize.
func (c *Controller) Disable(ctx context.Context) error {
	return c.supervisor.Disable(ctx)
}

// Start writes Capture=1 as an external client would.
func (c *Controller) Start(ctx context.Context) error {
	return c.capture.Put(ctx, true)
}

// Stop writes Capture=0 as an external client would.
func (c *Controller) Stop(ctx context.Context) error {
	return c.capture.Put(ctx, false)
}

// Running reports whether a session task is active.
func (c *Controller) Running() bool {
	return c.supervisor.Running()
}

// Wait blocks until the running session, if any, has finalized.
func (c *Controller) Wait(ctx context.Context) error {
	return c.supervisor.Wait(ctx)
}

// State is a snapshot of the capture attributes.
type State struct {
	Capture       bool          `json:"capture"`
	Capturing     bool          `json:"capturing"`
	Status        string        `json:"status"`
	Severity      attr.Severity `json:"severity"`
	NumCaptured   int64         `json:"num_captured"`
	NumCapture    int64         `json:"num_capture"`
	FlushPeriod   float64       `json:"flush_period"`
	Filename      string        `json:"filename,omitempty"`
	LastEndReason string        `json:"last_end_reason,omitempty"`
	LastSession   string        `json:"last_session,omitempty"`
}

// State returns the current capture state.
func (c *Controller) State() State {
	st := State{
		Capture:       c.captureOn(),
		Status:        attr.Text(c.status.Get()),
		LastEndReason: attr.Text(c.lastEndReason.Get()),
	}
	st.Capturing, _ = attr.Bool(c.capturing.Get())
	st.Severity, _ = c.status.Alarm()
	st.NumCaptured, _ = attr.Int(c.numCaptured.Get())
	st.NumCapture, _ = attr.Int(c.numCapture.Get())
	st.FlushPeriod, _ = attr.Float(c.flushPeriod.Get())
	st.Filename, _ = c.Filename()
	c.mu.Lock()
	st.LastSession = c.lastSession
	c.mu.Unlock()
	return st
}

func (c *Controller) setLastSession(id string) {
	c.mu.Lock()
	c.lastSession = id
	c.mu.Unlock()
}

func (c *Controller) publish(ctx context.Context, a *attr.Attribute, value any, opts ...attr.SetOption) {
	if err := a.Set(ctx, value, opts...); err != nil {
		c.logger.Error("publish capture attribute", logging.String("attribute", a.Name()), logging.Error(err))
	}
}

func finishedByDevice(reason record.EndReason) string {
	return fmt.Sprintf(statusFinishedByDeviceFm, reason)
}
