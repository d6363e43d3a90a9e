package attr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"daqbridge/internal/services"
)

// ErrRejected is returned when an external write fails validation.
var ErrRejected = fmt.Errorf("%w: write rejected", services.ErrValidation)

// Validator decides whether an external write may proceed.
type Validator func(name string, value any) bool

// UpdateHook runs after a value has been stored by a non-quiet write.
type UpdateHook func(ctx context.Context, value any) error

// Attribute is a named value with alarm state.
type Attribute struct {
	name        string
	description string
	kind        Kind
	labels      []string
	validator   Validator
	onUpdate    UpdateHook

	mu        sync.RWMutex
	value     any
	severity  Severity
	alarm     Alarm
	hasLimits bool
	low       float64
	high      float64
}

// Option configures an Attribute at construction.
type Option func(*Attribute)

// WithValidator installs the external write validator.
func WithValidator(v Validator) Option {
	return func(a *Attribute) { a.validator = v }
}

// WithOnUpdate installs the hook run after non-quiet writes.
func WithOnUpdate(h UpdateHook) Option {
	return func(a *Attribute) { a.onUpdate = h }
}

// WithLabels turns the attribute into an enumeration over labels. Values are
// stored as the label index.
func WithLabels(labels ...string) Option {
	return func(a *Attribute) {
		a.labels = append([]string(nil), labels...)
		a.kind = KindEnum
	}
}

// WithLimits sets drive limits for numeric values.
func WithLimits(low, high float64) Option {
	return func(a *Attribute) {
		a.hasLimits = true
		a.low = low
		a.high = high
	}
}

// WithDescription attaches a human readable description.
func WithDescription(text string) Option {
	return func(a *Attribute) { a.description = text }
}

// New builds an attribute. The kind of the initial value fixes the kind of
// every later write.
func New(name string, initial any, opts ...Option) *Attribute {
	a := &Attribute{name: name, kind: kindOf(initial)}
	for _, opt := range opts {
		opt(a)
	}
	value, err := convert(a.kind, a.labels, initial)
	if err != nil {
		value = zeroValue(a.kind)
	}
	a.value = value
	return a
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.name }

// Kind returns the value kind.
func (a *Attribute) Kind() Kind { return a.kind }

// Labels returns the enumeration labels, if any.
func (a *Attribute) Labels() []string {
	return append([]string(nil), a.labels...)
}

// Get returns the current value.
func (a *Attribute) Get() any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneValue(a.value)
}

// Alarm returns the current severity and alarm status.
func (a *Attribute) Alarm() (Severity, Alarm) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.severity, a.alarm
}

// Put performs an external write: validate, convert, clamp, store, then run
// the on-update hook.
func (a *Attribute) Put(ctx context.Context, value any) error {
	converted, err := convert(a.kind, a.labels, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRejected, a.name, err)
	}
	if a.validator != nil && !a.validator(a.name, converted) {
		return fmt.Errorf("%w: %s", ErrRejected, a.name)
	}
	a.mu.Lock()
	converted = a.clampLocked(converted)
	a.value = converted
	a.severity, a.alarm = NoAlarm, AlarmNone
	a.mu.Unlock()

	if a.onUpdate == nil {
		return nil
	}
	return a.onUpdate(ctx, cloneValue(converted))
}

type setOptions struct {
	quiet    bool
	severity Severity
	alarm    Alarm
}

// SetOption adjusts an internal write.
type SetOption func(*setOptions)

// Quiet skips the on-update hook.
func Quiet() SetOption {
	return func(o *setOptions) { o.quiet = true }
}

// WithSeverity publishes the value with the given alarm state.
func WithSeverity(sev Severity, alarm Alarm) SetOption {
	return func(o *setOptions) {
		o.severity = sev
		o.alarm = alarm
	}
}

// Set performs an internal write. Validators do not apply. Without
// WithSeverity the alarm state resets to NoAlarm.
func (a *Attribute) Set(ctx context.Context, value any, opts ...SetOption) error {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	converted, err := convert(a.kind, a.labels, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", a.name, err)
	}
	a.mu.Lock()
	a.value = converted
	a.severity, a.alarm = o.severity, o.alarm
	a.mu.Unlock()

	if o.quiet || a.onUpdate == nil {
		return nil
	}
	return a.onUpdate(ctx, cloneValue(converted))
}

// SetAlarm changes the alarm state without touching the value.
func (a *Attribute) SetAlarm(sev Severity, alarm Alarm) {
	a.mu.Lock()
	a.severity, a.alarm = sev, alarm
	a.mu.Unlock()
}

// SetLimits replaces the drive limits.
func (a *Attribute) SetLimits(low, high float64) {
	a.mu.Lock()
	a.hasLimits = true
	a.low, a.high = low, high
	a.mu.Unlock()
}

// Limits returns the drive limits and whether any are set.
func (a *Attribute) Limits() (low, high float64, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.low, a.high, a.hasLimits
}

func (a *Attribute) clampLocked(value any) any {
	if !a.hasLimits {
		return value
	}
	switch v := value.(type) {
	case int64:
		if float64(v) < a.low {
			return int64(a.low)
		}
		if float64(v) > a.high {
			return int64(a.high)
		}
	case float64:
		if v < a.low {
			return a.low
		}
		if v > a.high {
			return a.high
		}
	}
	return value
}

// Snapshot is a point-in-time copy of an attribute.
type Snapshot struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Value       any      `json:"value"`
	Severity    Severity `json:"severity"`
	Alarm       Alarm    `json:"alarm"`
	Labels      []string `json:"labels,omitempty"`
	Low         *float64 `json:"low,omitempty"`
	High        *float64 `json:"high,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Snapshot copies the attribute state.
func (a *Attribute) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap := Snapshot{
		Name:        a.name,
		Kind:        a.kind.String(),
		Value:       cloneValue(a.value),
		Severity:    a.severity,
		Alarm:       a.alarm,
		Labels:      append([]string(nil), a.labels...),
		Description: a.description,
	}
	if bytes, ok := snap.Value.([]byte); ok {
		snap.Value = Text(bytes)
	}
	if a.hasLimits {
		low, high := a.low, a.high
		snap.Low, snap.High = &low, &high
	}
	return snap
}

// IsRejected reports whether err came from a failed validation.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
