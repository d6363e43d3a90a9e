// Package metrics exposes Prometheus collectors for capture sessions, table
// submissions and device commands.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "daqbridge"

// Metrics holds the daemon collectors and their private registry.
type Metrics struct {
	registry *prometheus.Registry

	SessionsTotal  *prometheus.CounterVec
	RowsTotal      prometheus.Counter
	CaptureActive  prometheus.Gauge
	TableSubmits   *prometheus.CounterVec
	DeviceCommands *prometheus.CounterVec
}

// New creates the collectors and registers them with Go and process
// collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "sessions_total",
				Help:      "Capture sessions finished, by end reason",
			},
			[]string{"end_reason"},
		),
		RowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "rows_total",
				Help:      "Rows forwarded to capture pipelines",
			},
		),
		CaptureActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "active",
				Help:      "1 while a capture session holds an open pipeline",
			},
		),
		TableSubmits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "table",
				Name:      "submits_total",
				Help:      "Table submissions to the device, by result",
			},
			[]string{"table", "result"},
		),
		DeviceCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "commands_total",
				Help:      "Control commands sent to the device, by result",
			},
			[]string{"command", "result"},
		),
	}
	m.registry.MustRegister(
		m.SessionsTotal,
		m.RowsTotal,
		m.CaptureActive,
		m.TableSubmits,
		m.DeviceCommands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionEnd counts a finished capture session.
func (m *Metrics) RecordSessionEnd(reason string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(reason).Inc()
}

// RecordRows adds forwarded rows.
func (m *Metrics) RecordRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsTotal.Add(float64(n))
}

// SetCaptureActive toggles the active gauge.
func (m *Metrics) SetCaptureActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.CaptureActive.Set(1)
		return
	}
	m.CaptureActive.Set(0)
}

// RecordTableSubmit counts a table submission.
func (m *Metrics) RecordTableSubmit(table string, err error) {
	if m == nil {
		return
	}
	m.TableSubmits.WithLabelValues(table, result(err)).Inc()
}

// RecordDeviceCommand counts a control command.
func (m *Metrics) RecordDeviceCommand(command string, err error) {
	if m == nil {
		return
	}
	m.DeviceCommands.WithLabelValues(command, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
