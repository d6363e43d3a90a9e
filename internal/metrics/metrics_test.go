package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daqbridge/internal/metrics"
)

func gatherValue(t *testing.T, m *metrics.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metricLoop
				}
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func TestRecorders(t *testing.T) {
	m := metrics.New()
	m.RecordSessionEnd("OK")
	m.RecordSessionEnd("OK")
	m.RecordSessionEnd("START_DATA_MISMATCH")
	m.RecordRows(5)
	m.RecordRows(-1)
	m.SetCaptureActive(true)
	m.RecordTableSubmit("SEQ1.TABLE", nil)
	m.RecordTableSubmit("SEQ1.TABLE", errors.New("boom"))
	m.RecordDeviceCommand("put_table", nil)

	assert.Equal(t, 2.0, gatherValue(t, m, "daqbridge_capture_sessions_total", map[string]string{"end_reason": "OK"}))
	assert.Equal(t, 1.0, gatherValue(t, m, "daqbridge_capture_sessions_total", map[string]string{"end_reason": "START_DATA_MISMATCH"}))
	assert.Equal(t, 5.0, gatherValue(t, m, "daqbridge_capture_rows_total", nil))
	assert.Equal(t, 1.0, gatherValue(t, m, "daqbridge_capture_active", nil))
	assert.Equal(t, 1.0, gatherValue(t, m, "daqbridge_table_submits_total", map[string]string{"table": "SEQ1.TABLE", "result": "error"}))
	assert.Equal(t, 1.0, gatherValue(t, m, "daqbridge_device_commands_total", map[string]string{"command": "put_table", "result": "ok"}))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.RecordSessionEnd("OK")
	m.RecordRows(1)
	m.SetCaptureActive(false)
	m.RecordTableSubmit("T", nil)
	m.RecordDeviceCommand("get", nil)
	assert.Nil(t, m.Registry())
}

func TestHandlerServesExposition(t *testing.T) {
	m := metrics.New()
	m.RecordRows(3)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "daqbridge_capture_rows_total 3"))
}
