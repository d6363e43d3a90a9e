package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"daqbridge/internal/attr"
	"daqbridge/internal/capture"
	"daqbridge/internal/device"
	"daqbridge/internal/logging"
	"daqbridge/internal/metrics"
	"daqbridge/internal/pipeline"
	"daqbridge/internal/record"
	"daqbridge/internal/testsupport"
)

func newTestAPI(t *testing.T, token string) (*apiServer, *Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithAPIBind("127.0.0.1:0", token),
		testsupport.WithCapture("run.csv", 10),
	)
	ctrl, err := capture.NewController(capture.Options{
		Prefix:   "DAQ",
		FilePath: cfg.Paths.CaptureDir,
		FileName: cfg.Capture.FileName,
		Source:   device.NewDataSource(device.DataSourceOptions{Address: "127.0.0.1:1"}),
		Factory:  pipeline.DefaultFactory{},
	})
	if err != nil {
		t.Fatalf("capture.NewController: %v", err)
	}
	reg := attr.NewRegistry()
	if err := ctrl.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.FinishedSession(t, store, "/data/old.csv", 42, record.EndDisarmed)

	hub := logging.NewStreamHub(16)
	hub.Publish(logging.LogEvent{Level: "INFO", Message: "hello", Component: "capture"})
	hub.Publish(logging.LogEvent{Level: "INFO", Message: "other", Component: "daemon"})

	d, err := New(Options{Config: cfg, Capture: ctrl, Registry: reg, Store: store, Metrics: metrics.New(), LogHub: hub})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.api == nil {
		t.Fatal("expected api server for configured bind")
	}
	return d.api, d
}

func serve(t *testing.T, s *apiServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s, err := newAPIServer(cfg, &Daemon{}, nil)
	if err != nil || s != nil {
		t.Fatalf("expected nil server, got %v, %v", s, err)
	}
	// nil server start/stop are no-ops
	if err := s.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.stop()
}

func TestAPIServerRequiresToken(t *testing.T) {
	s, _ := newTestAPI(t, "secret")

	if rec := serve(t, s, http.MethodGet, "/api/status", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/api/status", "wrong", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status %d", rec.Code)
	}
	rec := serve(t, s, http.MethodGet, "/api/status", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Capture.NumCapture != 10 {
		t.Fatalf("unexpected capture state %+v", status.Capture)
	}
}

func TestAPIServerAttributes(t *testing.T) {
	s, d := newTestAPI(t, "")

	rec := serve(t, s, http.MethodGet, "/api/attributes?prefix=DAQ:CAPTURE:", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var list []attr.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 9 {
		t.Fatalf("expected 9 capture attributes, got %d", len(list))
	}

	rec = serve(t, s, http.MethodPut, "/api/attributes/DAQ:CAPTURE:FLUSH_PERIOD", "", `{"value": 0.25}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status %d: %s", rec.Code, rec.Body.String())
	}
	if got := d.capture.State().FlushPeriod; got != 0.25 {
		t.Fatalf("flush period = %v", got)
	}

	rec = serve(t, s, http.MethodGet, "/api/attributes/DAQ:MISSING", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing attribute status %d", rec.Code)
	}

	rec = serve(t, s, http.MethodPut, "/api/attributes/DAQ:CAPTURE:FileName", "", `{"value":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status %d", rec.Code)
	}
}

func TestAPIServerRejectedWriteIsBadRequest(t *testing.T) {
	s, _ := newTestAPI(t, "")
	rec := serve(t, s, http.MethodPut, "/api/attributes/DAQ:CAPTURE:FileName", "", `{"value": ""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear filename status %d: %s", rec.Code, rec.Body.String())
	}
	rec = serve(t, s, http.MethodPost, "/api/capture/start", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("capture without filename status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAPIServerSessionsAndTables(t *testing.T) {
	s, _ := newTestAPI(t, "")

	rec := serve(t, s, http.MethodGet, "/api/sessions?limit=5", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/data/old.csv") {
		t.Fatalf("sessions: %d %s", rec.Code, rec.Body.String())
	}
	rec = serve(t, s, http.MethodGet, "/api/tables/SEQ1.TABLE", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown table status %d", rec.Code)
	}
	rec = serve(t, s, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "daqbridge_") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestAPIServerLogs(t *testing.T) {
	s, _ := newTestAPI(t, "")

	rec := serve(t, s, http.MethodGet, "/api/logs?tail=1&limit=10", "", "")
	var resp LogStreamResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 2 || resp.Next == 0 {
		t.Fatalf("unexpected tail: %+v", resp)
	}

	rec = serve(t, s, http.MethodGet, "/api/logs?component=capture", "", "")
	resp = LogStreamResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Message != "hello" {
		t.Fatalf("unexpected filtered events: %+v", resp.Events)
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(context.DeadlineExceeded); got != http.StatusGatewayTimeout {
		t.Fatalf("deadline: %d", got)
	}
}
