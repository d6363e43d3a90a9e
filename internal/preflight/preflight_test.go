package preflight

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"daqbridge/internal/config"
)

type stubPinger struct {
	ident string
	err   error
}

func (p stubPinger) Ping(context.Context) (string, error) { return p.ident, p.err }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDevice_OK(t *testing.T) {
	result := CheckDevice(context.Background(), "panda:8888", stubPinger{ident: "PandA SW: 3.0"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "PandA SW: 3.0") {
		t.Fatalf("expected identification in detail, got %q", result.Detail)
	}
}

func TestCheckDevice_Timeout(t *testing.T) {
	result := CheckDevice(context.Background(), "panda:8888", stubPinger{err: context.DeadlineExceeded})
	if result.Passed {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Detail, "timed out") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDevice_Error(t *testing.T) {
	result := CheckDevice(context.Background(), "panda:8888", stubPinger{err: errors.New("ERR no such field")})
	if result.Passed {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Detail, "no such field") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDeviceFromConfig_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := config.Default()
	cfg.Device.Host = "127.0.0.1"
	cfg.Device.ControlPort = port
	result := CheckDeviceFromConfig(context.Background(), &cfg)
	if result.Passed {
		t.Fatal("expected failure for closed port")
	}
	if !strings.Contains(result.Detail, strconv.Itoa(port)) {
		t.Fatalf("expected address in detail, got %q", result.Detail)
	}
}

func TestCheckCatalog(t *testing.T) {
	dir := t.TempDir()
	missing := CheckCatalog(filepath.Join(dir, "tables.yaml"))
	if !missing.Passed {
		t.Fatalf("missing catalog should pass, got %s", missing.Detail)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("tables: [{row_words: 1}]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckCatalog(bad).Passed {
		t.Fatal("expected failure for table without name")
	}

	good := filepath.Join(dir, "good.yaml")
	data := "tables:\n  - name: SEQ1.TABLE\n    row_words: 1\n    fields:\n      - {name: REPEATS, bit_low: 0, bit_high: 15}\n"
	if err := os.WriteFile(good, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckCatalog(good)
	if !result.Passed || !strings.Contains(result.Detail, "1 tables") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.CaptureDir = t.TempDir()
	cfg.Tables.CatalogPath = filepath.Join(t.TempDir(), "tables.yaml")

	results := RunAll(context.Background(), &cfg, stubPinger{ident: "PandA"})
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected no failures, got %v", failed)
	}
}

func TestRunAll_ReportsMissingCaptureDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.CaptureDir = filepath.Join(t.TempDir(), "absent")
	cfg.Tables.CatalogPath = filepath.Join(t.TempDir(), "tables.yaml")

	failed := Failed(RunAll(context.Background(), &cfg, stubPinger{}))
	if len(failed) != 1 || failed[0].Name != "Capture directory" {
		t.Fatalf("unexpected failures %+v", failed)
	}
}
