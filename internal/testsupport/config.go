package testsupport

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"daqbridge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The API server is disabled unless WithAPIBind is given.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CaptureDir = filepath.Join(base, "captures")
	cfgVal.Paths.APIBind = ""
	cfgVal.Tables.CatalogPath = filepath.Join(base, "tables.yaml")
	cfgVal.Device.Host = "127.0.0.1"
	cfgVal.Device.ConnectTimeout = 1
	cfgVal.Device.CommandTimeout = 2
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAPIBind enables the HTTP API on the given address.
func WithAPIBind(bind, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = bind
		b.cfg.Paths.APIToken = token
	}
}

// WithDevice points the control and data channels at fake device listeners.
func WithDevice(control, data *FakeDevice) ConfigOption {
	return func(b *configBuilder) {
		if control != nil {
			host, port := splitAddr(b.t, control.Addr())
			b.cfg.Device.Host = host
			b.cfg.Device.ControlPort = port
		}
		if data != nil {
			_, port := splitAddr(b.t, data.Addr())
			b.cfg.Device.DataPort = port
		}
	}
}

// WithCatalog writes a table catalog and points the config at it.
func WithCatalog(content string) ConfigOption {
	return func(b *configBuilder) {
		if err := os.WriteFile(b.cfg.Tables.CatalogPath, []byte(content), 0o644); err != nil {
			b.t.Fatalf("write catalog: %v", err)
		}
	}
}

// WithCapture sets the initial capture file name and row target.
func WithCapture(fileName string, numCapture int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.FileName = fileName
		b.cfg.Capture.NumCapture = numCapture
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

func splitAddr(t testing.TB, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %s: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port %s: %v", portStr, err)
	}
	return host, port
}
