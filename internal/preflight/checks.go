package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"daqbridge/internal/config"
	"daqbridge/internal/device"
	"daqbridge/internal/services"
	"daqbridge/internal/table"
)

const deviceCheckTimeout = 5 * time.Second

// Pinger identifies the device on its control port.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// CheckDevice verifies that the device answers an identification query.
func CheckDevice(ctx context.Context, address string, pinger Pinger) Result {
	const name = "Device"

	checkCtx, cancel := context.WithTimeout(ctx, deviceCheckTimeout)
	defer cancel()

	ident, err := pinger.Ping(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", address, summarizeDeviceError(err))}
	}
	if ident == "" {
		ident = "reachable"
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", address, ident)}
}

// CheckDeviceFromConfig dials a throwaway client for the configured device.
func CheckDeviceFromConfig(ctx context.Context, cfg *config.Config) Result {
	client := device.NewClient(device.ClientOptions{
		Address:        cfg.Device.ControlAddress(),
		ConnectTimeout: cfg.Device.ConnectTimeoutDuration(),
		CommandTimeout: cfg.Device.CommandTimeoutDuration(),
	})
	defer client.Close()
	return CheckDevice(ctx, client.Address(), client)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCatalog verifies that the table catalog parses. A missing catalog
// passes with no tables.
func CheckCatalog(path string) Result {
	const name = "Table catalog"

	catalog, err := table.LoadCatalog(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if len(catalog.Tables) == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (no tables)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d tables)", path, len(catalog.Tables))}
}

func summarizeDeviceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, services.ErrTimeout) {
		return "timed out (device unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (device unreachable)"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "connection refused or host unreachable"
	}
	return err.Error()
}
