package preflight

import (
	"context"

	"daqbridge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes every preflight check for the given config. pinger may be
// nil, in which case a short-lived client is dialled from the config.
func RunAll(ctx context.Context, cfg *config.Config, pinger Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Capture directory", cfg.Paths.CaptureDir),
	}

	if pinger == nil {
		results = append(results, CheckDeviceFromConfig(ctx, cfg))
	} else {
		results = append(results, CheckDevice(ctx, cfg.Device.ControlAddress(), pinger))
	}

	results = append(results, CheckCatalog(cfg.Tables.CatalogPath))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
