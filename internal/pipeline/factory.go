package pipeline

import (
	"context"
	"log/slog"
	"time"

	"daqbridge/internal/logging"
)

// DefaultFactory builds a convert stage followed by a CSV writer.
type DefaultFactory struct {
	Logger *slog.Logger
	// Now overrides the writer clock in tests.
	Now func() time.Time
}

// Create opens filename and starts the stages.
func (f DefaultFactory) Create(ctx context.Context, filename string, flush time.Duration) (*Pipeline, error) {
	logger := f.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	writer, err := newCSVWriter(filename, flush, f.Now)
	if err != nil {
		return nil, err
	}
	p, err := New(ctx, logger,
		NamedHandler{Name: "convert", Handler: &convertHandler{}},
		NamedHandler{Name: "write", Handler: writer},
	)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	logger.Info("capture file opened",
		logging.String(logging.FieldFilename, filename),
		logging.Duration("flush_period", flush),
	)
	return p, nil
}
