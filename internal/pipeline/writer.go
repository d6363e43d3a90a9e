package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"daqbridge/internal/record"
)

// csvWriter writes frames as CSV rows under a header taken from the Start
// record. Buffered rows are flushed once the flush period has elapsed and
// always on End and Close.
type csvWriter struct {
	file    *os.File
	out     *csv.Writer
	flush   time.Duration
	now     func() time.Time
	last    time.Time
	header  bool
	rows    int
	trailer bool
}

func newCSVWriter(filename string, flush time.Duration, now func() time.Time) (*csvWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, fmt.Errorf("create capture directory: %w", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &csvWriter{file: file, out: csv.NewWriter(file), flush: flush, now: now, last: now()}, nil
}

func (w *csvWriter) Handle(_ context.Context, rec record.Record) ([]record.Record, error) {
	switch r := rec.(type) {
	case record.Start:
		if w.header {
			return nil, nil
		}
		w.header = true
		if _, err := fmt.Fprintf(w.file, "# process=%s format=%s missed=%d\n", r.Process, r.Format, r.MissedSamples); err != nil {
			return nil, err
		}
		if err := w.out.Write(r.Columns()); err != nil {
			return nil, err
		}
	case record.Frame:
		for _, row := range r.Rows {
			fields := make([]string, len(row))
			for i, v := range row {
				fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if err := w.out.Write(fields); err != nil {
				return nil, err
			}
		}
		w.rows += r.RowCount()
		if w.now().Sub(w.last) >= w.flush {
			if err := w.flushNow(); err != nil {
				return nil, err
			}
		}
	case record.End:
		if err := w.flushNow(); err != nil {
			return nil, err
		}
		w.trailer = true
		if _, err := fmt.Fprintf(w.file, "# end reason=%s rows=%d\n", r.Reason, r.RowsWritten); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (w *csvWriter) flushNow() error {
	w.out.Flush()
	w.last = w.now()
	return w.out.Error()
}

func (w *csvWriter) Close() error {
	flushErr := w.flushNow()
	if !w.trailer {
		// Closed without an End; note how many rows made it to disk.
		_, _ = fmt.Fprintf(w.file, "# end reason=%s rows=%d\n", record.EndUnknownException, w.rows)
	}
	closeErr := w.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
