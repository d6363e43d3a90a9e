package pipeline

import (
	"context"

	"daqbridge/internal/record"
)

// convertHandler applies scale and offset to frames of raw streams and counts
// forwarded rows.
type convertHandler struct {
	start *record.Start
	rows  int
}

func (h *convertHandler) Handle(_ context.Context, rec record.Record) ([]record.Record, error) {
	switch r := rec.(type) {
	case record.Ready:
		h.rows = 0
	case record.Start:
		start := r
		h.start = &start
	case record.Frame:
		h.rows += r.RowCount()
		if h.start != nil && h.start.Raw() {
			return []record.Record{scaleFrame(*h.start, r)}, nil
		}
	}
	return []record.Record{rec}, nil
}

func (h *convertHandler) Close() error { return nil }

func scaleFrame(start record.Start, frame record.Frame) record.Frame {
	rows := make([][]float64, len(frame.Rows))
	for i, row := range frame.Rows {
		scaled := make([]float64, len(row))
		for c, v := range row {
			if c < len(start.Fields) {
				f := start.Fields[c]
				scale := f.Scale
				if scale == 0 {
					scale = 1
				}
				v = v*scale + f.Offset
			}
			scaled[c] = v
		}
		rows[i] = scaled
	}
	return record.Frame{Rows: rows}
}
