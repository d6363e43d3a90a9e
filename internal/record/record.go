package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Record is one element of the device data stream.
type Record interface {
	isRecord()
	Kind() string
}

// Ready marks the point before a new acquisition begins.
type Ready struct{}

// FieldCapture describes one captured column of the stream.
type FieldCapture struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Capture string  `json:"capture"`
	Scale   float64 `json:"scale"`
	Offset  float64 `json:"offset"`
	Units   string  `json:"units"`
}

// Column returns the output column label, e.g. "COUNTER1.OUT.Mean".
func (f FieldCapture) Column() string {
	if f.Capture == "" {
		return f.Name
	}
	return f.Name + "." + f.Capture
}

// Start describes the schema of the frames that follow it.
type Start struct {
	Fields        []FieldCapture `json:"fields"`
	MissedSamples int            `json:"missed"`
	Process       string         `json:"process"`
	Format        string         `json:"format"`
	SampleBytes   int            `json:"sample_bytes"`
}

// Identity returns a stable digest of the schema. Two Start records describe
// the same acquisition layout exactly when their identities match.
func (s Start) Identity() string {
	payload, err := json.Marshal(s)
	if err != nil {
		// Start only holds plain values; Marshal cannot fail in practice.
		return fmt.Sprintf("%+v", s)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// SameSchema reports whether other carries an identical schema.
func (s Start) SameSchema(other Start) bool {
	return s.Identity() == other.Identity()
}

// Columns returns the output column labels in field order.
func (s Start) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Column()
	}
	return cols
}

// Raw reports whether frame values arrive unscaled.
func (s Start) Raw() bool {
	return s.Process == ProcessRaw
}

// Frame is a batch of rows conforming to the most recent Start.
type Frame struct {
	Rows [][]float64 `json:"rows"`
}

// RowCount returns the number of rows in the batch.
func (f Frame) RowCount() int {
	return len(f.Rows)
}

// End terminates one acquisition.
type End struct {
	RowsWritten int       `json:"rows_written"`
	Reason      EndReason `json:"reason"`
}

const (
	ProcessScaled = "Scaled"
	ProcessRaw    = "Raw"
)

func (Ready) isRecord() {}
func (Start) isRecord() {}
func (Frame) isRecord() {}
func (End) isRecord()   {}

func (Ready) Kind() string { return "ready" }
func (Start) Kind() string { return "start" }
func (Frame) Kind() string { return "frame" }
func (End) Kind() string   { return "end" }
