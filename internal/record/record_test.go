package record_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daqbridge/internal/record"
)

func bitsStart() record.Start {
	return record.Start{
		Fields: []record.FieldCapture{{
			Name:    "PCAP.BITS2",
			Type:    "uint32",
			Capture: "Value",
			Scale:   1,
			Units:   "",
		}},
		Process:     record.ProcessScaled,
		Format:      "Framed",
		SampleBytes: 52,
	}
}

func TestStartIdentityIsStable(t *testing.T) {
	a := bitsStart()
	b := bitsStart()
	assert.Equal(t, a.Identity(), b.Identity())
	assert.True(t, a.SameSchema(b))
	assert.Len(t, a.Identity(), 64)
}

func TestStartIdentityDetectsSchemaChange(t *testing.T) {
	a := bitsStart()
	b := record.Start{Process: "Different", Format: "Also Different", SampleBytes: 52}
	assert.False(t, a.SameSchema(b))

	c := bitsStart()
	c.Fields[0].Scale = 2
	assert.False(t, a.SameSchema(c))
}

func TestStartColumns(t *testing.T) {
	s := bitsStart()
	s.Fields = append(s.Fields, record.FieldCapture{Name: "COUNTER1.OUT", Capture: "Mean"})
	assert.Equal(t, []string{"PCAP.BITS2.Value", "COUNTER1.OUT.Mean"}, s.Columns())
	assert.False(t, s.Raw())
}

func TestFrameRowCount(t *testing.T) {
	f := record.Frame{Rows: [][]float64{{1, 2}, {3, 4}, {5, 6}}}
	assert.Equal(t, 3, f.RowCount())
	assert.Equal(t, 0, record.Frame{}.RowCount())
}

func TestRecordKinds(t *testing.T) {
	records := []record.Record{record.Ready{}, bitsStart(), record.Frame{}, record.End{}}
	kinds := make([]string, 0, len(records))
	for _, r := range records {
		kinds = append(kinds, r.Kind())
	}
	assert.Equal(t, []string{"ready", "start", "frame", "end"}, kinds)
}

func TestParseEndReason(t *testing.T) {
	tests := []struct {
		in    string
		want  record.EndReason
		known bool
	}{
		{"Ok", record.EndOK, true},
		{"start data mismatch", record.EndStartMismatch, true},
		{"UNKNOWN_EXCEPTION", record.EndUnknownException, true},
		{"", record.EndOK, true},
		{"power glitch", record.EndReason("power glitch"), false},
		{"  Fan Stall ", record.EndReason("Fan Stall"), false},
	}
	for _, tt := range tests {
		got := record.ParseEndReason(tt.in)
		require.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.known, got.IsKnown(), tt.in)
	}
}

func TestEndReasonIsError(t *testing.T) {
	assert.False(t, record.EndOK.IsError())
	assert.False(t, record.EndDisarmed.IsError())
	assert.True(t, record.EndStartMismatch.IsError())
	assert.True(t, record.EndReason("SOMETHING_NEW").IsError())
}
