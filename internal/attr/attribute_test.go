package attr_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daqbridge/internal/attr"
	"daqbridge/internal/services"
)

func TestPutRunsHookAfterStore(t *testing.T) {
	var seen []any
	a := attr.New("DAQ:CAPTURE:NumCapture", int64(0), attr.WithOnUpdate(func(_ context.Context, v any) error {
		seen = append(seen, v)
		return nil
	}))

	require.NoError(t, a.Put(context.Background(), "25"))
	assert.Equal(t, int64(25), a.Get())
	assert.Equal(t, []any{int64(25)}, seen)
}

func TestPutRejectedByValidator(t *testing.T) {
	called := false
	a := attr.New("DAQ:CAPTURE:FileName", "",
		attr.WithValidator(func(string, any) bool { return false }),
		attr.WithOnUpdate(func(context.Context, any) error {
			called = true
			return nil
		}),
	)

	err := a.Put(context.Background(), "out.csv")
	require.Error(t, err)
	assert.True(t, attr.IsRejected(err))
	assert.True(t, errors.Is(err, services.ErrValidation))
	assert.Equal(t, "", a.Get())
	assert.False(t, called)
}

func TestPutConversionFailureIsRejected(t *testing.T) {
	a := attr.New("N", int64(1))
	err := a.Put(context.Background(), "not a number")
	assert.True(t, attr.IsRejected(err))
	assert.Equal(t, int64(1), a.Get())
}

func TestSetQuietSkipsHook(t *testing.T) {
	calls := 0
	a := attr.New("MODE", "VIEW", attr.WithOnUpdate(func(context.Context, any) error {
		calls++
		return nil
	}))

	require.NoError(t, a.Set(context.Background(), "EDIT", attr.Quiet()))
	assert.Equal(t, 0, calls)
	require.NoError(t, a.Set(context.Background(), "VIEW"))
	assert.Equal(t, 1, calls)
}

func TestSetSeverityResetsWithoutOption(t *testing.T) {
	a := attr.New("SCALAR", int64(0))
	require.NoError(t, a.Set(context.Background(), int64(0), attr.WithSeverity(attr.Invalid, attr.AlarmUDF)))
	sev, alarm := a.Alarm()
	assert.Equal(t, attr.Invalid, sev)
	assert.Equal(t, attr.AlarmUDF, alarm)

	require.NoError(t, a.Set(context.Background(), int64(7)))
	sev, alarm = a.Alarm()
	assert.Equal(t, attr.NoAlarm, sev)
	assert.Equal(t, attr.AlarmNone, alarm)
}

func TestLimitsClampExternalWrites(t *testing.T) {
	a := attr.New("INDEX", int64(0), attr.WithLimits(0, 4))
	require.NoError(t, a.Put(context.Background(), 9))
	assert.Equal(t, int64(4), a.Get())

	a.SetLimits(0, 10)
	require.NoError(t, a.Put(context.Background(), 9))
	assert.Equal(t, int64(9), a.Get())

	low, high, ok := a.Limits()
	assert.True(t, ok)
	assert.Equal(t, 0.0, low)
	assert.Equal(t, 10.0, high)
}

func TestEnumAcceptsLabelOrIndex(t *testing.T) {
	a := attr.New("TRIGGER", int64(0), attr.WithLabels("Immediate", "BITA=0", "BITA=1"))
	require.NoError(t, a.Put(context.Background(), "BITA=1"))
	assert.Equal(t, int64(2), a.Get())
	require.NoError(t, a.Put(context.Background(), 1))
	assert.Equal(t, int64(1), a.Get())
	assert.True(t, attr.IsRejected(a.Put(context.Background(), 3)))
	assert.True(t, attr.IsRejected(a.Put(context.Background(), "BITB=0")))
}

func TestHookErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	a := attr.New("X", false, attr.WithOnUpdate(func(context.Context, any) error { return boom }))
	assert.ErrorIs(t, a.Put(context.Background(), true), boom)
	assert.Equal(t, true, a.Get())
}

func TestGetReturnsCopyOfArrays(t *testing.T) {
	a := attr.New("TIME1", []int64{1, 2, 3})
	got := a.Get().([]int64)
	got[0] = 99
	assert.Equal(t, []int64{1, 2, 3}, a.Get())
}

func TestSnapshotRendersBytesAsText(t *testing.T) {
	a := attr.New("FilePath", []byte("/data\x00\x00"), attr.WithDescription("output directory"))
	snap := a.Snapshot()
	assert.Equal(t, "/data", snap.Value)
	assert.Equal(t, "bytes", snap.Kind)
	assert.Nil(t, snap.Low)
	assert.Equal(t, "output directory", snap.Description)
}
