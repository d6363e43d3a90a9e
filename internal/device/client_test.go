package device

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daqbridge/internal/metrics"
	"daqbridge/internal/services"
)

func scriptedReplies(line string, w *bufio.Writer, r *bufio.Reader) {
	switch {
	case line == "*IDN?":
		w.WriteString("OK =PandA 3.0\n")
	case line == "BAD?":
		w.WriteString("ERR No such field\n")
	case line == "SEQ1.TABLE?":
		w.WriteString("!1\n!2\n!3\n!4\n.\n")
	case line == "EMPTY.TABLE?":
		w.WriteString(".\n")
	case line == "*CHANGES.TABLE?":
		w.WriteString("!SEQ1.TABLE<\n.\n")
	case strings.HasSuffix(line, "<"):
		for {
			word, err := r.ReadString('\n')
			if err != nil || strings.TrimSpace(word) == "" {
				break
			}
		}
		w.WriteString("OK\n")
	case line == "SLOW?":
		// never answer
	case line == "GARBAGE?":
		w.WriteString("what\n")
	default:
		w.WriteString("OK\n")
	}
}

func newTestClient(t *testing.T, d *fakeDevice) *Client {
	t.Helper()
	c := NewClient(ClientOptions{
		Address:        d.addr(),
		ConnectTimeout: time.Second,
		CommandTimeout: 2 * time.Second,
		Metrics:        metrics.New(),
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientSingleLineReplies(t *testing.T) {
	d := newFakeDevice(t, scriptedReplies)
	c := newTestClient(t, d)
	ctx := context.Background()

	idn, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PandA 3.0", idn)

	lines, err := c.Send(ctx, Put{Field: "SEQ1.REPEATS", Value: "2"})
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = c.Send(ctx, Get{Field: "BAD"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
	assert.ErrorIs(t, err, services.ErrDevice)
	assert.Contains(t, err.Error(), "No such field")

	assert.Equal(t, 1, d.acceptCount(), "device errors keep the connection")
}

func TestClientMultilineReplies(t *testing.T) {
	d := newFakeDevice(t, scriptedReplies)
	c := newTestClient(t, d)
	ctx := context.Background()

	lines, err := c.Send(ctx, GetMultiline{Field: "SEQ1.TABLE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, lines)

	lines, err = c.Send(ctx, GetMultiline{Field: "EMPTY.TABLE"})
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = c.Send(ctx, GetChanges{Group: "TABLE"})
	require.NoError(t, err)
	changed, _ := ParseChanges(lines)
	assert.Contains(t, changed, "SEQ1.TABLE")
}

func TestClientPutTable(t *testing.T) {
	d := newFakeDevice(t, scriptedReplies)
	c := newTestClient(t, d)

	_, err := c.Send(context.Background(), PutTable{Field: "SEQ1.TABLE", Words: []string{"5", "6"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"SEQ1.TABLE<"}, d.requestLines(), "words are consumed by the table reply")
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	d := newFakeDevice(t, scriptedReplies)
	c := newTestClient(t, d)
	ctx := context.Background()

	_, err := c.Ping(ctx)
	require.NoError(t, err)
	d.dropConnections()

	// The first command after the drop may fail on the dead connection;
	// the following one redials.
	if _, err := c.Ping(ctx); err != nil {
		assert.True(t, errors.Is(err, services.ErrTransport) || errors.Is(err, services.ErrTimeout), "got %v", err)
		_, err = c.Ping(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, d.acceptCount())
}

func TestClientResetRedials(t *testing.T) {
	d := newFakeDevice(t, scriptedReplies)
	c := newTestClient(t, d)
	ctx := context.Background()

	_, err := c.Ping(ctx)
	require.NoError(t, err)
	c.Reset()
	_, err = c.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.acceptCount())
}

func TestClientHonoursContext(t *testing.T) {
	d := newFakeDevice(t, scriptedReplies)
	c := newTestClient(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.Send(ctx, Get{Field: "SLOW"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientRejectsUnexpectedReply(t *testing.T) {
	d := newFakeDevice(t, scriptedReplies)
	c := newTestClient(t, d)
	_, err := c.Send(context.Background(), Get{Field: "GARBAGE"})
	assert.ErrorIs(t, err, services.ErrTransport)
}

func TestClientDialFailure(t *testing.T) {
	c := NewClient(ClientOptions{Address: "127.0.0.1:1", ConnectTimeout: 200 * time.Millisecond})
	_, err := c.Send(context.Background(), Arm{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrTransport) || errors.Is(err, services.ErrTimeout), "got %v", err)
}
