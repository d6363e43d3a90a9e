package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"daqbridge/internal/logging"
	"daqbridge/internal/metrics"
	"daqbridge/internal/services"
)

// ErrDevice wraps an ERR reply from the device.
var ErrDevice = fmt.Errorf("%w: device rejected command", services.ErrDevice)

// DialFunc opens a connection to the device.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ClientOptions configures NewClient.
type ClientOptions struct {
	Address        string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	// Dial replaces net.Dialer for tests.
	Dial DialFunc
}

// Client speaks the line protocol of the control port. Commands are
// serialized; the connection is dialled on first use and redialled after any
// transport failure.
type Client struct {
	address        string
	connectTimeout time.Duration
	commandTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	dial           DialFunc

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	dials  int
}

// NewClient builds a client. No connection is made until the first Send.
func NewClient(opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	dial := opts.Dial
	if dial == nil {
		dialer := &net.Dialer{}
		dial = dialer.DialContext
	}
	return &Client{
		address:        opts.Address,
		connectTimeout: opts.ConnectTimeout,
		commandTimeout: opts.CommandTimeout,
		logger:         logger,
		metrics:        opts.Metrics,
		dial:           dial,
	}
}

// Address returns the control address.
func (c *Client) Address() string { return c.address }

// Send writes one command and returns its response lines. Single line
// replies yield the text after "OK =", or nothing for a bare "OK".
func (c *Client) Send(ctx context.Context, cmd Command) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines, err := c.sendLocked(ctx, cmd)
	c.metrics.RecordDeviceCommand(cmd.Name(), err)
	return lines, err
}

func (c *Client) sendLocked(ctx context.Context, cmd Command) ([]string, error) {
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	conn := c.conn

	deadline := time.Time{}
	if c.commandTimeout > 0 {
		deadline = time.Now().Add(c.commandTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	payload := strings.Join(cmd.Lines(), "\n") + "\n"
	if _, err := conn.Write([]byte(payload)); err != nil {
		return nil, c.transportFailure(ctx, cmd, "write", err)
	}

	if cmd.Multiline() {
		return c.readMultilineLocked(ctx, cmd)
	}
	line, err := c.readLineLocked()
	if err != nil {
		return nil, c.transportFailure(ctx, cmd, "read", err)
	}
	switch {
	case line == "OK":
		return nil, nil
	case strings.HasPrefix(line, "OK ="):
		return []string{strings.TrimPrefix(line, "OK =")}, nil
	case strings.HasPrefix(line, "ERR"):
		return nil, fmt.Errorf("%w: %s: %s", ErrDevice, describe(cmd), strings.TrimSpace(strings.TrimPrefix(line, "ERR")))
	default:
		return nil, c.protocolFailure(cmd, line)
	}
}

func (c *Client) readMultilineLocked(ctx context.Context, cmd Command) ([]string, error) {
	var out []string
	for {
		line, err := c.readLineLocked()
		if err != nil {
			return nil, c.transportFailure(ctx, cmd, "read", err)
		}
		switch {
		case line == ".":
			return out, nil
		case strings.HasPrefix(line, "!"):
			out = append(out, line[1:])
		case strings.HasPrefix(line, "ERR") && len(out) == 0:
			return nil, fmt.Errorf("%w: %s: %s", ErrDevice, describe(cmd), strings.TrimSpace(strings.TrimPrefix(line, "ERR")))
		default:
			return nil, c.protocolFailure(cmd, line)
		}
	}
}

func (c *Client) readLineLocked() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialCtx := ctx
	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}
	conn, err := c.dial(dialCtx, "tcp", c.address)
	if err != nil {
		marker := services.ErrTransport
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, "device", "connect", c.address, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.dials++
	if c.dials > 1 {
		c.logger.Info("device control channel reconnected",
			logging.String(logging.FieldEventType, "device_reconnected"),
			logging.String("address", c.address),
		)
	}
	return nil
}

// transportFailure drops the connection so the next command redials.
func (c *Client) transportFailure(ctx context.Context, cmd Command, op string, err error) error {
	c.closeLocked()
	marker := services.ErrTransport
	var netErr net.Error
	if ctx.Err() != nil {
		err = errors.Join(ctx.Err(), err)
	} else if errors.As(err, &netErr) && netErr.Timeout() {
		marker = services.ErrTimeout
	}
	return services.Wrap(marker, "device", op, describe(cmd), err)
}

func (c *Client) protocolFailure(cmd Command, line string) error {
	c.closeLocked()
	return services.Wrap(services.ErrTransport, "device", "read", describe(cmd), fmt.Errorf("unexpected reply %q", line))
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

// Reset drops the control connection. The next command redials.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

// Close releases the connection.
func (c *Client) Close() error {
	c.Reset()
	return nil
}

// Ping checks that the device answers an identification query.
func (c *Client) Ping(ctx context.Context) (string, error) {
	lines, err := c.Send(ctx, Get{Field: "*IDN"})
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}

func describe(cmd Command) string {
	if s, ok := cmd.(fmt.Stringer); ok {
		return s.String()
	}
	return cmd.Name()
}
