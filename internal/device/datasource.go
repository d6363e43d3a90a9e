package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"daqbridge/internal/logging"
	"daqbridge/internal/record"
	"daqbridge/internal/services"
)

// DataSourceOptions configures NewDataSource.
type DataSourceOptions struct {
	Address        string
	ConnectTimeout time.Duration
	Logger         *slog.Logger
	Dial           DialFunc
}

// DataSource opens record streams on the data port.
type DataSource struct {
	address        string
	connectTimeout time.Duration
	logger         *slog.Logger
	dial           DialFunc
}

// NewDataSource builds a data source. Connections are opened per stream.
func NewDataSource(opts DataSourceOptions) *DataSource {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	dial := opts.Dial
	if dial == nil {
		dialer := &net.Dialer{}
		dial = dialer.DialContext
	}
	return &DataSource{
		address:        opts.Address,
		connectTimeout: opts.ConnectTimeout,
		logger:         logger,
		dial:           dial,
	}
}

// Open dials the data port and requests a stream. The request line is
// "STREAM scaled=<bool> flush=<seconds>".
func (s *DataSource) Open(ctx context.Context, scaled bool, flush time.Duration) (record.Stream, error) {
	dialCtx := ctx
	if s.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.connectTimeout)
		defer cancel()
	}
	conn, err := s.dial(dialCtx, "tcp", s.address)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "device", "open stream", s.address, err)
	}
	request := "STREAM scaled=" + strconv.FormatBool(scaled) +
		" flush=" + strconv.FormatFloat(flush.Seconds(), 'f', -1, 64) + "\n"
	if _, err := conn.Write([]byte(request)); err != nil {
		_ = conn.Close()
		return nil, services.Wrap(services.ErrTransport, "device", "open stream", "send request", err)
	}
	s.logger.Debug("data stream opened",
		logging.String("address", s.address),
		logging.Bool("scaled", scaled),
		logging.Duration("flush", flush),
	)
	return &dataStream{conn: conn, decoder: json.NewDecoder(conn)}, nil
}

type wireRecord struct {
	Type        string                `json:"type"`
	Fields      []record.FieldCapture `json:"fields"`
	Missed      int                   `json:"missed"`
	Process     string                `json:"process"`
	Format      string                `json:"format"`
	SampleBytes int                   `json:"sample_bytes"`
	Rows        [][]float64           `json:"rows"`
	Samples     int                   `json:"samples"`
	Reason      string                `json:"reason"`
}

func (w wireRecord) toRecord() (record.Record, error) {
	switch w.Type {
	case "ready":
		return record.Ready{}, nil
	case "start":
		return record.Start{
			Fields:        w.Fields,
			MissedSamples: w.Missed,
			Process:       w.Process,
			Format:        w.Format,
			SampleBytes:   w.SampleBytes,
		}, nil
	case "frame":
		return record.Frame{Rows: w.Rows}, nil
	case "end":
		return record.End{RowsWritten: w.Samples, Reason: record.ParseEndReason(w.Reason)}, nil
	default:
		return nil, fmt.Errorf("unknown record type %q", w.Type)
	}
}

type dataStream struct {
	conn    net.Conn
	decoder *json.Decoder
	once    sync.Once
}

// Next decodes the following record. Cancelling ctx unblocks a pending read.
func (s *dataStream) Next(ctx context.Context) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	var wire wireRecord
	if err := s.decoder.Decode(&wire); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, services.Wrap(services.ErrTransport, "device", "decode record", "malformed stream", err)
		}
		return nil, services.Wrap(services.ErrTransport, "device", "read record", "", err)
	}
	rec, err := wire.toRecord()
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "device", "decode record", "", err)
	}
	return rec, nil
}

// Close releases the connection. It is safe to call more than once.
func (s *dataStream) Close() error {
	var err error
	s.once.Do(func() { err = s.conn.Close() })
	return err
}
