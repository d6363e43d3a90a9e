package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"daqbridge/internal/daemon"
	"daqbridge/internal/logging"
)

// ServiceName prefixes every RPC method.
const ServiceName = "Daqbridge"

const (
	requestTimeout    = 30 * time.Second
	defaultFollowWait = time.Second
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, requestTimeout)
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	ctx, cancel := s.requestContext()
	defer cancel()
	resp.Status = s.daemon.Status(ctx)
	return nil
}

func (s *service) CaptureStart(_ CaptureRequest, resp *CaptureResponse) error {
	ctx, cancel := s.requestContext()
	defer cancel()
	state, err := s.daemon.CaptureEnable(ctx)
	resp.State = state
	if err != nil {
		return err
	}
	s.log().Info("capture enabled via IPC",
		logging.String(logging.FieldEventType, "capture_enable"),
		logging.String(logging.FieldFilename, state.Filename))
	return nil
}

func (s *service) CaptureStop(_ CaptureRequest, resp *CaptureResponse) error {
	ctx, cancel := s.requestContext()
	defer cancel()
	state, err := s.daemon.CaptureDisable(ctx)
	resp.State = state
	if err != nil {
		return err
	}
	s.log().Info("capture disabled via IPC",
		logging.String(logging.FieldEventType, "capture_disable"),
		logging.Int64(logging.FieldRowsWritten, state.NumCaptured))
	return nil
}

func (s *service) AttrList(req AttrListRequest, resp *AttrListResponse) error {
	resp.Attributes = s.daemon.Attributes(strings.TrimSpace(req.Prefix))
	return nil
}

func (s *service) AttrGet(req AttrGetRequest, resp *AttrResponse) error {
	snap, err := s.daemon.Attribute(req.Name)
	if err != nil {
		return err
	}
	resp.Attribute = snap
	return nil
}

func (s *service) AttrPut(req AttrPutRequest, resp *AttrResponse) error {
	ctx, cancel := s.requestContext()
	defer cancel()
	s.log().Debug("attribute put requested", logging.String("attribute", req.Name))
	snap, err := s.daemon.PutAttribute(ctx, req.Name, req.Value)
	resp.Attribute = snap
	return err
}

func (s *service) TableList(_ TableListRequest, resp *TableListResponse) error {
	resp.Names = s.daemon.TableNames()
	return nil
}

func (s *service) TableShow(req TableShowRequest, resp *TableShowResponse) error {
	snap, err := s.daemon.Table(req.Name)
	if err != nil {
		return err
	}
	resp.Table = snap
	return nil
}

func (s *service) Sessions(req SessionsRequest, resp *SessionsResponse) error {
	ctx, cancel := s.requestContext()
	defer cancel()
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	items, err := s.daemon.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	resp.Sessions = items
	return nil
}

func (s *service) Logs(req LogsRequest, resp *LogsResponse) error {
	hub := s.daemon.LogStream()
	if hub == nil {
		return nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 200
	}

	if req.Tail && req.Since == 0 {
		events, next := hub.Tail(limit)
		resp.Events, resp.Next = filterEvents(events, req), next
		return nil
	}

	ctx := s.ctx
	if req.Follow {
		wait := time.Duration(req.WaitMillis) * time.Millisecond
		if wait <= 0 {
			wait = defaultFollowWait
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, req.Since, limit, req.Follow)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	resp.Events, resp.Next = filterEvents(events, req), next
	return nil
}

func filterEvents(events []logging.LogEvent, req LogsRequest) []logging.LogEvent {
	if req.Component == "" && req.SessionID == "" {
		return events
	}
	out := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if req.Component != "" && !strings.EqualFold(req.Component, evt.Component) {
			continue
		}
		if req.SessionID != "" && req.SessionID != evt.SessionID {
			continue
		}
		out = append(out, evt)
	}
	return out
}
