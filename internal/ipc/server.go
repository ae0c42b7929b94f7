package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"scanwatch/internal/daemon"
	"scanwatch/internal/logging"
	"scanwatch/internal/queue"
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

	// onStop is invoked once when a Stop RPC arrives. The process owner
	// uses it to begin shutdown.
	onStop   func()
	stopOnce sync.Once
}

// NewServer configures the IPC server at the given socket path. onStop is
// called when a client requests daemon shutdown; it may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, onStop func(), logger *slog.Logger) (*Server, error) {
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
	server := &Server{
		path:      path,
		daemon:    d,
		logger:    logging.NewComponentLogger(logger, "ipc"),
		listener:  listener,
		rpcServer: rpc.NewServer(),
		ctx:       serverCtx,
		cancel:    cancel,
		onStop:    onStop,
	}
	svc := &service{server: server}
	if err := server.rpcServer.RegisterName("Scanwatch", svc); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	return server, nil
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
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
			logging.String(logging.FieldErrorHint, "Remove the socket file manually before the next start"))
	}
}

func (s *Server) requestStop() {
	s.stopOnce.Do(func() {
		if s.onStop != nil {
			go s.onStop()
		}
	})
}

type service struct {
	server *Server
}

func (s *service) log() *slog.Logger {
	return s.server.logger
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.server.daemon.Status(s.server.ctx)
	resp.Running = status.Running
	resp.PendingScans = status.PendingScans
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.LastError = status.Workflow.LastError
	resp.PID = os.Getpid()
	resp.QueueStats = map[string]int{
		string(queue.StatusPending):    status.Workflow.Queue.Pending,
		string(queue.StatusProcessing): status.Workflow.Queue.Processing,
		string(queue.StatusCompleted):  status.Workflow.Queue.Completed,
		string(queue.StatusFailed):     status.Workflow.Queue.Failed,
		string(queue.StatusReview):     status.Workflow.Queue.Review,
	}
	resp.AvgElapsedMs = status.Workflow.Queue.AvgMs
	if status.Workflow.LastItem != nil {
		item := FromItem(status.Workflow.LastItem)
		resp.LastItem = &item
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	s.server.requestStop()
	resp.Stopped = true
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			return fmt.Errorf("unknown queue status %q", status)
		}
		statuses = append(statuses, parsed)
	}
	items, err := s.server.daemon.ListQueue(s.server.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Items = make([]QueueItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		resp.Items = append(resp.Items, FromItem(item))
	}
	return nil
}

func (s *service) QueueClear(req QueueClearRequest, resp *QueueClearResponse) error {
	var (
		removed int64
		err     error
	)
	switch req.Scope {
	case "", "all":
		removed, err = s.server.daemon.ClearQueue(s.server.ctx)
	case "completed":
		removed, err = s.server.daemon.ClearCompleted(s.server.ctx)
	case "failed":
		removed, err = s.server.daemon.ClearFailed(s.server.ctx)
	default:
		return fmt.Errorf("unknown clear scope %q", req.Scope)
	}
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.String("scope", req.Scope),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	updated, err := s.server.daemon.RetryFailed(s.server.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("queue items retried",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.server.daemon.QueueHealth(s.server.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Pending = health.Pending
	resp.Processing = health.Processing
	resp.Completed = health.Completed
	resp.Failed = health.Failed
	resp.Review = health.Review
	resp.AvgMs = health.AvgMs
	return nil
}

func (s *service) ProcessFile(req ProcessFileRequest, resp *ProcessFileResponse) error {
	item, err := s.server.daemon.AddFile(s.server.ctx, req.Path)
	if err != nil {
		return err
	}
	resp.Item = FromItem(item)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.server.daemon.TestNotification(s.server.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
