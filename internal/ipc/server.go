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
	"time"

	"triage/internal/daemon"
	"triage/internal/logging"
	"triage/internal/queue"
	"triage/internal/scheduler"
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

	// shutdown is signaled when a Stop RPC arrives so the daemon main loop
	// can exit.
	shutdown chan struct{}
	stopOnce sync.Once
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
	server := &Server{
		path:      path,
		daemon:    d,
		logger:    logging.NewComponentLogger(logger, "ipc"),
		listener:  listener,
		rpcServer: rpc.NewServer(),
		ctx:       serverCtx,
		cancel:    cancel,
		shutdown:  make(chan struct{}),
	}

	svc := &service{server: server}
	if err := server.rpcServer.RegisterName("Triage", svc); err != nil {
		cancel()
		listener.Close()
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
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
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

// ShutdownRequested is signaled when a client asks the daemon to stop.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
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
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun triage daemon stop"),
		)
	}
}

type service struct {
	server *Server
}

func runSummary(report scheduler.RunReport) RunSummary {
	return RunSummary{
		RunID:      report.RunID,
		Trigger:    report.Trigger,
		Started:    report.Started.Format(timeFormat),
		DurationMS: report.Duration.Milliseconds(),
		Processed:  report.Processed,
		Failed:     report.Failed,
	}
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.server.daemon.Status(s.server.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Schedule = status.Schedule
	resp.NextRun = status.NextRun.Format(timeFormat)
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.QueueStats = make(map[string]int, len(status.QueueStats))
	for k, v := range status.QueueStats {
		resp.QueueStats[string(k)] = v
	}
	if status.LastRun != nil {
		summary := runSummary(*status.LastRun)
		resp.LastRun = &summary
	}
	return nil
}

func (s *service) RunNow(_ RunNowRequest, resp *RunNowResponse) error {
	s.server.logger.Debug("manual run requested")
	report, err := s.server.daemon.RunNow(s.server.ctx)
	if err != nil {
		return err
	}
	resp.Run = runSummary(report)
	s.server.logger.Info("manual run completed via IPC",
		logging.String(logging.FieldEventType, "manual_run"),
		logging.String(logging.FieldRunID, report.RunID),
		logging.Int("processed", report.Processed),
		logging.Int("failed", report.Failed),
	)
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.server.logger.Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	s.server.stopOnce.Do(func() {
		close(s.server.shutdown)
	})
	resp.Stopped = true
	return nil
}

func (s *service) QueueAdd(req QueueAddRequest, resp *QueueAddResponse) error {
	if req.IssueNumber <= 0 {
		return fmt.Errorf("invalid issue number %d", req.IssueNumber)
	}
	ctx, cancel := s.opContext()
	defer cancel()
	item, err := s.server.daemon.AddIssue(ctx, req.IssueNumber, req.Priority)
	if err != nil {
		return err
	}
	resp.Item = FromQueueItem(item)
	s.server.logger.Info("issue queued via IPC",
		logging.String(logging.FieldEventType, "queue_add"),
		logging.Int64(logging.FieldIssueNumber, req.IssueNumber),
	)
	return nil
}

func (s *service) QueueSync(req QueueSyncRequest, resp *QueueSyncResponse) error {
	ctx, cancel := s.opContext()
	defer cancel()
	added, err := s.server.daemon.SyncOpenIssues(ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Added = added
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			return fmt.Errorf("unknown status %q", status)
		}
		statuses = append(statuses, parsed)
	}
	items, err := s.server.daemon.ListQueue(s.server.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Items = make([]QueueItem, 0, len(items))
	for _, item := range items {
		resp.Items = append(resp.Items, FromQueueItem(item))
	}
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if req.IssueNumber <= 0 {
		return fmt.Errorf("invalid issue number %d", req.IssueNumber)
	}
	item, err := s.server.daemon.GetQueueItem(s.server.ctx, req.IssueNumber)
	if err != nil {
		return err
	}
	resp.Item = FromQueueItem(item)
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	removed, err := s.server.daemon.ClearQueue(s.server.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.server.logger.Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueClearCompleted(_ QueueClearCompletedRequest, resp *QueueClearCompletedResponse) error {
	removed, err := s.server.daemon.ClearCompleted(s.server.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueClearFailed(_ QueueClearFailedRequest, resp *QueueClearFailedResponse) error {
	removed, err := s.server.daemon.ClearFailed(s.server.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueReset(_ QueueResetRequest, resp *QueueResetResponse) error {
	updated, err := s.server.daemon.ResetStuck(s.server.ctx)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.server.logger.Info("queue stuck items reset",
		logging.String(logging.FieldEventType, "queue_reset_stuck"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	updated, err := s.server.daemon.RetryFailed(s.server.ctx, req.IssueNumbers)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.server.logger.Info("queue items retried",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) QueueRemove(req QueueRemoveRequest, resp *QueueRemoveResponse) error {
	if req.IssueNumber <= 0 {
		return fmt.Errorf("invalid issue number %d", req.IssueNumber)
	}
	removed, err := s.server.daemon.RemoveIssue(s.server.ctx, req.IssueNumber)
	if err != nil {
		return err
	}
	resp.Removed = removed
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
	resp.Failed = health.Failed
	resp.Completed = health.Completed
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.server.daemon.DatabaseHealth(s.server.ctx)
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.TableExists = health.TableExists
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalItems = health.TotalItems
	resp.Error = health.Error
	return err
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.server.daemon.TestNotification(s.server.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

// opContext bounds GitHub-touching operations so a hung API call cannot pin
// an RPC connection forever.
func (s *service) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.server.ctx, 2*time.Minute)
}
