package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/laulauland/ragrep/configs"
	"github.com/laulauland/ragrep/internal/rerr"
	"github.com/laulauland/ragrep/internal/retrieve"
)

// defaultQueryTimeout matches spec §6.4's retrieval.query_timeout_ms
// default; Server uses cfg.Retrieval.QueryTimeoutMs when set.
const defaultQueryTimeout = 30 * time.Second

// defaultDrainTimeout matches spec §5's drain_timeout_ms.
const defaultDrainTimeout = 5 * time.Second

// Server owns the Unix socket accept loop and the one State it serves
// (spec §4.7). One project root maps to one Server for its lifetime.
type Server struct {
	root string
	cfg  configs.Config
	log  *slog.Logger

	state *State
	pid   *pidFile

	socketPath string
	listener   net.Listener

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// New builds a Server for root without performing any I/O; call Run to
// execute the full boot sequence.
func New(root string, cfg configs.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	dataDir := filepath.Join(root, dataDirName)
	return &Server{
		root: root, cfg: cfg, log: log,
		pid:        newPIDFile(filepath.Join(dataDir, pidName)),
		socketPath: filepath.Join(dataDir, socketName),
	}
}

const dataDirName = ".data"

// Run executes spec §4.7's boot sequence and blocks serving requests
// until ctx is canceled, then drains in-flight connections and cleans
// up. It returns Busy if another live server already owns the data
// directory.
func (s *Server) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.root, dataDirName), 0o755); err != nil {
		return rerr.IoErr("create data directory", err)
	}

	acquired, err := s.pid.acquire()
	if err != nil {
		return err
	}
	if !acquired {
		owner, _ := readOwnerPID(s.pid.path)
		if pidIsAlive(owner) {
			return rerr.Busy(fmt.Sprintf("server already running (pid %d)", owner))
		}
		return rerr.Internal("stale pid file could not be reclaimed", nil)
	}
	defer s.pid.release()

	if err := removeStaleSocket(s.socketPath); err != nil {
		return err
	}

	st, err := Open(ctx, s.root, s.cfg, s.log)
	if err != nil {
		return err
	}
	s.state = st
	defer s.state.Close()

	if _, err := s.state.indexer.ReconcileOnStartup(ctx); err != nil {
		s.log.Warn("startup reconciliation failed", slog.String("error", err.Error()))
	}

	s.state.StartWatcher(ctx)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return rerr.IoErr("listen on socket", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return rerr.IoErr("chmod socket", err)
	}
	s.listener = listener
	defer func() {
		listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.log.Info("ready", slog.String("root", s.root), slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.log.Error("accept error", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(defaultDrainTimeout):
		s.log.Warn("shutdown: drain timeout exceeded, closing remaining connections")
	}

	return nil
}

// handleConnection handles exactly one Request per connection, per spec
// §6.3.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	req, err := readRequest(reader)
	if err != nil {
		_ = writeMessage(writer, newErrorMessage(0, rerr.KindInternal, "malformed request: "+err.Error()))
		return
	}

	start := time.Now()
	results, numCandidates, searchErr := s.query(ctx, req)
	if searchErr != nil {
		kind := rerr.KindOf(searchErr)
		if !validErrorKind(kind) {
			kind = rerr.KindInternal
		}
		_ = writeMessage(writer, newErrorMessage(req.ID, kind, searchErr.Error()))
		return
	}

	wireResults := make([]Result, len(results))
	for i, r := range results {
		wireResults[i] = Result{
			FilePath: r.FilePath, StartLine: r.StartLine, EndLine: r.EndLine,
			Text: r.Text, Score: r.Score,
		}
	}
	stats := Stats{
		TotalTimeMs:   time.Since(start).Milliseconds(),
		NumCandidates: numCandidates,
		NumResults:    len(wireResults),
	}
	_ = writeMessage(writer, newResponse(req.ID, wireResults, stats))
}

// validErrorKind restricts wire errors to spec §6.3's closed ErrorKind
// set; anything else is reported as Internal so the wire contract never
// leaks an undocumented kind.
func validErrorKind(k rerr.Kind) bool {
	switch k {
	case rerr.KindInvalidQuery, rerr.KindBusy, rerr.KindInternal, rerr.KindIncompatibleIndex:
		return true
	default:
		return false
	}
}

func (s *Server) query(ctx context.Context, req Request) ([]retrieve.Result, int, error) {
	timeout := defaultQueryTimeout
	if s.cfg.Retrieval.QueryTimeoutMs > 0 {
		timeout = time.Duration(s.cfg.Retrieval.QueryTimeoutMs) * time.Millisecond
	}
	q := retrieve.Query{Text: req.Query, TopN: req.TopN, FilesOnly: req.FilesOnly}
	return s.state.Search(ctx, q, timeout)
}

// Close requests shutdown; Run returns once in-flight connections drain
// or the drain timeout elapses.
func (s *Server) Close() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
