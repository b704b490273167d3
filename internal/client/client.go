// Package client implements the upward socket discovery, wire dial, and
// in-process fallback of spec §4.8: a caller never needs to know
// whether a server happened to be running.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/laulauland/ragrep/configs"
	"github.com/laulauland/ragrep/internal/rerr"
	"github.com/laulauland/ragrep/internal/retrieve"
	"github.com/laulauland/ragrep/internal/server"
)

// ConnectTimeout bounds how long dialing the socket may take (spec §5).
const ConnectTimeout = 5 * time.Second

const socketRelPath = ".data/server.sock"

// Client resolves a project root's server, using the Unix socket when
// one is live and an in-process fallback otherwise.
type Client struct {
	root      string
	requestID atomic.Uint64
}

// New builds a Client that starts its upward search from cwd.
func New(cwd string) *Client {
	return &Client{root: cwd}
}

// Search runs q against the nearest running server, or a throwaway
// in-process engine if none is found or the socket is unreachable.
func (c *Client) Search(ctx context.Context, q retrieve.Query) ([]server.Result, server.Stats, error) {
	socketPath, found := discoverSocket(c.root)
	if found {
		results, stats, err := c.searchOverSocket(ctx, socketPath, q)
		if err == nil {
			return results, stats, nil
		}
		slog.Warn("socket search failed, falling back to in-process engine", slog.String("error", err.Error()))
	}
	return c.searchInProcess(ctx, q)
}

// discoverSocket walks upward from start looking for .data/server.sock,
// the same way version control tools locate a repository root.
func discoverSocket(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, socketRelPath)
		if info, err := os.Stat(candidate); err == nil && info.Mode()&os.ModeSocket != 0 {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func (c *Client) searchOverSocket(ctx context.Context, socketPath string, q retrieve.Query) ([]server.Result, server.Stats, error) {
	conn, err := net.DialTimeout("unix", socketPath, ConnectTimeout)
	if err != nil {
		return nil, server.Stats{}, rerr.IoErr("dial server socket", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, server.Stats{}, rerr.IoErr("set connection deadline", err)
	}

	req := server.Request{
		ID: c.requestID.Add(1), Query: q.Text, TopN: q.TopN, FilesOnly: q.FilesOnly,
	}
	if err := c.send(conn, req); err != nil {
		return nil, server.Stats{}, err
	}

	return c.receive(conn)
}

func (c *Client) send(conn net.Conn, req server.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return rerr.Internal("encode request", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return rerr.IoErr("write request", err)
	}
	return nil
}

// wireReply is a superset of Response and ErrorMessage used to decode
// whichever one the server actually sent, keyed by its "type" field.
type wireReply struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id"`
	Results []server.Result `json:"results"`
	Stats   server.Stats    `json:"stats"`
	Kind    rerr.Kind       `json:"kind"`
	Message string          `json:"message"`
}

func (c *Client) receive(conn net.Conn) ([]server.Result, server.Stats, error) {
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, server.Stats{}, rerr.IoErr("read response", err)
	}
	var reply wireReply
	if err := json.Unmarshal(line, &reply); err != nil {
		return nil, server.Stats{}, rerr.ParseErr("decode response", err)
	}
	if reply.Type == "error" {
		return nil, server.Stats{}, rerr.New(reply.Kind, reply.Message)
	}
	return reply.Results, reply.Stats, nil
}

// searchInProcess builds a one-shot, read-only server.State (load
// models, open the store via a read-only handle, run the retriever,
// discard), transparent to the caller's result format. Used when no
// server is running or the socket could not be reached. Spec §5
// requires this path never mutate the store it queries, so it wires
// server.OpenReadOnly rather than the Server's normal read-write Open.
func (c *Client) searchInProcess(ctx context.Context, q retrieve.Query) ([]server.Result, server.Stats, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, server.Stats{}, rerr.InvalidQuery("query is empty or whitespace-only")
	}

	root, err := projectRoot(c.root)
	if err != nil {
		return nil, server.Stats{}, err
	}

	cfg, err := configs.Load(root)
	if err != nil {
		return nil, server.Stats{}, err
	}

	st, err := server.OpenReadOnly(ctx, root, cfg, slog.Default())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Nothing has ever been indexed here; a read-only handle
			// must not create the store, so report no matches rather
			// than an error.
			return nil, server.Stats{}, nil
		}
		return nil, server.Stats{}, err
	}
	defer st.Close()

	timeout := time.Duration(cfg.Retrieval.QueryTimeoutMs) * time.Millisecond
	start := time.Now()
	results, numCandidates, err := st.Search(ctx, q, timeout)
	if err != nil {
		return nil, server.Stats{}, err
	}

	wireResults := make([]server.Result, len(results))
	for i, r := range results {
		wireResults[i] = server.Result{
			FilePath: r.FilePath, StartLine: r.StartLine, EndLine: r.EndLine,
			Text: r.Text, Score: r.Score,
		}
	}
	stats := server.Stats{
		TotalTimeMs:   time.Since(start).Milliseconds(),
		NumCandidates: numCandidates,
		NumResults:    len(wireResults),
	}
	return wireResults, stats, nil
}

// projectRoot walks upward from start looking for a .data directory,
// falling back to start itself (a fresh project with no index yet).
func projectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", rerr.IoErr("resolve project root", err)
	}
	original := dir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".data")); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return original, nil
		}
		dir = parent
	}
}
