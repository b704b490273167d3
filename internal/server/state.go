package server

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/laulauland/ragrep/configs"
	"github.com/laulauland/ragrep/internal/chunk"
	"github.com/laulauland/ragrep/internal/embedrerank"
	"github.com/laulauland/ragrep/internal/index"
	"github.com/laulauland/ragrep/internal/rerr"
	"github.com/laulauland/ragrep/internal/retrieve"
	"github.com/laulauland/ragrep/internal/store"
	"github.com/laulauland/ragrep/internal/watch"
)

const socketName = "server.sock"
const pidName = "server.pid"

// State owns the triple the state_lock (spec §5) guards: the embedder,
// reranker and store for one open project. A Server wraps one State for
// its lifetime; the Client's in-process fallback builds a throwaway
// State for a single query.
type State struct {
	root string
	cfg  configs.Config
	log  *slog.Logger

	lock stateLock

	store     *store.Store
	embedder  embedrerank.Embedder
	reranker  embedrerank.Reranker
	indexer   *index.Indexer
	retriever *retrieve.Retriever

	// embedderLock/rerankerLock serialize concurrent query readers'
	// calls into the (non-reentrant) Embedder/Reranker: state_lock's
	// read lock already permits many simultaneous queries, and reindex
	// cannot overlap a query at all since it takes state_lock for
	// write — these two mutexes only protect against two queries
	// calling the same model concurrently (spec §5).
	embedderLock sync.Mutex
	rerankerLock sync.Mutex

	watcher *watch.Watcher
}

// Open runs the non-socket half of the boot sequence (spec §4.7 steps
// 3-5): open the Store (verifying embedder_id compatibility), load the
// Embedder/Reranker synchronously, and wire the Indexer/Retriever.
// Watcher start is left to the Server since WatcherUnavailable is
// non-fatal and logged, not propagated as a boot error.
func Open(ctx context.Context, root string, cfg configs.Config, log *slog.Logger) (*State, error) {
	if log == nil {
		log = slog.Default()
	}

	embedder := embedrerank.NewStaticEmbedder()
	reranker := embedrerank.NewStaticReranker()

	storePath := cfg.Store.Path
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(root, storePath)
	}
	st, err := store.Open(ctx, storePath, embedder.ID())
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	chunker := chunk.NewCodeChunker()
	ix := index.New(root, st, embedder, chunker, log)
	rt := retrieve.New(embedder, st, reranker, cfg.Retrieval.OversampleFactor, cfg.Retrieval.TopNDefault)

	return &State{
		root: root, cfg: cfg, log: log,
		store: st, embedder: embedder, reranker: reranker,
		indexer: ix, retriever: rt,
	}, nil
}

// OpenReadOnly wires the query-only half of the boot sequence against a
// read-only store handle (spec §5): no Indexer, no Watcher, nothing
// that could mutate the store. Used by the Client's in-process
// fallback for a single throwaway query when no server is listening.
func OpenReadOnly(ctx context.Context, root string, cfg configs.Config, log *slog.Logger) (*State, error) {
	if log == nil {
		log = slog.Default()
	}

	embedder := embedrerank.NewStaticEmbedder()
	reranker := embedrerank.NewStaticReranker()

	storePath := cfg.Store.Path
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(root, storePath)
	}
	st, err := store.OpenReadOnly(ctx, storePath, embedder.ID())
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	rt := retrieve.New(embedder, st, reranker, cfg.Retrieval.OversampleFactor, cfg.Retrieval.TopNDefault)

	return &State{
		root: root, cfg: cfg, log: log,
		store: st, embedder: embedder, reranker: reranker,
		retriever: rt,
	}, nil
}

// Close stops the watcher, then releases the embedder, reranker and
// store, in that order, matching spec §4.7's shutdown sequence.
func (s *State) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	var firstErr error
	if err := s.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.reranker.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// StartWatcher starts the file watcher if cfg.Watch.Enabled. A
// WatcherUnavailable error is logged and swallowed: the server degrades
// to manual reindex rather than failing boot (spec §4.6, §4.7).
func (s *State) StartWatcher(ctx context.Context) {
	if !s.cfg.Watch.Enabled {
		return
	}
	debounce := time.Duration(s.cfg.Watch.DebounceMs) * time.Millisecond
	w := watch.New(s.root, debounce, s.log)
	if err := w.Start(ctx); err != nil {
		s.log.Warn("watcher unavailable, degrading to manual reindex", slog.String("error", err.Error()))
		return
	}
	s.watcher = w
	go s.consumeWatchBatches(ctx)
}

func (s *State) consumeWatchBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-s.watcher.Batches():
			if !ok {
				return
			}
			if !s.lock.lock(writeLockTimeout) {
				s.log.Warn("reindex skipped: state lock busy", slog.Int("files", len(batch)))
				continue
			}
			result, err := s.indexer.ReindexFiles(ctx, batch)
			s.lock.unlock()
			if err != nil {
				s.log.Error("watch-triggered reindex failed", slog.String("error", err.Error()))
				continue
			}
			s.log.Info("watch-triggered reindex",
				slog.Int("files_indexed", result.FilesIndexed),
				slog.Int("reused", result.Reused),
				slog.Int("recomputed", result.Recomputed))
		}
	}
}

const writeLockTimeout = 5 * time.Second

// Search runs one query under the state_lock's read guard, serializing
// the actual embedder/reranker calls behind embedderLock/rerankerLock
// so two concurrent queries never race the same model instance (§5).
// queryTimeout bounds how long Search waits for the read lock before
// giving up with Busy; it does not bound the query itself.
func (s *State) Search(ctx context.Context, q retrieve.Query, queryTimeout time.Duration) ([]retrieve.Result, int, error) {
	if !s.lock.rlock(queryTimeout) {
		return nil, 0, rerr.Busy("timed out waiting for state lock")
	}
	defer s.lock.runlock()

	s.embedderLock.Lock()
	defer s.embedderLock.Unlock()
	s.rerankerLock.Lock()
	defer s.rerankerLock.Unlock()

	return s.retriever.Search(ctx, q)
}

// Reindex runs an explicit reindex request under the state_lock's write
// guard, excluding all concurrent queries for its duration (§5).
func (s *State) Reindex(ctx context.Context, paths []string, timeout time.Duration) (index.Result, error) {
	if !s.lock.lock(timeout) {
		return index.Result{}, rerr.Busy("timed out waiting for state lock")
	}
	defer s.lock.unlock()
	return s.indexer.ReindexFiles(ctx, paths)
}
