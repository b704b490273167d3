// Package index drives the Chunker, Embedder and Store together: a full
// workspace index, incremental per-file reindex with cache reuse (spec
// §4.4), and startup reconciliation for edits made while no server ran.
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/laulauland/ragrep/internal/chunk"
	"github.com/laulauland/ragrep/internal/embedrerank"
	"github.com/laulauland/ragrep/internal/store"
)

// Result summarizes one index pass for the event log.
type Result struct {
	FilesIndexed int
	FilesSkipped int
	ChunksTotal  int
	Reused       int
	Recomputed   int
}

// Indexer ties the Chunker, Embedder and Store together. One Indexer
// serves one workspace root.
type Indexer struct {
	root     string
	store    *store.Store
	embedder embedrerank.Embedder
	chunker  chunk.Chunker
	registry *chunk.LanguageRegistry
	log      *slog.Logger
}

// New constructs an Indexer over an already-open Store.
func New(root string, st *store.Store, embedder embedrerank.Embedder, chunker chunk.Chunker, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		root: root, store: st, embedder: embedder, chunker: chunker,
		registry: chunk.DefaultRegistry(), log: log,
	}
}

// FullIndex walks the workspace root and indexes every file from scratch.
// Per spec §4.4: "transactionally per-file" — a failure on one file is
// logged and skipped, prior files remain persisted.
func (ix *Indexer) FullIndex(ctx context.Context) (Result, error) {
	files, err := scanWorkspace(ix.root, ix.registry)
	if err != nil {
		return Result{}, err
	}

	var result Result
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}

	sem := make(chan struct{}, workers)
	g, gctx := errgroup.WithContext(ctx)
	resultsCh := make(chan fileIndexOutcome, len(files))

	for _, f := range files {
		f := f
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			outcome := ix.indexOneFile(gctx, f.Path, f.Abs)
			resultsCh <- outcome
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(resultsCh)
	}()

	for outcome := range resultsCh {
		if outcome.err != nil {
			ix.log.Warn("index: skipping file", slog.String("path", outcome.path), slog.String("error", outcome.err.Error()))
			result.FilesSkipped++
			continue
		}
		result.FilesIndexed++
		result.ChunksTotal += outcome.chunks
		result.Reused += outcome.reused
		result.Recomputed += outcome.recomputed
	}

	return result, nil
}

type fileIndexOutcome struct {
	path       string
	chunks     int
	reused     int
	recomputed int
	err        error
}

func (ix *Indexer) indexOneFile(ctx context.Context, relPath, absPath string) fileIndexOutcome {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fileIndexOutcome{path: relPath, err: err}
	}

	chunks, err := ix.chunker.Chunk(ctx, &chunk.FileInput{
		Path: relPath, Content: content, Extension: filepath.Ext(relPath),
	})
	if err != nil {
		return fileIndexOutcome{path: relPath, err: err}
	}

	reused, recomputed, err := ix.embedAndInsert(ctx, chunks, nil)
	if err != nil {
		return fileIndexOutcome{path: relPath, err: err}
	}
	return fileIndexOutcome{path: relPath, chunks: len(chunks), reused: reused, recomputed: recomputed}
}

// ReindexFiles performs the incremental per-file reindex algorithm of
// spec §4.4 for each path in paths (workspace-relative). Deleted files
// (no longer present on disk) are removed from the Store and nothing
// else happens for them.
func (ix *Indexer) ReindexFiles(ctx context.Context, paths []string) (Result, error) {
	var result Result

	for _, relPath := range paths {
		absPath := filepath.Join(ix.root, filepath.FromSlash(relPath))

		cache, err := ix.store.FetchEmbeddingsByFile(ctx, relPath)
		if err != nil {
			return result, err
		}

		if _, err := ix.store.DeleteFile(ctx, relPath); err != nil {
			return result, err
		}

		content, err := os.ReadFile(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			ix.log.Warn("reindex: skipping unreadable file", slog.String("path", relPath), slog.String("error", err.Error()))
			result.FilesSkipped++
			continue
		}

		chunks, err := ix.chunker.Chunk(ctx, &chunk.FileInput{
			Path: relPath, Content: content, Extension: filepath.Ext(relPath),
		})
		if err != nil {
			ix.log.Warn("reindex: chunk failed", slog.String("path", relPath), slog.String("error", err.Error()))
			result.FilesSkipped++
			continue
		}

		reused, recomputed, err := ix.embedAndInsert(ctx, chunks, cache)
		if err != nil {
			return result, err
		}

		result.FilesIndexed++
		result.ChunksTotal += len(chunks)
		result.Reused += reused
		result.Recomputed += recomputed
	}

	return result, nil
}

// ReconcileOnStartup catches edits made to the workspace while no server
// was running (spec is silent on this; supplemented from the teacher's
// ReconcileFilesOnStartup). It reindexes the union of every file
// currently on disk and every file path the Store still holds chunks
// for — ReindexFiles is itself a no-op past the cache-reuse check for
// files whose content did not change, so reconciling unconditionally is
// correct, just not free.
func (ix *Indexer) ReconcileOnStartup(ctx context.Context) (Result, error) {
	scanned, err := scanWorkspace(ix.root, ix.registry)
	if err != nil {
		return Result{}, err
	}
	stored, err := ix.store.FilePaths(ctx)
	if err != nil {
		return Result{}, err
	}

	seen := make(map[string]bool, len(scanned)+len(stored))
	paths := make([]string, 0, len(scanned)+len(stored))
	for _, f := range scanned {
		if !seen[f.Path] {
			seen[f.Path] = true
			paths = append(paths, f.Path)
		}
	}
	for _, p := range stored {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	return ix.ReindexFiles(ctx, paths)
}

// embedAndInsert inserts chunks into the Store, reusing cache[hash] when
// present instead of calling the Embedder (spec §4.4 step 4).
func (ix *Indexer) embedAndInsert(ctx context.Context, chunks []chunk.Chunk, cache map[uint64][]float32) (reused, recomputed int, err error) {
	for _, c := range chunks {
		var vec []float32
		if cache != nil {
			if v, ok := cache[c.Hash]; ok {
				vec = v
				reused++
			}
		}
		if vec == nil {
			vec, err = ix.embedder.EmbedDocument(ctx, c.Text)
			if err != nil {
				return reused, recomputed, err
			}
			recomputed++
		}

		if _, err = ix.store.InsertChunk(ctx, c, vec); err != nil {
			return reused, recomputed, err
		}
	}
	return reused, recomputed, nil
}
