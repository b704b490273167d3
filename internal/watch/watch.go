// Package watch observes the workspace root for file changes and hands
// debounced batches of changed paths to a consumer, per spec §4.6.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/laulauland/ragrep/internal/chunk"
	"github.com/laulauland/ragrep/internal/gitignore"
	"github.com/laulauland/ragrep/internal/rerr"
)

// DefaultDebounce matches spec §4.6's default debounce_ms.
const DefaultDebounce = 1000 * time.Millisecond

// defaultPollInterval is used only if fsnotify itself cannot be
// constructed (rare: inotify instance limits, platform unsupported).
const defaultPollInterval = 2 * time.Second

// Watcher observes the workspace root recursively, filters events to
// spec §4.6's rules (supported extension, ignore rules, never the
// store's own data directory), and emits debounced path-set batches.
type Watcher struct {
	root     string
	registry *chunk.LanguageRegistry
	matcher  *gitignore.Matcher
	debounce time.Duration
	log      *slog.Logger

	fsw  *fsnotify.Watcher
	poll *pollWatcher

	debouncer *debouncer

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

// New builds a Watcher over root. It does not start watching until
// Start is called.
func New(root string, debounce time.Duration, log *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		root: root, registry: chunk.DefaultRegistry(),
		debounce: debounce, log: log,
	}
}

// Start begins watching. It returns WatcherUnavailable if neither
// fsnotify nor the polling fallback can be constructed; callers treat
// this as non-fatal and degrade to manual reindex (spec §4.6).
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	matcher, err := loadWatchIgnoreMatcher(w.root)
	if err != nil {
		return rerr.IoErr("load ignore rules", err)
	}
	w.matcher = matcher
	w.debouncer = newDebouncer(w.debounce)
	w.stopCh = make(chan struct{})

	fsw, fsErr := fsnotify.NewWatcher()
	if fsErr == nil {
		if err := addRecursive(fsw, w.root); err != nil {
			fsw.Close()
			fsErr = err
		}
	}

	if fsErr == nil {
		w.fsw = fsw
		go w.runFsnotify(ctx)
	} else {
		w.log.Warn("fsnotify unavailable, falling back to polling", slog.String("error", fsErr.Error()))
		poll, err := newPollWatcher(w.root, defaultPollInterval)
		if err != nil {
			return rerr.New(rerr.KindWatcherUnavailable, "neither fsnotify nor polling could be started: "+err.Error())
		}
		w.poll = poll
		go w.runPolling(ctx)
	}

	w.started = true
	return nil
}

// Stop halts the watcher and drains the debounce timer.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	close(w.stopCh)
	if w.fsw != nil {
		w.fsw.Close()
	}
	if w.poll != nil {
		w.poll.stop()
	}
	w.debouncer.Stop()
	w.started = false
}

// Batches returns the channel of debounced path-set reindex requests.
// Per spec's ordering guarantee, the consumer must finish acting on one
// batch before the next is emitted — the underlying debouncer's
// unbuffered channel blocks a new flush until this one is received.
func (w *Watcher) Batches() <-chan []string {
	return w.debouncer.Output()
}

func (w *Watcher) runFsnotify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRawEvent(event.Name, event.Op&fsnotify.Create != 0)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("fsnotify error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleRawEvent(absPath string, isCreate bool) {
	info, statErr := os.Stat(absPath)
	if statErr == nil && info.IsDir() {
		if isCreate {
			_ = addRecursive(w.fsw, absPath)
		}
		return
	}

	relPath, err := filepath.Rel(w.root, absPath)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	if w.shouldIgnore(relPath) {
		return
	}
	w.debouncer.add(relPath)
}

func (w *Watcher) runPolling(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case relPath, ok := <-w.poll.changesChan():
			if !ok {
				return
			}
			if w.shouldIgnore(relPath) {
				continue
			}
			w.debouncer.add(relPath)
		}
	}
}

func (w *Watcher) shouldIgnore(relPath string) bool {
	if relPath == dataDirName || strings.HasPrefix(relPath, dataDirName+"/") {
		return true
	}
	ext := filepath.Ext(relPath)
	if _, ok := w.registry.GetByExtension(ext); !ok {
		return true
	}
	return w.matcher.Match(relPath, false)
}

const dataDirName = ".data"

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			base := filepath.Base(path)
			if base == dataDirName || strings.HasPrefix(base, ".") {
				return filepath.SkipDir
			}
		}
		return fsw.Add(path)
	})
}

func loadWatchIgnoreMatcher(root string) (*gitignore.Matcher, error) {
	m := gitignore.New()
	for _, name := range []string{".gitignore", ".ragrepignore", filepath.Join(dataDirName, "ignore")} {
		if err := m.AddFromFile(filepath.Join(root, name), ""); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return m, nil
}
