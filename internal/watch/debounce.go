package watch

import (
	"sync"
	"time"
)

// debouncer coalesces rapid file events into a single pending path set,
// per spec §4.6: "Maintain a set pending ⊂ paths and a reset timer. On
// each accepted event, pending ← pending ∪ {path}, restart timer for
// debounce_ms. When the timer fires with non-empty pending, atomically
// swap it out and emit a single reindex request with that set."
//
// Unlike the teacher's Debouncer, this tracks only path membership, not
// per-event operation coalescing (CREATE/MODIFY/DELETE) — the Indexer's
// ReindexFiles determines create/modify/delete purely by statting the
// path at reindex time, so carrying operation-kind through the debounce
// window is not needed here.
type debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool

	// output is unbuffered: a flush blocks until the previous batch is
	// drained, which is how the watcher enforces spec's ordering
	// guarantee ("a second request is not emitted until the previous
	// reindex completes") as long as the consumer processes one batch
	// fully before reading the next.
	output chan []string
	stopCh chan struct{}
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]struct{}),
		output:  make(chan []string),
		stopCh:  make(chan struct{}),
	}
}

func (d *debouncer) add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	// Blocks until the consumer is ready, by design (see output doc).
	select {
	case d.output <- paths:
	case <-d.stopCh:
	}
}

func (d *debouncer) Output() <-chan []string {
	return d.output
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.stopCh)
}
