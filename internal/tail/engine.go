// Package tail turns file modification notifications into ordered,
// de-duplicated log records by scanning each file backwards down to its
// watermark.
package tail

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/setevik/logrelay/internal/format"
	"github.com/setevik/logrelay/internal/record"
	"github.com/setevik/logrelay/internal/watcher"
	"github.com/setevik/logrelay/internal/watermark"
)

// Router receives records in chronological order per file.
type Router interface {
	Route(ctx context.Context, source string, rec record.Record)
}

// Engine runs tail passes for the files in a watermark store.
type Engine struct {
	store   *watermark.Store
	parser  *record.Parser
	router  Router
	bufSize int
	now     func() time.Time

	wg      sync.WaitGroup
	mu      sync.Mutex
	workers map[string]chan struct{}
}

// New creates an Engine. bufSize is the reverse-read chunk size.
func New(store *watermark.Store, parser *record.Parser, router Router, bufSize int) *Engine {
	return &Engine{
		store:   store,
		parser:  parser,
		router:  router,
		bufSize: bufSize,
		now:     time.Now,
		workers: make(map[string]chan struct{}),
	}
}

// Tail runs one pass over the file tracked at path and returns the number of
// records routed. Untracked paths are ignored. On error the watermark is left
// unchanged so the next pass re-reads the same lines.
func (e *Engine) Tail(ctx context.Context, path string) (int, error) {
	f, ok := e.store.Lookup(path)
	if !ok {
		return 0, nil
	}

	var routed int
	err := f.Pass(e.now(), func(wm time.Time) (time.Time, error) {
		batch, err := e.collect(path, wm)
		if err != nil {
			return wm, err
		}

		next := wm
		for _, rec := range batch {
			e.router.Route(ctx, path, rec)
			if rec.Timestamp.After(next) {
				next = rec.Timestamp
			}
		}
		routed = len(batch)
		return next, nil
	})
	if err != nil {
		return 0, fmt.Errorf("tailing %s: %w", path, err)
	}
	return routed, nil
}

// collect scans path backwards and returns, oldest first, the records newer
// than wm.
func (e *Engine) collect(path string, wm time.Time) ([]record.Record, error) {
	rf, err := OpenReverse(path, e.bufSize)
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	var (
		batch     []record.Record
		malformed int
	)
	for rf.Scan() {
		rec, err := e.parser.Parse(rf.Text())
		if err != nil {
			malformed++
			slog.Warn("skipping malformed log line", "file", path, "error", err)
			continue
		}
		if !rec.Timestamp.After(wm) {
			break
		}
		batch = append(batch, rec)
	}
	if err := rf.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(batch)

	slog.Debug("tail pass scanned file",
		"file", path,
		"size", format.Bytes(rf.Size()),
		"records", len(batch),
		"malformed", malformed,
	)
	return batch, nil
}

// Run dispatches modification events to one worker per file until events is
// closed or ctx is cancelled, then waits for in-flight passes to finish.
// Events for untracked paths and non-write operations are ignored. While a
// pass is running, further events for that file collapse into a single
// follow-up pass.
func (e *Engine) Run(ctx context.Context, events <-chan watcher.Event) {
	// Passes outlive ctx so a shutdown never leaves a half-routed batch.
	passCtx := context.WithoutCancel(ctx)

	defer e.drain()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Modified() {
				continue
			}
			if _, tracked := e.store.Lookup(ev.Path); !tracked {
				continue
			}
			e.trigger(passCtx, ev.Path)
		}
	}
}

func (e *Engine) trigger(ctx context.Context, path string) {
	e.mu.Lock()
	ch, ok := e.workers[path]
	if !ok {
		ch = make(chan struct{}, 1)
		e.workers[path] = ch
		e.wg.Add(1)
		go e.work(ctx, path, ch)
	}
	e.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
		// A pass is already queued; it will see this write too.
	}
}

func (e *Engine) work(ctx context.Context, path string, pending <-chan struct{}) {
	defer e.wg.Done()
	for range pending {
		n, err := e.Tail(ctx, path)
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("tracked file disappeared", "file", path)
			continue
		}
		if err != nil {
			slog.Error("tail pass failed, watermark unchanged", "file", path, "error", err)
			continue
		}
		if n > 0 {
			slog.Info("routed new records", "file", path, "count", n)
		}
	}
}

// drain stops accepting triggers and waits for queued passes to complete.
func (e *Engine) drain() {
	e.mu.Lock()
	for path, ch := range e.workers {
		close(ch)
		delete(e.workers, path)
	}
	e.mu.Unlock()
	e.wg.Wait()
}
