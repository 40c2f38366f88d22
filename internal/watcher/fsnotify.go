package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSNotifySource watches the parent directory of each tracked file,
// non-recursively, and forwards write events.
type FSNotifySource struct {
	dirs []string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFSNotifySource creates a source for the given file paths. Each distinct
// parent directory is watched once.
func NewFSNotifySource(files []string) *FSNotifySource {
	set := make(map[string]struct{})
	for _, f := range files {
		set[filepath.Dir(filepath.Clean(f))] = struct{}{}
	}
	dirs := make([]string, 0, len(set))
	for d := range set {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return &FSNotifySource{dirs: dirs}
}

// Dirs returns the directories this source subscribes to.
func (s *FSNotifySource) Dirs() []string {
	return s.dirs
}

func (s *FSNotifySource) Events(ctx context.Context) (<-chan Event, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	added := 0
	for _, dir := range s.dirs {
		if err := fsw.Add(dir); err != nil {
			slog.Warn("cannot watch directory", "dir", dir, "error", err)
			continue
		}
		added++
	}
	if added == 0 {
		fsw.Close()
		return nil, fmt.Errorf("none of %d directories could be watched", len(s.dirs))
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	ch := make(chan Event, 256)

	go func() {
		defer close(done)
		defer close(ch)
		defer fsw.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Write == 0 {
					continue
				}
				select {
				case ch <- Event{Path: filepath.Clean(ev.Name), Op: ev.Op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				slog.Warn("file watcher error", "error", err)
			}
		}
	}()

	slog.Info("file watcher started", "dirs", added)
	return ch, nil
}

func (s *FSNotifySource) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
