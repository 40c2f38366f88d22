// Package watermark holds per-file tailing state shared by the tail engine
// and the staleness monitor.
package watermark

import (
	"sort"
	"sync"
	"time"

	"github.com/setevik/logrelay/internal/router"
)

// File is the state of one tracked log file. Its watermark only moves
// forward. Tail passes on one File are serialized; reads and updates of the
// watermark and alert state are guarded by a separate short-held lock so the
// staleness monitor never waits on a scan.
type File struct {
	Path string
	// PeriodHours is the expected update interval. Zero disables staleness
	// checks.
	PeriodHours float64
	Target      router.Target

	pass sync.Mutex

	mu        sync.Mutex
	watermark time.Time
	lastAlert time.Time
	alerted   bool
	lastPass  time.Time
	passes    int
}

// NewFile creates state for path with both the watermark and the last alert
// instant set to created.
func NewFile(path string, periodHours float64, target router.Target, created time.Time) *File {
	return &File{
		Path:        path,
		PeriodHours: periodHours,
		Target:      target,
		watermark:   created,
		lastAlert:   created,
	}
}

// Period returns the expected update interval as a duration.
func (f *File) Period() time.Duration {
	return time.Duration(f.PeriodHours * float64(time.Hour))
}

// Watermark returns the instant up to which the file has been processed.
func (f *File) Watermark() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermark
}

// Pass runs fn with the current watermark while holding the file's pass
// lock. If fn succeeds and returns a later instant, the watermark advances
// to it; an error leaves the watermark untouched.
func (f *File) Pass(at time.Time, fn func(watermark time.Time) (time.Time, error)) error {
	f.pass.Lock()
	defer f.pass.Unlock()

	next, err := fn(f.Watermark())
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if next.After(f.watermark) {
		f.watermark = next
	}
	f.lastPass = at
	f.passes++
	return nil
}

// CheckStale reports whether a staleness alert is due at now and, if so,
// records now as the last alert instant. The first alert fires as soon as the
// file is stale; later ones only after resend has elapsed since the previous
// alert.
func (f *File) CheckStale(now time.Time, resend time.Duration) bool {
	if f.PeriodHours <= 0 {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if now.Sub(f.watermark) <= f.Period() {
		return false
	}
	if f.alerted && now.Sub(f.lastAlert) <= resend {
		return false
	}
	f.lastAlert = now
	f.alerted = true
	return true
}

// State is a point-in-time copy of a File's mutable fields.
type State struct {
	Path        string
	PeriodHours float64
	Channel     string
	Watermark   time.Time
	LastAlert   time.Time
	Alerted     bool
	LastPass    time.Time
	Passes      int
}

// Snapshot copies the file's state.
func (f *File) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Path:        f.Path,
		PeriodHours: f.PeriodHours,
		Channel:     f.Target.Channel,
		Watermark:   f.watermark,
		LastAlert:   f.lastAlert,
		Alerted:     f.alerted,
		LastPass:    f.lastPass,
		Passes:      f.passes,
	}
}

// Store is the fixed set of tracked files, keyed by absolute path. Files are
// added at construction and never removed.
type Store struct {
	files map[string]*File
	order []*File
}

// NewStore builds a store from files. Later duplicates of a path are ignored.
func NewStore(files ...*File) *Store {
	s := &Store{files: make(map[string]*File, len(files))}
	for _, f := range files {
		if _, dup := s.files[f.Path]; dup {
			continue
		}
		s.files[f.Path] = f
		s.order = append(s.order, f)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i].Path < s.order[j].Path })
	return s
}

// Lookup returns the file tracked at path.
func (s *Store) Lookup(path string) (*File, bool) {
	f, ok := s.files[path]
	return f, ok
}

// Files returns every tracked file in path order.
func (s *Store) Files() []*File {
	return s.order
}

// Len returns the number of tracked files.
func (s *Store) Len() int {
	return len(s.order)
}
