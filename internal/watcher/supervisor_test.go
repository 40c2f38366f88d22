package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fakeSource emits a fixed batch of events and then closes its channel.
type fakeSource struct {
	events []Event
	err    error

	mu      sync.Mutex
	stopped bool
}

func (f *fakeSource) Events(ctx context.Context) (<-chan Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func TestSupervisedSourceRestarts(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	factory := func() Source {
		mu.Lock()
		defer mu.Unlock()
		calls++
		switch calls {
		case 1:
			return &fakeSource{err: errors.New("inotify limit reached")}
		default:
			return &fakeSource{events: []Event{{Path: "/var/log/a.log", Op: fsnotify.Write}}}
		}
	}

	s := NewSupervisedSource(factory, time.Millisecond, 5*time.Millisecond, 0)
	events, err := s.Events(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			if ev.Path != "/var/log/a.log" {
				t.Errorf("event path = %q", ev.Path)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	s.Stop()
	for range events {
	}

	mu.Lock()
	defer mu.Unlock()
	if calls < 3 {
		t.Errorf("factory called %d times, want at least 3", calls)
	}
}

func TestSupervisedSourceMaxRestarts(t *testing.T) {
	factory := func() Source {
		return &fakeSource{err: errors.New("broken")}
	}

	s := NewSupervisedSource(factory, time.Millisecond, time.Millisecond, 2)
	events, err := s.Events(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected channel to close without events")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not give up")
	}
}

func TestSupervisedSourceStopsOnCancel(t *testing.T) {
	block := make(chan Event)
	src := &blockingSource{ch: block}
	s := NewSupervisedSource(func() Source { return src }, time.Millisecond, time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := s.Events(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not stop on cancel")
	}
	s.Stop()
}

type blockingSource struct {
	ch chan Event
}

func (b *blockingSource) Events(ctx context.Context) (<-chan Event, error) { return b.ch, nil }
func (b *blockingSource) Stop()                                            {}
