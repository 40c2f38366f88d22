package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/setevik/logrelay/internal/config"
	"github.com/setevik/logrelay/internal/router"
	"github.com/setevik/logrelay/internal/store"
	"github.com/setevik/logrelay/internal/watcher"
)

type message struct {
	channelID string
	text      string
}

type fakeSink struct {
	mu   sync.Mutex
	sent []message
}

func (f *fakeSink) ResolveUser(name string) (string, error) {
	if name == "alice" {
		return "U1", nil
	}
	return "", router.ErrUnknownUser
}

func (f *fakeSink) ResolveChannel(name string) (string, error) {
	switch name {
	case "general", "ops", "status":
		return name, nil
	}
	return "", router.ErrUnknownChannel
}

func (f *fakeSink) MentionAll() string           { return "@channel" }
func (f *fakeSink) Mention(userID string) string { return "@" + userID }

func (f *fakeSink) Send(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message{channelID, text})
	return nil
}

func (f *fakeSink) messages() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.sent...)
}

func (f *fakeSink) waitFor(t *testing.T, pred func(message) bool) message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range f.messages() {
			if pred(m) {
				return m
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no matching message; sent %+v", f.messages())
	return message{}
}

// chanSource is a watch source driven by the test.
type chanSource struct {
	ch   chan watcher.Event
	once sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan watcher.Event, 16)}
}

func (s *chanSource) Events(ctx context.Context) (<-chan watcher.Event, error) {
	return s.ch, nil
}

func (s *chanSource) Stop() {
	s.once.Do(func() { close(s.ch) })
}

func testConfig(t *testing.T, logPath string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Notify.Backend = "ntfy"
	cfg.Notify.URL = "http://unused"
	cfg.Files[logPath] = config.FileConfig{Channel: "ops"}
	cfg.Status = &config.Route{Channel: "status"}
	cfg.Info = &config.Route{Channel: "general", Tags: []string{"all"}}
	cfg.Staleness.Tick = config.Duration{Duration: 10 * time.Millisecond}
	return cfg
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatal(err)
	}
}

func TestRunRelaysAndShutsDownInOrder(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	appendLine(t, logPath, "2000-01-01 00:00:00|mod|INFO|before start")

	sink := &fakeSink{}
	src := newChanSource()
	db, err := store.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	d, err := New(testConfig(t, logPath), sink, WithSource(src), WithHost("box"), WithHistory(db))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	sink.waitFor(t, func(m message) bool { return strings.Contains(m.text, "ENGAGED") })

	stamp := time.Now().Add(time.Minute).Format(config.DefaultDateFormat)
	appendLine(t, logPath, stamp+"|mod|INFO|hello")
	src.ch <- watcher.Event{Path: logPath, Op: fsnotify.Write}

	got := sink.waitFor(t, func(m message) bool { return strings.HasSuffix(m.text, ":INFO:hello") })
	if got.channelID != "general" || got.text != "@channel, "+stamp+":INFO:hello" {
		t.Errorf("relayed %+v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	msgs := sink.messages()
	if len(msgs) != 3 {
		t.Fatalf("sent %+v, want engaged, record, disengaged", msgs)
	}
	if msgs[0].channelID != "status" || !strings.Contains(msgs[0].text, "ENGAGED") {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[2].channelID != "status" || !strings.Contains(msgs[2].text, "DISENGAGED") {
		t.Errorf("last message = %+v", msgs[2])
	}

	count, err := db.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("history has %d entries, want 3", count)
	}
}

func TestRunSendsStaleAlert(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "backup.log")

	cfg := testConfig(t, logPath)
	period := 0.0001 // 360ms
	cfg.Files[logPath] = config.FileConfig{Period: &period, Channel: "ops", Tags: []string{"alice"}}

	sink := &fakeSink{}
	d, err := New(cfg, sink, WithSource(newChanSource()), WithHost("box"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	got := sink.waitFor(t, func(m message) bool { return m.channelID == "ops" })
	want := "@U1, " + logPath + " has not received an update after 0.0001 hrs"
	if got.text != want {
		t.Errorf("alert = %q, want %q", got.text, want)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	states := d.Files()
	if len(states) != 1 || !states[0].Alerted {
		t.Errorf("states = %+v", states)
	}
}

func TestRunFailsWhenSourceStops(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")

	src := newChanSource()
	d, err := New(testConfig(t, logPath), &fakeSink{}, WithSource(src))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	src.Stop()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error when the watch source stops")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewRejectsUnresolvableDestinations(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	cfg := testConfig(t, logPath)
	period := 24.0
	cfg.Files[logPath] = config.FileConfig{Period: &period, Channel: "nowhere"}
	cfg.Error = &config.Route{Channel: "general", Tags: []string{"ghost"}}

	_, err := New(cfg, &fakeSink{}, WithSource(newChanSource()))
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !errors.Is(err, router.ErrUnknownUser) {
		t.Errorf("err = %v, want unknown user", err)
	}
}

func TestNewStaleDestinationError(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	cfg := testConfig(t, logPath)
	period := 24.0
	cfg.Files[logPath] = config.FileConfig{Period: &period, Channel: "nowhere"}

	_, err := New(cfg, &fakeSink{}, WithSource(newChanSource()))
	if !errors.Is(err, router.ErrUnknownChannel) {
		t.Errorf("err = %v, want unknown channel", err)
	}
}

func TestLockSingleInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "logrelay.lock")

	first, err := Lock(path)
	if err != nil {
		t.Fatalf("first Lock: %v", err)
	}

	if _, err := Lock(path); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Lock err = %v, want ErrAlreadyRunning", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatal(err)
	}
	again, err := Lock(path)
	if err != nil {
		t.Fatalf("Lock after Unlock: %v", err)
	}
	_ = again.Unlock()
}

func TestWatchdogInterval(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	if watchdogInterval() != 0 {
		t.Error("unset WATCHDOG_USEC should disable the watchdog")
	}
	t.Setenv("WATCHDOG_USEC", "30000000")
	if got := watchdogInterval(); got != 30*time.Second {
		t.Errorf("watchdogInterval = %v, want 30s", got)
	}
	t.Setenv("WATCHDOG_USEC", "garbage")
	if watchdogInterval() != 0 {
		t.Error("invalid WATCHDOG_USEC should disable the watchdog")
	}
}
