package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/setevik/logrelay/internal/record"
)

type sent struct {
	channelID string
	text      string
}

type fakeSink struct {
	mu       sync.Mutex
	users    map[string]string
	channels map[string]string
	sent     []sent
	fail     error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		users:    map[string]string{"user1": "U1", "user2": "U2"},
		channels: map[string]string{"general": "general", "extra": "C2"},
	}
}

func (f *fakeSink) ResolveUser(name string) (string, error) {
	if id, ok := f.users[name]; ok {
		return id, nil
	}
	return "", ErrUnknownUser
}

func (f *fakeSink) ResolveChannel(name string) (string, error) {
	if id, ok := f.channels[name]; ok {
		return id, nil
	}
	return "", ErrUnknownChannel
}

func (f *fakeSink) MentionAll() string       { return "@channel" }
func (f *fakeSink) Mention(id string) string { return "@" + id }

func (f *fakeSink) Send(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sent{channelID, text})
	return nil
}

func TestRouteEndToEnd(t *testing.T) {
	sink := newFakeSink()
	r, err := New(sink, map[string]Destination{
		"INFO": {Channel: "general", Tags: []string{"all"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p := record.NewParser("2006-01-02 15:04:05", time.UTC)
	rec, err := p.Parse("2024-01-01 10:00:00|mod|INFO|hello")
	if err != nil {
		t.Fatal(err)
	}

	r.Route(context.Background(), "/var/log/app.log", rec)

	if len(sink.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sink.sent))
	}
	if sink.sent[0].channelID != "general" {
		t.Errorf("channel = %q, want general", sink.sent[0].channelID)
	}
	if want := "@channel, 2024-01-01 10:00:00:INFO:hello"; sink.sent[0].text != want {
		t.Errorf("text = %q, want %q", sink.sent[0].text, want)
	}
}

func TestRouteDropsUnroutedCategory(t *testing.T) {
	sink := newFakeSink()
	r, err := New(sink, map[string]Destination{"ERROR": {Channel: "extra"}})
	if err != nil {
		t.Fatal(err)
	}

	r.Route(context.Background(), "f", record.Record{Category: "INFO"})
	if len(sink.sent) != 0 {
		t.Errorf("unrouted record should be dropped, sent %v", sink.sent)
	}
	if r.Routed("INFO") || !r.Routed("ERROR") {
		t.Error("Routed() mismatch")
	}
}

func TestTagMarkup(t *testing.T) {
	sink := newFakeSink()
	r, err := New(sink, nil)
	if err != nil {
		t.Fatal(err)
	}

	tgt, err := r.Resolve(Destination{Channel: "extra", Tags: []string{"user1", "all", "user2"}})
	if err != nil {
		t.Fatal(err)
	}
	if tgt.ChannelID != "C2" {
		t.Errorf("ChannelID = %q, want C2", tgt.ChannelID)
	}
	if want := "@U1, @channel, @U2, "; tgt.Prefix != want {
		t.Errorf("Prefix = %q, want %q", tgt.Prefix, want)
	}

	untagged, err := r.Resolve(Destination{Channel: "general"})
	if err != nil {
		t.Fatal(err)
	}
	if untagged.Prefix != "" {
		t.Errorf("untagged prefix = %q", untagged.Prefix)
	}
}

func TestNewFailsOnUnresolvableReferences(t *testing.T) {
	sink := newFakeSink()

	_, err := New(sink, map[string]Destination{
		"INFO":  {Channel: "nowhere"},
		"ERROR": {Channel: "general", Tags: []string{"ghost"}},
	})
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !errors.Is(err, ErrUnknownChannel) || !errors.Is(err, ErrUnknownUser) {
		t.Errorf("error should wrap both lookup failures, got %v", err)
	}
	if !strings.Contains(err.Error(), "route INFO") || !strings.Contains(err.Error(), "route ERROR") {
		t.Errorf("error should name both routes, got %v", err)
	}
}

func TestSendFailureIsRecordedNotReturned(t *testing.T) {
	sink := newFakeSink()
	sink.fail = errors.New("transport down")

	var deliveries []Delivery
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r, err := New(sink, map[string]Destination{"status": {Channel: "general"}},
		WithRecorder(func(d Delivery) { deliveries = append(deliveries, d) }),
		WithClock(func() time.Time { return at }),
	)
	if err != nil {
		t.Fatal(err)
	}

	r.Status(context.Background(), "engaged")

	if len(deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(deliveries))
	}
	d := deliveries[0]
	if d.Kind != KindStatus || d.Category != record.Status || d.Err == nil || !d.Time.Equal(at) {
		t.Errorf("delivery = %+v", d)
	}
}

func TestStatusWithoutRouteIsSkipped(t *testing.T) {
	sink := newFakeSink()
	r, err := New(sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	r.Status(context.Background(), "engaged")
	if len(sink.sent) != 0 {
		t.Errorf("status without route should not send, got %v", sink.sent)
	}
}

func TestNotifyUsesTarget(t *testing.T) {
	sink := newFakeSink()
	var kinds []string
	r, err := New(sink, nil, WithRecorder(func(d Delivery) { kinds = append(kinds, d.Kind) }))
	if err != nil {
		t.Fatal(err)
	}
	tgt, err := r.Resolve(Destination{Channel: "general", Tags: []string{"all"}})
	if err != nil {
		t.Fatal(err)
	}

	r.Notify(context.Background(), "/var/log/backup.log", tgt, "/var/log/backup.log has not received an update after 24 hrs")

	if len(sink.sent) != 1 {
		t.Fatalf("sent = %v", sink.sent)
	}
	if want := "@channel, /var/log/backup.log has not received an update after 24 hrs"; sink.sent[0].text != want {
		t.Errorf("text = %q, want %q", sink.sent[0].text, want)
	}
	if len(kinds) != 1 || kinds[0] != KindStale {
		t.Errorf("kinds = %v", kinds)
	}
}
