// Package router maps record categories to chat destinations and forwards
// rendered messages to a notification sink.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/setevik/logrelay/internal/record"
)

// TagAll mentions everyone in the destination channel.
const TagAll = "all"

// Message kinds recorded in the delivery history.
const (
	KindRecord = "record"
	KindStale  = "stale"
	KindStatus = "status"
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownUser    = errors.New("unknown user")
)

// Sink is a chat-style notification transport with a user/channel directory.
type Sink interface {
	ResolveUser(name string) (string, error)
	ResolveChannel(name string) (string, error)
	// MentionAll returns the markup that notifies a whole channel.
	MentionAll() string
	// Mention returns the markup that notifies the user with the given id.
	Mention(userID string) string
	Send(ctx context.Context, channelID, text string) error
}

// Destination is a channel name plus the tags to mention there.
type Destination struct {
	Channel string
	Tags    []string
}

// Target is a Destination resolved against the sink directory.
type Target struct {
	Channel   string
	ChannelID string
	Prefix    string // tag markup, already rendered
}

// Delivery describes one attempt to send a message.
type Delivery struct {
	Time     time.Time
	Kind     string
	Source   string // file path, empty for status messages
	Category string
	Channel  string
	Text     string
	Err      error
}

// Option configures a Router.
type Option func(*Router)

// WithRecorder registers a callback invoked after every send attempt.
func WithRecorder(fn func(Delivery)) Option {
	return func(r *Router) { r.record = fn }
}

// WithClock overrides the clock used to timestamp deliveries.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router sends records to the destination configured for their category.
// Routes are resolved once at construction and never change.
type Router struct {
	sink   Sink
	routes map[string]Target
	record func(Delivery)
	now    func() time.Time
}

// New resolves every route against the sink directory. Any channel or tag
// that cannot be resolved is a configuration error.
func New(sink Sink, routes map[string]Destination, opts ...Option) (*Router, error) {
	r := &Router{
		sink:   sink,
		routes: make(map[string]Target, len(routes)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	var errs []error
	for category, dest := range routes {
		t, err := r.Resolve(dest)
		if err != nil {
			errs = append(errs, fmt.Errorf("route %s: %w", category, err))
			continue
		}
		r.routes[category] = t
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve turns a destination into a sendable target.
func (r *Router) Resolve(dest Destination) (Target, error) {
	id, err := r.sink.ResolveChannel(dest.Channel)
	if err != nil {
		return Target{}, fmt.Errorf("channel %q: %w", dest.Channel, err)
	}

	var prefix strings.Builder
	for _, tag := range dest.Tags {
		if tag == TagAll {
			prefix.WriteString(r.sink.MentionAll())
		} else {
			uid, err := r.sink.ResolveUser(tag)
			if err != nil {
				return Target{}, fmt.Errorf("tag %q: %w", tag, err)
			}
			prefix.WriteString(r.sink.Mention(uid))
		}
		prefix.WriteString(", ")
	}

	return Target{Channel: dest.Channel, ChannelID: id, Prefix: prefix.String()}, nil
}

// Routed reports whether category has a destination.
func (r *Router) Routed(category string) bool {
	_, ok := r.routes[category]
	return ok
}

// Route forwards rec to its category destination. Records with no route are
// dropped. Send failures are logged and dropped.
func (r *Router) Route(ctx context.Context, source string, rec record.Record) {
	t, ok := r.routes[rec.Category]
	if !ok {
		slog.Debug("no route for category, dropping record", "category", rec.Category, "file", source)
		return
	}
	r.send(ctx, KindRecord, source, rec.Category, t, rec.String())
}

// Notify sends text to an already resolved target.
func (r *Router) Notify(ctx context.Context, source string, t Target, text string) {
	r.send(ctx, KindStale, source, "", t, text)
}

// Status sends text to the status destination, if one is configured.
func (r *Router) Status(ctx context.Context, text string) {
	t, ok := r.routes[record.Status]
	if !ok {
		slog.Debug("no status route, skipping status message")
		return
	}
	r.send(ctx, KindStatus, "", record.Status, t, text)
}

func (r *Router) send(ctx context.Context, kind, source, category string, t Target, text string) {
	text = t.Prefix + text
	err := r.sink.Send(ctx, t.ChannelID, text)
	if err != nil {
		slog.Error("failed to send notification",
			"kind", kind,
			"channel", t.Channel,
			"file", source,
			"error", err,
		)
	} else {
		slog.Debug("notification sent", "kind", kind, "channel", t.Channel, "file", source)
	}

	if r.record != nil {
		r.record(Delivery{
			Time:     r.now(),
			Kind:     kind,
			Source:   source,
			Category: category,
			Channel:  t.Channel,
			Text:     text,
			Err:      err,
		})
	}
}
