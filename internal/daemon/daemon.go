// Package daemon assembles the tail engine, router and staleness monitor
// into a single lifecycle with an ordered shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/setevik/logrelay/internal/config"
	"github.com/setevik/logrelay/internal/record"
	"github.com/setevik/logrelay/internal/reporter"
	"github.com/setevik/logrelay/internal/router"
	"github.com/setevik/logrelay/internal/staleness"
	"github.com/setevik/logrelay/internal/store"
	"github.com/setevik/logrelay/internal/tail"
	"github.com/setevik/logrelay/internal/watcher"
	"github.com/setevik/logrelay/internal/watermark"
)

// Watch restart backoff bounds.
const (
	restartWait    = time.Second
	maxRestartWait = time.Minute
)

// statusTimeout bounds the shutdown status message.
const statusTimeout = 10 * time.Second

// Option configures a Daemon.
type Option func(*Daemon)

// WithSource replaces the filesystem watch source.
func WithSource(src watcher.Source) Option {
	return func(d *Daemon) { d.source = src }
}

// WithHistory records every delivery attempt in db.
func WithHistory(db *store.DB) Option {
	return func(d *Daemon) { d.history = db }
}

// WithHost sets the host name used in status messages.
func WithHost(host string) Option {
	return func(d *Daemon) { d.host = host }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) { d.now = now }
}

// Daemon relays log records from the tracked files until its context ends.
type Daemon struct {
	cfg     *config.Config
	host    string
	now     func() time.Time
	source  watcher.Source
	history *store.DB

	files   *watermark.Store
	router  *router.Router
	engine  *tail.Engine
	monitor *staleness.Monitor
}

// New resolves every route and staleness destination against sink and
// prepares the per-file state. Unresolvable channels or tags are returned as
// configuration errors.
func New(cfg *config.Config, sink router.Sink, opts ...Option) (*Daemon, error) {
	d := &Daemon{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	if d.host == "" {
		d.host, _ = os.Hostname()
	}

	routes := make(map[string]router.Destination)
	for cat, r := range cfg.Routes() {
		routes[cat] = router.Destination(r)
	}
	rt, err := router.New(sink, routes,
		router.WithRecorder(d.record),
		router.WithClock(d.now),
	)
	if err != nil {
		return nil, fmt.Errorf("resolving routes: %w", err)
	}
	d.router = rt

	tracked, err := cfg.Tracked()
	if err != nil {
		return nil, err
	}
	if len(tracked) == 0 {
		return nil, errors.New("no files to track")
	}

	created := d.now()
	var (
		files []*watermark.File
		paths []string
		errs  []error
	)
	for _, tf := range tracked {
		var (
			period float64
			target router.Target
		)
		if tf.Period != nil {
			period = *tf.Period
			target, err = rt.Resolve(router.Destination{Channel: tf.Channel, Tags: tf.Tags})
			if err != nil {
				errs = append(errs, fmt.Errorf("files.%q: %w", tf.Pattern, err))
				continue
			}
		}
		files = append(files, watermark.NewFile(tf.Path, period, target, created))
		paths = append(paths, tf.Path)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	d.files = watermark.NewStore(files...)
	d.engine = tail.New(d.files, record.NewParser(cfg.DateFormat, time.Local), rt, cfg.BufferSize)
	d.monitor = staleness.New(d.files, rt, cfg.Staleness.ResendPeriod.Duration, cfg.Staleness.Tick.Duration)

	if d.source == nil {
		d.source = watcher.NewSupervisedSource(
			func() watcher.Source { return watcher.NewFSNotifySource(paths) },
			restartWait,
			maxRestartWait,
			0, // unlimited restarts
		)
	}
	return d, nil
}

// Files returns a snapshot of every tracked file.
func (d *Daemon) Files() []watermark.State {
	out := make([]watermark.State, 0, d.files.Len())
	for _, f := range d.files.Files() {
		out = append(out, f.Snapshot())
	}
	return out
}

// Run announces startup, relays records and checks staleness until ctx is
// cancelled, then shuts down in order: the watch subscription is released,
// in-flight tail passes finish, the shutdown status message is sent and the
// staleness timer stops. Run returns an error if the watch source's Events
// call fails or its channel closes on its own. The default source retries
// watch failures without limit, so those errors come from a source given
// with WithSource.
func (d *Daemon) Run(ctx context.Context) error {
	started := d.now()
	bg := context.WithoutCancel(ctx)

	events, err := d.source.Events(bg)
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}

	d.router.Status(ctx, reporter.Engaged(d.host, d.files.Len()))

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		// Passes stop only once the event channel closes.
		d.engine.Run(bg, events)
	}()

	monitorCtx, stopMonitor := context.WithCancel(bg)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		d.monitor.Run(monitorCtx)
	}()

	sdNotify("READY=1")
	slog.Info("logrelay running", "files", d.files.Len(), "host", d.host)

	var watchdogCh <-chan time.Time
	if wd := watchdogInterval(); wd > 0 {
		ticker := time.NewTicker(wd / 2)
		defer ticker.Stop()
		watchdogCh = ticker.C
		slog.Info("systemd watchdog enabled", "interval", wd)
	}

	var runErr error
loop:
	for {
		select {
		case <-watchdogCh:
			sdNotify("WATCHDOG=1")
		case <-engineDone:
			runErr = errors.New("file watcher stopped unexpectedly")
			break loop
		case <-ctx.Done():
			slog.Info("shutting down")
			break loop
		}
	}
	sdNotify("STOPPING=1")

	d.source.Stop()
	<-engineDone

	statusCtx, cancel := context.WithTimeout(bg, statusTimeout)
	d.router.Status(statusCtx, reporter.Disengaged(d.host, d.now().Sub(started)))
	cancel()

	stopMonitor()
	<-monitorDone

	slog.Info("logrelay stopped")
	return runErr
}

func (d *Daemon) record(del router.Delivery) {
	if d.history == nil {
		return
	}
	if err := d.history.Insert(store.FromDelivery(del)); err != nil {
		slog.Warn("failed to record delivery", "kind", del.Kind, "error", err)
	}
}
