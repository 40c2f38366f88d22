// Package staleness alerts when a tracked file has not been updated within
// its expected period.
package staleness

import (
	"context"
	"log/slog"
	"time"

	"github.com/setevik/logrelay/internal/format"
	"github.com/setevik/logrelay/internal/router"
	"github.com/setevik/logrelay/internal/watermark"
)

// DefaultTick is the interval between staleness checks.
const DefaultTick = time.Second

// Notifier delivers an alert to a resolved destination.
type Notifier interface {
	Notify(ctx context.Context, source string, t router.Target, text string)
}

// Monitor periodically checks every file with an expected period. It reads
// watermarks but never writes them.
type Monitor struct {
	store    *watermark.Store
	notifier Notifier
	resend   time.Duration
	tick     time.Duration
	now      func() time.Time
}

// New creates a Monitor. A tick below one nanosecond selects DefaultTick.
func New(store *watermark.Store, notifier Notifier, resend, tick time.Duration) *Monitor {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Monitor{
		store:    store,
		notifier: notifier,
		resend:   resend,
		tick:     tick,
		now:      time.Now,
	}
}

// Run checks on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	slog.Info("staleness monitor started", "tick", m.tick, "resend", m.resend)
	for {
		select {
		case <-ctx.Done():
			slog.Info("staleness monitor stopped")
			return
		case <-ticker.C:
			m.Check(ctx, m.now())
		}
	}
}

// Check evaluates every file at now and sends the alerts that are due. It
// returns the number of alerts sent.
func (m *Monitor) Check(ctx context.Context, now time.Time) int {
	var sent int
	for _, f := range m.store.Files() {
		if !f.CheckStale(now, m.resend) {
			continue
		}
		slog.Warn("tracked file is stale",
			"file", f.Path,
			"period", format.Hours(f.PeriodHours),
			"last_update", f.Watermark(),
		)
		m.notifier.Notify(ctx, f.Path, f.Target, Message(f.Path, f.PeriodHours))
		sent++
	}
	return sent
}

// Message is the alert text for a file that missed its period.
func Message(path string, periodHours float64) string {
	return path + " has not received an update after " + format.Hours(periodHours) + " hrs"
}
