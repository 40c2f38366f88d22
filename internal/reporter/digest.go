// Package reporter builds the human-readable texts logrelay sends about
// itself: status messages and delivery digests.
package reporter

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/setevik/logrelay/internal/router"
	"github.com/setevik/logrelay/internal/store"
)

// DigestSummary holds aggregated delivery counts for a digest period.
type DigestSummary struct {
	Host  string
	Since time.Time
	Until time.Time

	Records        int
	ByCategory     map[string]int // category -> count
	BySource       map[string]int // file -> records
	StaleAlerts    int
	StaleBreakdown map[string]int // file -> alerts
	StatusMessages int
	Failed         int
}

// BuildDigest aggregates history entries into a DigestSummary.
func BuildDigest(host string, entries []*store.Entry, since, until time.Time) *DigestSummary {
	d := &DigestSummary{
		Host:           host,
		Since:          since,
		Until:          until,
		ByCategory:     make(map[string]int),
		BySource:       make(map[string]int),
		StaleBreakdown: make(map[string]int),
	}

	for _, e := range entries {
		if !e.Delivered {
			d.Failed++
		}
		switch e.Kind {
		case router.KindRecord:
			d.Records++
			cat := e.Category
			if cat == "" {
				cat = "unknown"
			}
			d.ByCategory[cat]++
			d.BySource[sourceName(e.Source)]++
		case router.KindStale:
			d.StaleAlerts++
			d.StaleBreakdown[sourceName(e.Source)]++
		case router.KindStatus:
			d.StatusMessages++
		}
	}

	return d
}

func sourceName(path string) string {
	if path == "" {
		return "unknown"
	}
	return filepath.Base(path)
}

// FormatDigest formats a DigestSummary as plain text for chat or stdout.
func FormatDigest(d *DigestSummary) string {
	var b strings.Builder

	dateRange := fmt.Sprintf("%s - %s",
		d.Since.Local().Format("Jan 02 15:04"),
		d.Until.Local().Format("Jan 02 15:04"))

	fmt.Fprintf(&b, "=== %s ===\n", d.Host)
	fmt.Fprintf(&b, "Period: %s\n\n", dateRange)

	fmt.Fprintf(&b, "Records relayed:  %d", d.Records)
	if d.Records > 0 {
		fmt.Fprintf(&b, " (%s)", formatBreakdown(d.ByCategory))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Busiest files:    ")
	if len(d.BySource) > 0 {
		b.WriteString(formatBreakdown(d.BySource))
	} else {
		b.WriteString("none")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Stale alerts:     %d", d.StaleAlerts)
	if d.StaleAlerts > 0 {
		fmt.Fprintf(&b, " (%s)", formatBreakdown(d.StaleBreakdown))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Status messages:  %d\n", d.StatusMessages)
	fmt.Fprintf(&b, "Failed sends:     %d\n", d.Failed)

	return b.String()
}

// FormatDigestTitle generates the first line of a digest message.
func FormatDigestTitle(since, until time.Time) string {
	return fmt.Sprintf(":bar_chart: logrelay digest (%s-%s)",
		since.Local().Format("Jan 02"),
		until.Local().Format("Jan 02"))
}

// formatBreakdown turns a map[string]int into "foo ×2, bar ×1" sorted by
// count desc, then name.
func formatBreakdown(m map[string]int) string {
	type entry struct {
		name  string
		count int
	}

	entries := make([]entry, 0, len(m))
	for name, count := range m {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s ×%d", e.name, e.count)
	}
	return strings.Join(parts, ", ")
}
