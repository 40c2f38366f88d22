package reporter

import (
	"fmt"
	"time"
)

// Engaged announces that monitoring has started.
func Engaged(host string, files int) string {
	return fmt.Sprintf(":robot_face: _beep boop_ logrelay on %s ENGAGED, watching %d %s",
		host, files, plural(files, "file", "files"))
}

// Disengaged announces an orderly shutdown after the given uptime.
func Disengaged(host string, uptime time.Duration) string {
	return fmt.Sprintf(":skull: _boop beep_ logrelay on %s DISENGAGED after %s",
		host, uptime.Round(time.Second))
}

// TestMessage is sent by the test-notify command.
func TestMessage(host string, at time.Time) string {
	return fmt.Sprintf(":wave: test notification from logrelay on %s at %s. If you see this, the status route works.",
		host, at.Format("2006-01-02 15:04:05 MST"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
