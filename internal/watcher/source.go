// Package watcher delivers file modification notifications for the parent
// directories of tracked log files.
package watcher

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Event is a change to a path inside a watched directory.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Modified reports whether the event is a content write.
func (e Event) Modified() bool {
	return e.Op&fsnotify.Write != 0
}

// Source is the interface for receiving file events.
// Implementations include the fsnotify watcher and test mocks.
type Source interface {
	// Events returns a channel of file events. The channel is closed
	// when the source is stopped or the context is cancelled.
	Events(ctx context.Context) (<-chan Event, error)

	// Stop releases the watch subscription and waits for the event
	// channel to close.
	Stop()
}
