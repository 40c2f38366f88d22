package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/setevik/logrelay/internal/router"
)

// Entry is one delivery attempt as recorded in the history.
type Entry struct {
	ID        string
	Timestamp time.Time
	Kind      string
	Source    string
	Category  string
	Channel   string
	Text      string
	Delivered bool
	Error     string
}

// FromDelivery converts a router delivery into a history entry with a fresh id.
func FromDelivery(d router.Delivery) *Entry {
	e := &Entry{
		ID:        uuid.NewString(),
		Timestamp: d.Time,
		Kind:      d.Kind,
		Source:    d.Source,
		Category:  d.Category,
		Channel:   d.Channel,
		Text:      d.Text,
		Delivered: d.Err == nil,
	}
	if d.Err != nil {
		e.Error = d.Err.Error()
	}
	return e
}
