package daemon

import (
	"context"
	"fmt"

	"github.com/setevik/logrelay/internal/config"
	"github.com/setevik/logrelay/internal/notify"
	"github.com/setevik/logrelay/internal/router"
)

// NewSink builds the configured notification backend. For Slack the user and
// channel directories are loaded before returning; a listing failure is
// fatal.
func NewSink(ctx context.Context, cfg *config.Config) (router.Sink, error) {
	switch cfg.Notify.Backend {
	case "slack":
		s := notify.NewSlack(cfg.Token)
		if err := s.Load(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "ntfy":
		return notify.NewNtfy(cfg.Notify.URL), nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
	}
}
