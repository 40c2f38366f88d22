// Package notify implements the chat transports messages are delivered
// through.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/setevik/logrelay/internal/router"
)

// NtfySink posts plain-text messages to topics on an ntfy server. Channel
// names are topic names; ntfy has no user directory, so any tag name is
// accepted and rendered as "@name".
type NtfySink struct {
	baseURL string
	title   string
	client  *http.Client
}

// NewNtfy creates a sink for the server at baseURL.
func NewNtfy(baseURL string) *NtfySink {
	return &NtfySink{
		baseURL: strings.TrimRight(baseURL, "/"),
		title:   "logrelay",
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *NtfySink) ResolveUser(name string) (string, error) {
	if name == "" {
		return "", router.ErrUnknownUser
	}
	return name, nil
}

// ResolveChannel accepts any non-empty topic name without '/'.
func (s *NtfySink) ResolveChannel(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/ ") {
		return "", router.ErrUnknownChannel
	}
	return name, nil
}

func (s *NtfySink) MentionAll() string { return "@channel" }

func (s *NtfySink) Mention(userID string) string { return "@" + userID }

// Send publishes text to the topic channelID.
func (s *NtfySink) Send(ctx context.Context, channelID, text string) error {
	url := s.baseURL + "/" + channelID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("creating ntfy request: %w", err)
	}
	req.Header.Set("Title", s.title)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	slog.Debug("ntfy message published", "topic", channelID)
	return nil
}
