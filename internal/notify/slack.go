package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/setevik/logrelay/internal/router"
)

// slackTimeout bounds every Slack API call.
const slackTimeout = 15 * time.Second

// SlackSink delivers messages through the Slack Web API. The user and
// channel directories are listed once by Load and never refreshed.
type SlackSink struct {
	client   *slack.Client
	timeout  time.Duration
	users    map[string]string
	channels map[string]string
}

// NewSlack creates a sink authenticated with a bot token. Options are passed
// to the underlying client after a default HTTP client with a request
// timeout.
func NewSlack(token string, opts ...slack.Option) *SlackSink {
	opts = append([]slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: slackTimeout}),
	}, opts...)
	return &SlackSink{
		client:   slack.New(token, opts...),
		timeout:  slackTimeout,
		users:    make(map[string]string),
		channels: make(map[string]string),
	}
}

// Load lists every user and every non-archived channel in the workspace.
func (s *SlackSink) Load(ctx context.Context) error {
	users, err := s.client.GetUsersContext(ctx)
	if err != nil {
		return fmt.Errorf("listing slack users: %w", err)
	}
	for _, u := range users {
		if u.Deleted {
			continue
		}
		s.users[u.Name] = u.ID
	}

	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           1000,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := s.client.GetConversationsContext(ctx, params)
		if err != nil {
			return fmt.Errorf("listing slack channels: %w", err)
		}
		for _, c := range channels {
			s.channels[c.Name] = c.ID
		}
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}

	slog.Info("slack directory loaded", "users", len(s.users), "channels", len(s.channels))
	return nil
}

func (s *SlackSink) ResolveUser(name string) (string, error) {
	id, ok := s.users[name]
	if !ok {
		return "", router.ErrUnknownUser
	}
	return id, nil
}

func (s *SlackSink) ResolveChannel(name string) (string, error) {
	id, ok := s.channels[name]
	if !ok {
		return "", router.ErrUnknownChannel
	}
	return id, nil
}

func (s *SlackSink) MentionAll() string { return "<!channel>" }

func (s *SlackSink) Mention(userID string) string { return "<@" + userID + ">" }

// Send posts text to channelID as the bot user. The call gives up after the
// sink's timeout even when ctx has no deadline.
func (s *SlackSink) Send(ctx context.Context, channelID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, ts, err := s.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting slack message: %w", err)
	}
	slog.Debug("slack message posted", "channel", channelID, "ts", ts)
	return nil
}
