// Package notify implements the closed set of notification channels alerts
// fan out to. Channels are selected by one exhaustive switch in New; adding a
// channel means adding a variant here.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vikramshenoy/faultline/pkg/models"
)

// Sentinel errors for channel failures.
var (
	ErrChannelUnavailable = errors.New("notification channel unavailable")
	ErrChannelRejected    = errors.New("notification channel rejected payload")
)

// Channel type names, the closed set New accepts.
const (
	ChannelSlack     = "slack"
	ChannelDiscord   = "discord"
	ChannelTeams     = "teams"
	ChannelTelegram  = "telegram"
	ChannelPagerDuty = "pagerduty"
	ChannelWebhook   = "webhook"
	ChannelEmail     = "email"
)

// KnownChannel reports whether name is one of the channels New accepts.
func KnownChannel(name string) bool {
	switch name {
	case ChannelSlack, ChannelDiscord, ChannelTeams, ChannelTelegram,
		ChannelPagerDuty, ChannelWebhook, ChannelEmail:
		return true
	}
	return false
}

// Message is the channel-agnostic alert payload.
type Message struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Level     string    `json:"level"`
	Project   string    `json:"project"`
	IssueID   string    `json:"issue_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel delivers one message to one configured target. Implementations do
// not retry; retries belong to the dispatch queue.
type Channel interface {
	Type() string
	Send(ctx context.Context, msg Message) error
}

// Config carries cross-channel settings.
type Config struct {
	HTTPTimeout    time.Duration
	SendgridAPIKey string
	EmailFrom      string
}

// New constructs the channel for an alert action. Unknown channel names are
// an error so misconfigured rules surface at evaluation time, not silently.
func New(action models.AlertAction, cfg Config) (Channel, error) {
	sender := newSender(cfg.HTTPTimeout)
	switch action.Channel {
	case ChannelSlack:
		return &slackChannel{webhookURL: action.Target, sender: sender}, nil
	case ChannelDiscord:
		return &discordChannel{webhookURL: action.Target, sender: sender}, nil
	case ChannelTeams:
		return &teamsChannel{webhookURL: action.Target, sender: sender}, nil
	case ChannelTelegram:
		return &telegramChannel{chatID: action.Target, botToken: action.Token, sender: sender}, nil
	case ChannelPagerDuty:
		return &pagerdutyChannel{routingKey: action.Token, sender: sender}, nil
	case ChannelWebhook:
		return &webhookChannel{url: action.Target, sender: sender}, nil
	case ChannelEmail:
		return &emailChannel{to: action.Target, from: cfg.EmailFrom, apiKey: cfg.SendgridAPIKey}, nil
	default:
		return nil, fmt.Errorf("unknown notification channel %q", action.Channel)
	}
}

// sender is the shared HTTP posting helper behind the webhook-style channels.
type sender struct {
	client *http.Client
}

func newSender(timeout time.Duration) *sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &sender{client: &http.Client{Timeout: timeout}}
}

func (s *sender) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrChannelRejected, resp.StatusCode)
	}
	return nil
}
