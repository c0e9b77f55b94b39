package notify

import (
	"context"
	"fmt"
	"net/url"
)

// slackChannel posts to a Slack incoming webhook.
type slackChannel struct {
	webhookURL string
	sender     *sender
}

func (c *slackChannel) Type() string { return ChannelSlack }

func (c *slackChannel) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"text": fmt.Sprintf("*%s*\n%s\nProject: %s | Level: %s", msg.Title, msg.Body, msg.Project, msg.Level),
	}
	return c.sender.postJSON(ctx, c.webhookURL, payload)
}

// discordChannel posts to a Discord webhook.
type discordChannel struct {
	webhookURL string
	sender     *sender
}

func (c *discordChannel) Type() string { return ChannelDiscord }

func (c *discordChannel) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"content": fmt.Sprintf("**%s**\n%s\nProject: %s | Level: %s", msg.Title, msg.Body, msg.Project, msg.Level),
	}
	return c.sender.postJSON(ctx, c.webhookURL, payload)
}

// teamsChannel posts a MessageCard to a Teams incoming webhook.
type teamsChannel struct {
	webhookURL string
	sender     *sender
}

func (c *teamsChannel) Type() string { return ChannelTeams }

func (c *teamsChannel) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"@type":    "MessageCard",
		"@context": "http://schema.org/extensions",
		"title":    msg.Title,
		"text":     fmt.Sprintf("%s\n\nProject: %s | Level: %s", msg.Body, msg.Project, msg.Level),
	}
	return c.sender.postJSON(ctx, c.webhookURL, payload)
}

// telegramChannel sends via the Telegram bot API.
type telegramChannel struct {
	chatID   string
	botToken string
	sender   *sender
}

func (c *telegramChannel) Type() string { return ChannelTelegram }

func (c *telegramChannel) Send(ctx context.Context, msg Message) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", url.PathEscape(c.botToken))
	payload := map[string]string{
		"chat_id": c.chatID,
		"text":    fmt.Sprintf("%s\n%s\nProject: %s | Level: %s", msg.Title, msg.Body, msg.Project, msg.Level),
	}
	return c.sender.postJSON(ctx, endpoint, payload)
}

// pagerdutyChannel triggers an incident via the Events API v2.
type pagerdutyChannel struct {
	routingKey string
	sender     *sender
}

func (c *pagerdutyChannel) Type() string { return ChannelPagerDuty }

func (c *pagerdutyChannel) Send(ctx context.Context, msg Message) error {
	severity := msg.Level
	switch severity {
	case "fatal":
		severity = "critical"
	case "debug":
		severity = "info"
	case "":
		severity = "error"
	}
	payload := map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  msg.Title,
			"source":   msg.Project,
			"severity": severity,
		},
	}
	return c.sender.postJSON(ctx, "https://events.pagerduty.com/v2/enqueue", payload)
}

// webhookChannel posts the raw message to a caller-owned endpoint.
type webhookChannel struct {
	url    string
	sender *sender
}

func (c *webhookChannel) Type() string { return ChannelWebhook }

func (c *webhookChannel) Send(ctx context.Context, msg Message) error {
	return c.sender.postJSON(ctx, c.url, msg)
}
