package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// emailChannel sends plain-text alert mail through SendGrid.
type emailChannel struct {
	to     string
	from   string
	apiKey string
}

func (c *emailChannel) Type() string { return ChannelEmail }

func (c *emailChannel) Send(ctx context.Context, msg Message) error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: sendgrid api key not configured", ErrChannelUnavailable)
	}

	subject := fmt.Sprintf("[%s] %s", msg.Project, msg.Title)
	body := fmt.Sprintf("%s\n\nProject: %s\nLevel: %s\nTime: %s",
		msg.Body, msg.Project, msg.Level, msg.CreatedAt.Format("2006-01-02 15:04:05 UTC"))

	from := mail.NewEmail("Faultline", c.from)
	to := mail.NewEmail("", c.to)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(c.apiKey)
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrChannelRejected, resp.StatusCode)
	}
	return nil
}
