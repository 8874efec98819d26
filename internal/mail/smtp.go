package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/yourusername/course-market/internal/config"
)

// Client sends messages over SMTP.
type Client struct {
	client *gomail.Client
	from   string
}

// NewClient builds an SMTP client from the configuration.
func NewClient(cfg *config.Config) (*Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.SMTPUsername),
			gomail.WithPassword(cfg.SMTPPassword),
		)
	}

	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &Client{client: client, from: cfg.MailFrom}, nil
}

// Send delivers one message. A failure means the message was not
// accepted by the provider; callers decide whether to abort the
// surrounding operation.
func (c *Client) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(c.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)

	if err := c.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}
