// Package mail delivers generated images to users.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

// ErrNotConfigured is returned when no mail transport credentials are set.
var ErrNotConfigured = errors.New("email service not configured")

// Attachment is a file sent with a message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is a single outgoing email.
type Message struct {
	To          string
	Subject     string
	Text        string
	Attachments []Attachment
}

// Sender delivers a message and returns the transport's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Config holds the Mailgun credentials.
type Config struct {
	APIKey    string
	Domain    string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// MailgunSender sends messages through the Mailgun HTTP API.
type MailgunSender struct {
	mg      *mailgun.MailgunImpl
	from    string
	timeout time.Duration
}

// NewMailgunSender returns ErrNotConfigured when the key or domain is empty.
func NewMailgunSender(cfg Config) (*MailgunSender, error) {
	if cfg.APIKey == "" || cfg.Domain == "" {
		return nil, ErrNotConfigured
	}
	if cfg.FromName == "" {
		cfg.FromName = "Photo-Op"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &MailgunSender{
		mg:      mailgun.NewMailgun(cfg.Domain, cfg.APIKey),
		from:    fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail),
		timeout: cfg.Timeout,
	}, nil
}

func (s *MailgunSender) Send(ctx context.Context, msg Message) (string, error) {
	m := s.mg.NewMessage(s.from, msg.Subject, msg.Text, msg.To)
	for _, a := range msg.Attachments {
		m.AddBufferAttachment(a.Filename, a.Data)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, id, err := s.mg.Send(ctx, m)
	if err != nil {
		return "", fmt.Errorf("mailgun send: %w", err)
	}
	slog.Info("Mailgun accepted message.", "messageId", id, "response", resp)
	return id, nil
}

// Unconfigured is a Sender that always fails with ErrNotConfigured. Services
// use it so a missing mail setup surfaces per request instead of at startup.
type Unconfigured struct{}

func (Unconfigured) Send(context.Context, Message) (string, error) {
	return "", ErrNotConfigured
}

// TransformedImageMessage builds the message sent for a finished generation.
func TransformedImageMessage(to, name string, image []byte) Message {
	if name == "" {
		name = "User"
	}
	return Message{
		To:      to,
		Subject: "Your Transformed Image",
		Text:    fmt.Sprintf("Hello %s,\n\nHere's your transformed image from Photo-Op!\n\nBest regards,\nThe Photo-Op Team", name),
		Attachments: []Attachment{
			{Filename: "transformed_image.png", Data: image},
		},
	}
}
