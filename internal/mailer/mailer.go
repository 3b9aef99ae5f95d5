// Package mailer delivers transactional email.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/frahmantamala/crm-backend/internal"
	"github.com/mrz1836/postmark"
)

var (
	ErrDeliveryFailed = errors.New("mailer: delivery failed")
	ErrInvalidConfig  = errors.New("mailer: invalid config")
	ErrInvalidMessage = errors.New("mailer: invalid message")
)

type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	Tag      string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if m.TextBody == "" && m.HTMLBody == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type PostmarkSender struct {
	client *postmark.Client
	from   string
	reply  string
}

type PostmarkOption func(*postmark.Client)

// WithBaseURL points the client at another API host.
func WithBaseURL(url string) PostmarkOption {
	return func(c *postmark.Client) {
		c.BaseURL = strings.TrimSuffix(url, "/")
	}
}

func NewPostmarkSender(cfg internal.EmailConfig, opts ...PostmarkOption) (*PostmarkSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}

	client := postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
	for _, opt := range opts {
		opt(client)
	}
	return &PostmarkSender{client: client, from: cfg.SenderEmail, reply: cfg.SupportEmail}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		ReplyTo:  s.reply,
		To:       msg.To,
		Subject:  msg.Subject,
		Tag:      msg.Tag,
		TextBody: msg.TextBody,
		HTMLBody: msg.HTMLBody,
	})
	if err != nil {
		return errors.Join(ErrDeliveryFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrDeliveryFailed, fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. Used when no
// Postmark token is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "email not sent, no provider configured",
		"to", msg.To,
		"subject", msg.Subject,
		"tag", msg.Tag,
		"body", msg.TextBody,
	)
	return nil
}

// NewSender picks Postmark when it is configured and the log sender otherwise.
func NewSender(cfg internal.EmailConfig, logger *slog.Logger) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return NewLogSender(logger), nil
	}
	return NewPostmarkSender(cfg)
}
