// Package email is the outbound send capability used by the automation
// engine. Transport details stay behind the Sender interface.
package email

import (
	"context"
	"errors"
	"strings"

	"crm_engine_backend/platform/config"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrNoRecipient is returned when a message has no usable address.
var ErrNoRecipient = errors.New("email: recipient address is empty")

// Message is a single outbound email. Body is plain text; the sender wraps it
// in the HTML layout.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
	// Tags are provider-agnostic labels (sequence id, task id) used in logs.
	Tags map[string]string
}

// Ack is the provider's acknowledgement of an accepted message.
type Ack struct {
	MessageID string
	Provider  string
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) (Ack, error)
}

// NoopSender accepts every message without delivering it. It is used when
// email is disabled.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, msg Message) (Ack, error) {
	if strings.TrimSpace(msg.To) == "" {
		return Ack{}, ErrNoRecipient
	}
	return Ack{MessageID: uuid.NewString(), Provider: "noop"}, nil
}

// NewSender returns the SMTP sender when email is enabled, otherwise a noop.
// Either way sends are throttled to the configured rate.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	var inner Sender = NoopSender{}
	if cfg.GetEmailEnabled() {
		inner = NewSMTPSender(
			cfg.GetSMTPHost(),
			cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(),
			cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(),
			cfg.GetEmailFromName(),
		)
	}
	if perSecond := cfg.GetEmailRatePerSecond(); perSecond > 0 {
		return NewThrottledSender(inner, rate.Limit(perSecond), 1), nil
	}
	return inner, nil
}

// ThrottledSender limits the send rate of an inner Sender.
type ThrottledSender struct {
	inner   Sender
	limiter *rate.Limiter
}

func NewThrottledSender(inner Sender, limit rate.Limit, burst int) *ThrottledSender {
	return &ThrottledSender{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (t *ThrottledSender) Send(ctx context.Context, msg Message) (Ack, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Ack{}, err
	}
	return t.inner.Send(ctx, msg)
}
