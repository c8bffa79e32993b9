// Package mailer delivers one-time login codes.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrDeliveryFailed is returned when a message could not be handed off.
var ErrDeliveryFailed = errors.New("mail delivery failed")

// Message is a one-time code notification.
type Message struct {
	To        string
	Code      string
	ExpiresAt time.Time
}

// Subject returns the message subject line.
func (m Message) Subject() string {
	return "Your stowbox sign-in code"
}

// Body returns the plain text body.
func (m Message) Body() string {
	return fmt.Sprintf(
		"Your sign-in code is %s.\n\nIt expires at %s. If you did not request it, ignore this message.\n",
		m.Code, m.ExpiresAt.UTC().Format(time.RFC1123),
	)
}

// Mailer sends one-time code messages.
type Mailer interface {
	SendOTP(ctx context.Context, msg Message) error
}

// LogMailer writes messages to a writer instead of sending them.
// Development only; config validation refuses it in production.
type LogMailer struct {
	out    io.Writer
	logger *slog.Logger
}

// NewLogMailer returns a LogMailer writing to out.
func NewLogMailer(out io.Writer, logger *slog.Logger) *LogMailer {
	return &LogMailer{out: out, logger: logger.With("component", "mailer")}
}

// SendOTP prints the message.
func (m *LogMailer) SendOTP(ctx context.Context, msg Message) error {
	if _, err := fmt.Fprintf(m.out, "to: %s\nsubject: %s\n\n%s\n", msg.To, msg.Subject(), msg.Body()); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	m.logger.InfoContext(ctx, "otp message written", slog.String("driver", "log"))
	return nil
}
