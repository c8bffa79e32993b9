package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Envelope is the JSON body posted to the relay.
type Envelope struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
}

// RelayMailer posts signed messages to an HTTP mail relay.
type RelayMailer struct {
	url    string
	secret string
	from   string
	client *http.Client
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
}

// NewRelayMailer returns a RelayMailer.
func NewRelayMailer(url, secret, from string, client *http.Client, logger *slog.Logger) *RelayMailer {
	return &RelayMailer{
		url:    url,
		secret: secret,
		from:   from,
		client: client,
		logger: logger.With("component", "mailer"),
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// SendOTP delivers msg, retrying network errors and 5xx responses.
func (m *RelayMailer) SendOTP(ctx context.Context, msg Message) error {
	messageID := uuid.NewString()
	body, err := json.Marshal(Envelope{
		MessageID: messageID,
		From:      m.from,
		To:        msg.To,
		Subject:   msg.Subject(),
		Text:      msg.Body(),
	})
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrDeliveryFailed, err)
	}

	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, nextRetryDelay(attempt-1)); err != nil {
				return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
			}
		}

		retry, err := m.post(ctx, messageID, body)
		if err == nil {
			return nil
		}
		lastErr = err
		m.logger.WarnContext(ctx, "mail relay attempt failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		if !retry {
			break
		}
	}

	return fmt.Errorf("%w: %w", ErrDeliveryFailed, lastErr)
}

// post sends one request and reports whether a failure is worth retrying.
func (m *RelayMailer) post(ctx context.Context, messageID string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	ts := m.now().Unix()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stowbox-mailer/1.0")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, Sign(m.secret, ts, body))
	req.Header.Set(HeaderMessageID, messageID)

	resp, err := m.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("post relay: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("relay returned %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("relay returned %d", resp.StatusCode)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
