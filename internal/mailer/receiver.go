package mailer

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// maxEnvelopeBytes caps a relay request body.
const maxEnvelopeBytes = 64 << 10

// Receiver is the relay side of RelayMailer: it authenticates signed
// envelopes and hands them to Deliver.
type Receiver struct {
	secret  string
	deliver func(Envelope) error
	window  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewReceiver returns a Receiver accepting envelopes signed with secret.
func NewReceiver(secret string, deliver func(Envelope) error, logger *slog.Logger) *Receiver {
	return &Receiver{
		secret:  secret,
		deliver: deliver,
		window:  DefaultReplayWindow,
		now:     time.Now,
		logger:  logger.With("component", "relay_receiver"),
	}
}

// ServeHTTP accepts POSTed envelopes. Unsigned, stale or tampered requests get a 401.
func (rv *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes))
	if err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err := Verify(rv.secret, r.Header.Get(HeaderSignature), ts, body, rv.window, rv.now()); err != nil {
		rv.logger.Warn("rejected relay request",
			slog.String("message_id", r.Header.Get(HeaderMessageID)),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.To == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := rv.deliver(env); err != nil {
		rv.logger.Error("relay delivery failed",
			slog.String("message_id", env.MessageID),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
