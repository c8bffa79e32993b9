// Command relay-receiver is a development mail relay. It verifies envelopes
// signed by the API's relay mailer and prints them instead of sending mail.
//
// Usage:
//
//	MAIL_RELAY_SECRET=... go run ./cmd/relay-receiver
//
// then run the API with MAILER_DRIVER=relay and MAIL_RELAY_URL=http://localhost:9025/relay.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stowbox/stowbox/internal/mailer"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	secret := os.Getenv("MAIL_RELAY_SECRET")
	if secret == "" {
		logger.Error("MAIL_RELAY_SECRET is required")
		os.Exit(1)
	}
	addr := os.Getenv("RELAY_ADDR")
	if addr == "" {
		addr = ":9025"
	}

	receiver := mailer.NewReceiver(secret, func(e mailer.Envelope) error {
		_, err := fmt.Fprintf(os.Stdout, "---\nTo: %s\nFrom: %s\nSubject: %s\n\n%s\n", e.To, e.From, e.Subject, e.Text)
		return err
	}, logger)

	r := chi.NewRouter()
	r.Method(http.MethodPost, "/relay", receiver)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("relay receiver listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("relay receiver stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
