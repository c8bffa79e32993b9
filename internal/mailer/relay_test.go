package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRelay(url string) *RelayMailer {
	m := NewRelayMailer(url, "relay_secret", "no-reply@stowbox.test", NewHTTPClient(2*time.Second), slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.sleep = func(context.Context, time.Duration) error { return nil }
	return m
}

func testMessage() Message {
	return Message{To: "alice@x.com", Code: "042042", ExpiresAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestRelayMailer_SendsSignedRequest(t *testing.T) {
	var got Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
		if err != nil {
			t.Errorf("bad timestamp header: %v", err)
		}
		if err := Verify("relay_secret", r.Header.Get(HeaderSignature), ts, body, DefaultReplayWindow, time.Now()); err != nil {
			t.Errorf("signature did not verify: %v", err)
		}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if r.Header.Get(HeaderMessageID) != got.MessageID {
			t.Errorf("message id header %q does not match body %q", r.Header.Get(HeaderMessageID), got.MessageID)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := newTestRelay(srv.URL).SendOTP(context.Background(), testMessage()); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if got.To != "alice@x.com" || !strings.Contains(got.Text, "042042") {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestRelayMailer_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newTestRelay(srv.URL).SendOTP(context.Background(), testMessage()); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestRelayMailer_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := newTestRelay(srv.URL).SendOTP(context.Background(), testMessage())
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRelayMailer_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newTestRelay(srv.URL).SendOTP(context.Background(), testMessage())
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if int(calls.Load()) != MaxAttempts {
		t.Errorf("calls = %d, want %d", calls.Load(), MaxAttempts)
	}
}

func TestRelayMailer_DoesNotFollowRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("redirect target must not be called")
	}))
	defer target.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	if err := newTestRelay(srv.URL).SendOTP(context.Background(), testMessage()); err == nil {
		t.Fatal("expected error for redirect response")
	}
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(&buf, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := m.SendOTP(context.Background(), testMessage()); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "to: alice@x.com") || !strings.Contains(out, "042042") {
		t.Errorf("unexpected output %q", out)
	}
}
