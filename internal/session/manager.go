// Package session carries the caller's session credential between the HTTP
// cookie and the account service. It holds no state of its own: every call
// works from the credential on the request in hand.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/stowbox/stowbox/internal/model"
)

// DefaultCookieName is the cookie holding the session secret.
const DefaultCookieName = "stowbox-session"

// Accounts resolves and revokes session secrets.
type Accounts interface {
	CurrentUser(ctx context.Context, secret string) (*model.User, *model.Session, error)
	SignOut(ctx context.Context, secret string) error
}

// Options configure the session cookie.
type Options struct {
	CookieName string
	LoginPath  string
	// Insecure drops the Secure attribute for plain-HTTP local development.
	Insecure bool
}

// Manager maps between requests and sessions.
type Manager struct {
	accounts Accounts
	opts     Options
	logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(accounts Accounts, opts Options, logger *slog.Logger) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/sign-in"
	}
	return &Manager{
		accounts: accounts,
		opts:     opts,
		logger:   logger.With("component", "session"),
	}
}

// Establish writes the session secret into the cookie, replacing any previous one.
func (m *Manager) Establish(w http.ResponseWriter, s *model.Session) {
	http.SetCookie(w, m.cookie(s.Secret, s.ExpiresAt))
}

// Credential returns the session secret on r, or "".
func (m *Manager) Credential(r *http.Request) string {
	c, err := r.Cookie(m.opts.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Current resolves the request's credential to a user.
func (m *Manager) Current(ctx context.Context, r *http.Request) (*model.User, error) {
	user, _, err := m.accounts.CurrentUser(ctx, m.Credential(r))
	return user, err
}

// Terminate revokes the request's session, clears the cookie and returns where to send the caller.
// Revocation failures are logged; the cookie is cleared regardless.
func (m *Manager) Terminate(ctx context.Context, w http.ResponseWriter, r *http.Request) string {
	if secret := m.Credential(r); secret != "" {
		if err := m.accounts.SignOut(ctx, secret); err != nil {
			m.logger.WarnContext(ctx, "session revocation failed", slog.String("error", err.Error()))
		}
	}

	clear := m.cookie("", time.Unix(0, 0))
	clear.MaxAge = -1
	http.SetCookie(w, clear)

	return m.opts.LoginPath
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string {
	return m.opts.CookieName
}

func (m *Manager) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   !m.opts.Insecure,
		SameSite: http.SameSiteStrictMode,
	}
}
