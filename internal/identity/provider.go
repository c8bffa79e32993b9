// Package identity is the identity provider: accounts, one-time code
// challenges and server-side sessions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stowbox/stowbox/internal/auth"
	"github.com/stowbox/stowbox/internal/cache"
	"github.com/stowbox/stowbox/internal/mailer"
	"github.com/stowbox/stowbox/internal/metrics"
	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/repository"
)

// Provider errors.
var (
	ErrChallengeNotFound = errors.New("no pending challenge")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrTooManyAttempts   = errors.New("too many attempts")
	ErrCodeMismatch      = errors.New("code mismatch")
	ErrInvalidSession    = errors.New("invalid session")
	ErrDelivery          = errors.New("code delivery failed")
)

// AccountStore persists accounts and sessions.
type AccountStore interface {
	EnsureAccount(ctx context.Context, candidate *model.Account) (*model.Account, error)
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// ChallengeStore holds pending one-time code challenges.
type ChallengeStore interface {
	SaveChallenge(ctx context.Context, ch *model.OTPChallenge) error
	GetChallenge(ctx context.Context, accountID string) (*model.OTPChallenge, error)
	// ReserveAttempt atomically counts an attempt against the challenge
	// holding codeHash and returns the attempt number, or cache.ErrCacheMiss
	// if that challenge is gone.
	ReserveAttempt(ctx context.Context, accountID, codeHash string) (int, error)
	// ConsumeChallenge removes the challenge holding codeHash and reports
	// whether this call was the one that removed it.
	ConsumeChallenge(ctx context.Context, accountID, codeHash string) (bool, error)
	DeleteChallenge(ctx context.Context, accountID string) error
}

// SessionCache is a read-through cache of session records.
type SessionCache interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
	SetSession(ctx context.Context, s *model.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// Options tune code and session lifetimes.
type Options struct {
	SigningKey  []byte
	SessionTTL  time.Duration
	CodeLength  int
	CodeTTL     time.Duration
	MaxAttempts int
}

// Provider issues one-time codes and sessions.
type Provider struct {
	accounts   AccountStore
	challenges ChallengeStore
	sessions   SessionCache
	mail       mailer.Mailer
	opts       Options
	metrics    metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Provider. sessions may be nil to disable session caching.
func New(accounts AccountStore, challenges ChallengeStore, sessions SessionCache, mail mailer.Mailer, opts Options, recorder metrics.Recorder, logger *slog.Logger) *Provider {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.CodeLength == 0 {
		opts.CodeLength = auth.DefaultCodeLength
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	return &Provider{
		accounts:   accounts,
		challenges: challenges,
		sessions:   sessions,
		mail:       mail,
		opts:       opts,
		metrics:    recorder,
		logger:     logger.With("component", "identity"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// EnsureAccount returns the account id for email, creating the account on first use.
func (p *Provider) EnsureAccount(ctx context.Context, email string) (string, error) {
	acc, err := p.accounts.EnsureAccount(ctx, &model.Account{
		ID:        ulid.Make().String(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: p.now(),
	})
	if err != nil {
		return "", fmt.Errorf("ensure account: %w", err)
	}
	return acc.ID, nil
}

// IssueOTP creates a fresh challenge for the account and mails the code.
// A previous pending challenge stops working.
func (p *Provider) IssueOTP(ctx context.Context, accountID, email string) error {
	code, err := auth.GenerateCode(p.opts.CodeLength)
	if err != nil {
		return err
	}
	hash, err := auth.HashCode(code)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	now := p.now()
	ch := &model.OTPChallenge{
		AccountID:   accountID,
		Email:       email,
		CodeHash:    hash,
		RequestedAt: now,
		ExpiresAt:   now.Add(p.opts.CodeTTL),
	}
	if err := p.challenges.SaveChallenge(ctx, ch); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}

	if err := p.mail.SendOTP(ctx, mailer.Message{To: email, Code: code, ExpiresAt: ch.ExpiresAt}); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	p.metrics.IncOTPIssued()
	return nil
}

// CreateSession exchanges a code for a session. The returned session carries its secret.
func (p *Provider) CreateSession(ctx context.Context, accountID, code string) (*model.Session, error) {
	ch, err := p.challenges.GetChallenge(ctx, accountID)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			p.metrics.IncOTPVerified("invalid")
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("load challenge: %w", err)
	}

	now := p.now()
	if !now.Before(ch.ExpiresAt) {
		p.discardChallenge(ctx, accountID)
		p.metrics.IncOTPVerified("expired")
		return nil, ErrChallengeExpired
	}

	// The attempt is counted before the code is checked, so concurrent
	// guesses cannot all see the same low count.
	attempt, err := p.challenges.ReserveAttempt(ctx, accountID, ch.CodeHash)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			p.metrics.IncOTPVerified("invalid")
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("reserve attempt: %w", err)
	}
	if attempt > p.opts.MaxAttempts {
		p.metrics.IncOTPVerified("invalid")
		return nil, ErrTooManyAttempts
	}

	ok, err := auth.VerifyCode(auth.NormalizeCode(code), ch.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}
	if !ok {
		p.metrics.IncOTPVerified("invalid")
		if attempt == p.opts.MaxAttempts {
			p.discardChallenge(ctx, accountID)
		}
		return nil, ErrCodeMismatch
	}

	consumed, err := p.challenges.ConsumeChallenge(ctx, accountID, ch.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	if !consumed {
		p.metrics.IncOTPVerified("invalid")
		return nil, ErrChallengeNotFound
	}
	p.metrics.IncOTPVerified("ok")

	s := &model.Session{
		ID:        ulid.Make().String(),
		AccountID: accountID,
		ExpiresAt: now.Add(p.opts.SessionTTL),
		CreatedAt: now,
	}
	secret, err := auth.IssueSessionToken(p.opts.SigningKey, s.ID, s.AccountID, now, s.ExpiresAt)
	if err != nil {
		return nil, err
	}
	s.Secret = secret

	if err := p.accounts.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	p.cacheSession(ctx, s)
	p.metrics.IncSession("created")

	return s, nil
}

// ValidateSession resolves a session secret to a live session.
func (p *Provider) ValidateSession(ctx context.Context, secret string) (*model.Session, error) {
	if secret == "" {
		return nil, ErrInvalidSession
	}
	claims, err := auth.ParseSessionToken(p.opts.SigningKey, secret, p.now())
	if err != nil {
		return nil, ErrInvalidSession
	}

	s, err := p.loadSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if s.AccountID != claims.AccountID || s.IsExpired(p.now()) {
		return nil, ErrInvalidSession
	}

	s.Secret = secret
	return s, nil
}

// DeleteSession revokes a session by id.
func (p *Provider) DeleteSession(ctx context.Context, sessionID string) error {
	if p.sessions != nil {
		if err := p.sessions.DeleteSession(ctx, sessionID); err != nil {
			p.logger.WarnContext(ctx, "failed to evict cached session", slog.String("error", err.Error()))
		}
	}
	if err := p.accounts.DeleteSession(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrInvalidSession
		}
		return fmt.Errorf("delete session: %w", err)
	}
	p.metrics.IncSession("terminated")
	return nil
}

// RevokeSecret revokes the session a secret refers to. Expired secrets still resolve their id.
func (p *Provider) RevokeSecret(ctx context.Context, secret string) error {
	claims, err := auth.ParseSessionTokenIgnoringExpiry(p.opts.SigningKey, secret)
	if err != nil {
		return ErrInvalidSession
	}
	return p.DeleteSession(ctx, claims.SessionID)
}

func (p *Provider) loadSession(ctx context.Context, id string) (*model.Session, error) {
	if p.sessions != nil {
		s, err := p.sessions.GetSession(ctx, id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			p.logger.WarnContext(ctx, "session cache read failed", slog.String("error", err.Error()))
		}
	}

	s, err := p.accounts.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	p.cacheSession(ctx, s)
	return s, nil
}

func (p *Provider) cacheSession(ctx context.Context, s *model.Session) {
	if p.sessions == nil {
		return
	}
	if err := p.sessions.SetSession(ctx, s); err != nil {
		p.logger.WarnContext(ctx, "failed to cache session", slog.String("error", err.Error()))
	}
}

func (p *Provider) discardChallenge(ctx context.Context, accountID string) {
	if err := p.challenges.DeleteChallenge(ctx, accountID); err != nil {
		p.logger.WarnContext(ctx, "failed to discard challenge", slog.String("error", err.Error()))
	}
}
