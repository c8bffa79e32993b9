package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stowbox/stowbox/internal/cache"
	"github.com/stowbox/stowbox/internal/identity"
	"github.com/stowbox/stowbox/internal/metrics"
	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/repository"
)

// IdentityProvider issues codes and sessions.
type IdentityProvider interface {
	EnsureAccount(ctx context.Context, email string) (string, error)
	IssueOTP(ctx context.Context, accountID, email string) error
	CreateSession(ctx context.Context, accountID, code string) (*model.Session, error)
	ValidateSession(ctx context.Context, secret string) (*model.Session, error)
	RevokeSecret(ctx context.Context, secret string) error
}

// UserStore persists user records.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByAccountID(ctx context.Context, accountID string) (*model.User, error)
	GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, error)
}

// EmailLimiter budgets code requests per email.
type EmailLimiter interface {
	CheckOTPEmailRateLimit(ctx context.Context, email string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
}

// AccountOptions configure the login flow.
type AccountOptions struct {
	AvatarPlaceholderURL string
	EmailPerMinute       int
}

// AccountService is the gateway between the HTTP layer and the identity provider.
type AccountService struct {
	users    UserStore
	provider IdentityProvider
	limiter  EmailLimiter
	opts     AccountOptions
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewAccountService creates a new AccountService. limiter may be nil to disable per-email limits.
func NewAccountService(users UserStore, provider IdentityProvider, limiter EmailLimiter, opts AccountOptions, recorder metrics.Recorder, logger *slog.Logger) *AccountService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AccountService{
		users:    users,
		provider: provider,
		limiter:  limiter,
		opts:     opts,
		metrics:  recorder,
		logger:   logger.With("component", "accounts"),
	}
}

// RequestOTP issues a fresh code for email and returns the account id to verify against.
// A pending code for the same account stops working.
func (s *AccountService) RequestOTP(ctx context.Context, email string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	if err := s.checkRateLimit(ctx, email); err != nil {
		return "", err
	}

	accountID, err := s.provider.EnsureAccount(ctx, email)
	if err != nil {
		return "", fmt.Errorf("%w: ensure account: %w", ErrStoreWrite, err)
	}

	if err := s.provider.IssueOTP(ctx, accountID, email); err != nil {
		s.logger.ErrorContext(ctx, "failed to issue code",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, identity.ErrDelivery) {
			return "", fmt.Errorf("%w: %w", ErrDelivery, err)
		}
		return "", fmt.Errorf("%w: issue code: %w", ErrStoreWrite, err)
	}

	return accountID, nil
}

// RegisterOrGetAccount requests a code for email and creates the user on first registration.
//
// The code dispatch and the user creation are separate writes. If one succeeds
// and the other fails, the next request for the same email completes the pair;
// get-or-create keeps that retry from duplicating the user.
func (s *AccountService) RegisterOrGetAccount(ctx context.Context, fullName, email string) (string, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" || len(fullName) > 200 {
		return "", fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return "", fmt.Errorf("%w: get user: %w", ErrStoreRead, err)
	}

	accountID, err := s.RequestOTP(ctx, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return accountID, nil
	}

	_, err = s.users.GetOrCreateUser(ctx, &model.User{
		ID:        ulid.Make().String(),
		AccountID: accountID,
		FullName:  fullName,
		Email:     email,
		AvatarURL: s.opts.AvatarPlaceholderURL,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: create user: %w", ErrStoreWrite, err)
	}

	return accountID, nil
}

// SignIn requests a code for an existing user.
func (s *AccountService) SignIn(ctx context.Context, email string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("%w: get user: %w", ErrStoreRead, err)
	}
	return s.RequestOTP(ctx, email)
}

// VerifyOTP exchanges a code for a session. This is the only way a session is created.
func (s *AccountService) VerifyOTP(ctx context.Context, accountID, code string) (*model.Session, error) {
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(code) == "" {
		return nil, ErrInvalidCode
	}

	session, err := s.provider.CreateSession(ctx, accountID, code)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrChallengeNotFound),
			errors.Is(err, identity.ErrChallengeExpired),
			errors.Is(err, identity.ErrTooManyAttempts),
			errors.Is(err, identity.ErrCodeMismatch):
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("%w: create session: %w", ErrStoreWrite, err)
	}
	return session, nil
}

// CurrentUser resolves a session secret to its user.
func (s *AccountService) CurrentUser(ctx context.Context, secret string) (*model.User, *model.Session, error) {
	if secret == "" {
		return nil, nil, ErrNoSession
	}

	session, err := s.provider.ValidateSession(ctx, secret)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidSession) {
			return nil, nil, ErrNoSession
		}
		return nil, nil, fmt.Errorf("%w: validate session: %w", ErrStoreRead, err)
	}

	user, err := s.users.GetUserByAccountID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.ErrorContext(ctx, "session has no user",
				slog.String("account_id", session.AccountID),
				slog.String("session_id", session.ID),
			)
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("%w: get user: %w", ErrStoreRead, err)
	}

	return user, session, nil
}

// SignOut revokes the session a secret refers to.
func (s *AccountService) SignOut(ctx context.Context, secret string) error {
	if secret == "" {
		return ErrNoSession
	}
	if err := s.provider.RevokeSecret(ctx, secret); err != nil {
		if errors.Is(err, identity.ErrInvalidSession) {
			return ErrNoSession
		}
		return fmt.Errorf("%w: revoke session: %w", ErrStoreWrite, err)
	}
	return nil
}

// checkRateLimit fails open when the limiter is unavailable.
func (s *AccountService) checkRateLimit(ctx context.Context, email string) error {
	if s.limiter == nil || s.opts.EmailPerMinute <= 0 {
		return nil
	}
	result, err := s.limiter.CheckOTPEmailRateLimit(ctx, email, s.opts.EmailPerMinute, s.opts.EmailPerMinute)
	if err != nil {
		s.logger.WarnContext(ctx, "email rate limit check failed", slog.String("error", err.Error()))
		return nil
	}
	if !result.Allowed {
		s.metrics.IncRateLimited("email")
		return ErrRateLimited
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return "", fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	return email, nil
}
