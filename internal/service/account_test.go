package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowbox/stowbox/internal/identity"
	"github.com/stowbox/stowbox/internal/metrics"
)

type accountHarness struct {
	svc      *AccountService
	users    *fakeUsers
	provider *fakeProvider
	limiter  *fakeLimiter
	metrics  *metrics.InMemoryRecorder
}

func newAccountHarness(t *testing.T) *accountHarness {
	t.Helper()
	h := &accountHarness{
		users:    newFakeUsers(),
		provider: newFakeProvider(),
		limiter:  &fakeLimiter{allowed: true},
		metrics:  metrics.NewInMemory(),
	}
	h.svc = NewAccountService(h.users, h.provider, h.limiter, AccountOptions{
		AvatarPlaceholderURL: "https://img.example.com/avatar.png",
		EmailPerMinute:       3,
	}, h.metrics, discardLogger())
	return h
}

func TestRegisterThenVerify(t *testing.T) {
	t.Parallel()
	h := newAccountHarness(t)
	ctx := context.Background()

	accountID, err := h.svc.RegisterOrGetAccount(ctx, "Alice", "A@X.com")
	require.NoError(t, err)
	assert.Equal(t, "ACC1", accountID)

	user, err := h.users.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "ACC1", user.AccountID)
	assert.Equal(t, "https://img.example.com/avatar.png", user.AvatarURL)

	_, err = h.svc.VerifyOTP(ctx, accountID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Empty(t, h.provider.sessions)

	session, err := h.svc.VerifyOTP(ctx, accountID, "123456")
	require.NoError(t, err)

	current, _, err := h.svc.CurrentUser(ctx, session.Secret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, current.ID)
}

func TestRegisterOrGetAccount_Idempotent(t *testing.T) {
	t.Parallel()
	h := newAccountHarness(t)
	ctx := context.Background()

	first, err := h.svc.RegisterOrGetAccount(ctx, "Alice", "a@x.com")
	require.NoError(t, err)
	second, err := h.svc.RegisterOrGetAccount(ctx, "Alice Again", "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, h.users.byEmail, 1)
	assert.Equal(t, "Alice", h.users.byEmail["a@x.com"].FullName)
	assert.Equal(t, 2, h.provider.issued)
}

func TestRegisterOrGetAccount_DeliveryFailureLeavesNoUser(t *testing.T) {
	t.Parallel()
	h := newAccountHarness(t)
	ctx := context.Background()
	h.provider.issueErr = fmt.Errorf("%w: relay down", identity.ErrDelivery)

	_, err := h.svc.RegisterOrGetAccount(ctx, "Alice", "a@x.com")
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Empty(t, h.users.byEmail)

	// The next request closes the window.
	h.provider.issueErr = nil
	_, err = h.svc.RegisterOrGetAccount(ctx, "Alice", "a@x.com")
	require.NoError(t, err)
	assert.Len(t, h.users.byEmail, 1)
}

func TestRegisterOrGetAccount_Validation(t *testing.T) {
	t.Parallel()
	h := newAccountHarness(t)

	_, err := h.svc.RegisterOrGetAccount(context.Background(), "", "a@x.com")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.svc.RegisterOrGetAccount(context.Background(), "Alice", "nope")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSignIn(t *testing.T) {
	t.Parallel()
	h := newAccountHarness(t)
	ctx := context.Background()

	_, err := h.svc.SignIn(ctx, "ghost@x.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Zero(t, h.provider.issued)

	registered, err := h.svc.RegisterOrGetAccount(ctx, "Alice", "a@x.com")
	require.NoError(t, err)
	signedIn, err := h.svc.SignIn(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, registered, signedIn)
}

func TestRequestOTP_RateLimited(t *testing.T) {
	t.Parallel()
	h := newAccountHarness(t)
	h.limiter.allowed = false

	_, err := h.svc.RequestOTP(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, uint64(1), h.metrics.Snapshot().RateLimited["email"])
}

func TestRequestOTP_LimiterFailsOpen(t *testing.T) {
	t.Parallel()
	h := newAccountHarness(t)
	h.limiter.err = errors.New("redis down")

	_, err := h.svc.RequestOTP(context.Background(), "a@x.com")
	assert.NoError(t, err)
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()
	h := newAccountHarness(t)
	ctx := context.Background()

	_, _, err := h.svc.CurrentUser(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)
	_, _, err = h.svc.CurrentUser(ctx, "forged")
	assert.ErrorIs(t, err, ErrNoSession)

	// A session whose account has no user is an integrity fault.
	accountID, err := h.svc.RequestOTP(ctx, "orphan@x.com")
	require.NoError(t, err)
	session, err := h.svc.VerifyOTP(ctx, accountID, "123456")
	require.NoError(t, err)
	_, _, err = h.svc.CurrentUser(ctx, session.Secret)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSignOut(t *testing.T) {
	t.Parallel()
	h := newAccountHarness(t)
	ctx := context.Background()

	accountID, err := h.svc.RegisterOrGetAccount(ctx, "Alice", "a@x.com")
	require.NoError(t, err)
	session, err := h.svc.VerifyOTP(ctx, accountID, "123456")
	require.NoError(t, err)

	require.NoError(t, h.svc.SignOut(ctx, session.Secret))
	_, _, err = h.svc.CurrentUser(ctx, session.Secret)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, h.svc.SignOut(ctx, session.Secret), ErrNoSession)
}
