package auth

import (
	"context"

	"github.com/stowbox/stowbox/internal/model"
)

type contextKey string

const (
	userContextKey       contextKey = "user"
	credentialContextKey contextKey = "credential"
)

// ContextWithUser stores the authenticated caller in ctx.
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated caller, or nil.
func UserFromContext(ctx context.Context) *model.User {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok {
		return nil
	}
	return user
}

// UserIDFromContext returns the caller's user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if user := UserFromContext(ctx); user != nil {
		return user.ID
	}
	return ""
}

// ContextWithCredential stores the raw session secret presented with the request.
func ContextWithCredential(ctx context.Context, secret string) context.Context {
	return context.WithValue(ctx, credentialContextKey, secret)
}

// CredentialFromContext returns the raw session secret, or "".
func CredentialFromContext(ctx context.Context) string {
	secret, _ := ctx.Value(credentialContextKey).(string)
	return secret
}
