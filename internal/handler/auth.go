package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/stowbox/stowbox/internal/auth"
	"github.com/stowbox/stowbox/internal/handler/dto"
	"github.com/stowbox/stowbox/internal/model"
)

// AccountService is the login and registration surface.
type AccountService interface {
	RegisterOrGetAccount(ctx context.Context, fullName, email string) (string, error)
	SignIn(ctx context.Context, email string) (string, error)
	RequestOTP(ctx context.Context, email string) (string, error)
	VerifyOTP(ctx context.Context, accountID, code string) (*model.Session, error)
	CurrentUser(ctx context.Context, secret string) (*model.User, *model.Session, error)
}

// SessionCookies writes and clears the session cookie.
type SessionCookies interface {
	Establish(w http.ResponseWriter, s *model.Session)
	Terminate(ctx context.Context, w http.ResponseWriter, r *http.Request) string
}

// AuthHandler handles the OTP login flow.
type AuthHandler struct {
	accounts AccountService
	sessions SessionCookies
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts AccountService, sessions SessionCookies, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		sessions: sessions,
		logger:   logger,
	}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	accountID, err := h.accounts.RegisterOrGetAccount(r.Context(), req.FullName, req.Email)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AccountResponse{AccountID: accountID})
}

// SignIn handles POST /api/v1/auth/sign-in.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.requestCode(w, r, h.accounts.SignIn)
}

// ResendOTP handles POST /api/v1/auth/otp.
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	h.requestCode(w, r, h.accounts.RequestOTP)
}

func (h *AuthHandler) requestCode(w http.ResponseWriter, r *http.Request, issue func(context.Context, string) (string, error)) {
	var req dto.EmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	accountID, err := issue(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AccountResponse{AccountID: accountID})
}

// Verify handles POST /api/v1/auth/verify.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}

	session, err := h.accounts.VerifyOTP(r.Context(), req.AccountID, req.Code)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	user, _, err := h.accounts.CurrentUser(r.Context(), session.Secret)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.sessions.Establish(w, session)
	h.logger.InfoContext(r.Context(), "session_established",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)

	writeJSON(w, http.StatusOK, dto.SessionResponse{
		User:      dto.ToUserResponse(user),
		ExpiresAt: session.ExpiresAt,
	})
}

// SignOut handles POST /api/v1/auth/sign-out. It always succeeds.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	target := h.sessions.Terminate(r.Context(), w, r)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Me handles GET /api/v1/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}
