package model

import "time"

// Session is an authenticated credential issued after OTP verification.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Secret    string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// OTPChallenge is a pending one-time code for an account.
type OTPChallenge struct {
	AccountID   string    `json:"account_id"`
	Email       string    `json:"email"`
	CodeHash    string    `json:"code_hash"`
	RequestedAt time.Time `json:"requested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
}
