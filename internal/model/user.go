// Package model defines domain entities for the application.
package model

import "time"

// User is the identity record a session resolves to.
type User struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Account correlates an email with the identity provider's account id.
// It exists before the User record so OTP codes can be issued to new emails.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
