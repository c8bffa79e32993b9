package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid session token")

const tokenIssuer = "stowbox"

// SessionClaims are the claims carried by a session secret.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	AccountID string `json:"acc"`
}

// IssueSessionToken signs a session secret for sessionID/accountID valid until expiresAt.
func IssueSessionToken(key []byte, sessionID, accountID string, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   accountID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		AccountID: accountID,
	})

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken verifies a session secret at time now and returns its claims.
func ParseSessionToken(key []byte, tokenString string, now time.Time) (*SessionClaims, error) {
	return parseSessionToken(key, tokenString,
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
}

// ParseSessionTokenIgnoringExpiry verifies only the signature and issuer.
// Sign-out uses it so an expired secret can still name the session to revoke.
func ParseSessionTokenIgnoringExpiry(key []byte, tokenString string) (*SessionClaims, error) {
	return parseSessionToken(key, tokenString, jwt.WithoutClaimsValidation())
}

func parseSessionToken(key []byte, tokenString string, opts ...jwt.ParserOption) (*SessionClaims, error) {
	claims := &SessionClaims{}
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" || claims.AccountID == "" || claims.Issuer != tokenIssuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
