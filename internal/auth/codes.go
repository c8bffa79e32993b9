package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// DefaultCodeLength is the number of digits in a one-time code.
const DefaultCodeLength = 6

// ErrInvalidCodeLength is returned for code lengths outside 4..10.
var ErrInvalidCodeLength = errors.New("code length must be between 4 and 10")

// GenerateCode returns a uniformly random numeric code with the given number of digits.
// Leading zeros are kept.
func GenerateCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", ErrInvalidCodeLength
	}

	var b strings.Builder
	b.Grow(digits)
	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// NormalizeCode strips whitespace and dashes users paste along with a code.
func NormalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' {
			return -1
		}
		return r
	}, code)
}

// GenerateSecret returns n random bytes encoded as unpadded URL-safe base64.
func GenerateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
