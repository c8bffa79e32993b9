package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	t.Parallel()

	for _, digits := range []int{4, DefaultCodeLength, 10} {
		code, err := GenerateCode(digits)
		require.NoError(t, err)
		assert.Len(t, code, digits)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "non-digit %q in %s", r, code)
		}
	}
}

func TestGenerateCode_InvalidLength(t *testing.T) {
	t.Parallel()

	for _, digits := range []int{0, 3, 11} {
		_, err := GenerateCode(digits)
		assert.ErrorIs(t, err, ErrInvalidCodeLength)
	}
}

func TestGenerateCode_Spread(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := GenerateCode(8)
		require.NoError(t, err)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 45)
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "123456", NormalizeCode(" 123-456 "))
	assert.Equal(t, "123456", NormalizeCode("123456"))
}

func TestGenerateSecret(t *testing.T) {
	t.Parallel()

	s, err := GenerateSecret(32)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}
