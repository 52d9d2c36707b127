package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse 1")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "correct horse 1"))
	assert.False(t, CheckPassword(hash, "wrong horse 1"))
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "passw0rd", false},
		{"too short", "ab1", true},
		{"no digit", "passwords", true},
		{"no letter", "123456789", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrWeakPassword)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenIssuer(t *testing.T) {
	secret := []byte("test-secret")

	t.Run("round trip", func(t *testing.T) {
		issuer := NewTokenIssuer(secret, 15*time.Minute)

		token, err := issuer.IssueAccessToken("acc_1", "a@example.com")
		require.NoError(t, err)

		claims, err := issuer.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "acc_1", claims.AccountID)
		assert.Equal(t, "a@example.com", claims.Email)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		issuer := NewTokenIssuer(secret, 15*time.Minute)

		issued := time.Now()
		issuer.now = func() time.Time { return issued }
		token, err := issuer.IssueAccessToken("acc_1", "a@example.com")
		require.NoError(t, err)

		issuer.now = func() time.Time { return issued.Add(16 * time.Minute) }
		_, err = issuer.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		issuer := NewTokenIssuer(secret, 15*time.Minute)
		token, err := issuer.IssueAccessToken("acc_1", "a@example.com")
		require.NoError(t, err)

		other := NewTokenIssuer([]byte("different"), 15*time.Minute)
		_, err = other.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		issuer := NewTokenIssuer(secret, 15*time.Minute)
		_, err := issuer.ValidateAccessToken("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
