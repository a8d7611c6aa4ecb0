package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sparkmatch/sparkd/internal/types"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %d", tc.userId)
		})
	}
}

func Test_hashPassword_verifyPassword(t *testing.T) {
	hash, err := hashPassword("s3cret")
	assert.NoError(t, err, "expected no error hashing password")
	assert.NotEqual(t, "s3cret", hash, "expected hash to differ from plaintext")

	assert.True(t, verifyPassword(hash, "s3cret"), "expected matching password to verify")
	assert.False(t, verifyPassword(hash, "wrong"), "expected wrong password to fail")
}

func Test_jwtScopes(t *testing.T) {
	app := &SparkApp{signingKey: []byte("test-signing-key")}

	t.Run("session token round trip", func(t *testing.T) {
		token, err := app.createJwtForSession(types.User{Id: 7}, defaultJwtExpiration)
		assert.NoError(t, err, "expected no error creating session token")

		userId, err := app.extractUserIdFromToken(token, scopeSession)
		assert.NoError(t, err, "expected session token to verify")
		assert.Equal(t, 7, userId, "expected user id claim to round trip")
	})

	t.Run("session token is not a verification proof", func(t *testing.T) {
		token, err := app.createJwtForSession(types.User{Id: 7}, defaultJwtExpiration)
		assert.NoError(t, err)

		_, err = app.extractUserIdFromToken(token, scopeVerify)
		assert.Error(t, err, "expected scope mismatch to be rejected")
	})

	t.Run("verification token round trip", func(t *testing.T) {
		token, err := app.createVerificationJwt(9)
		assert.NoError(t, err, "expected no error creating verification token")

		userId, err := app.extractUserIdFromToken(token, scopeVerify)
		assert.NoError(t, err, "expected verification token to verify")
		assert.Equal(t, 9, userId, "expected user id claim to round trip")
	})

	t.Run("rejects token signed with a different key", func(t *testing.T) {
		other := &SparkApp{signingKey: []byte("another-key")}
		token, err := other.createJwtForSession(types.User{Id: 7}, defaultJwtExpiration)
		assert.NoError(t, err)

		_, err = app.extractUserIdFromToken(token, scopeSession)
		assert.Error(t, err, "expected foreign signature to be rejected")
	})

	t.Run("rejects expired token", func(t *testing.T) {
		token, err := app.createJwt(7, scopeSession, -time.Minute)
		assert.NoError(t, err)

		_, err = app.extractUserIdFromToken(token, scopeSession)
		assert.Error(t, err, "expected expired token to be rejected")
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := app.extractUserIdFromToken("not-a-token", scopeSession)
		assert.Error(t, err, "expected parse failure")
	})
}
