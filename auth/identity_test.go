package auth

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_long_enough_for_hs256"

func newTestAuthenticator() (*Authenticator, *TokenManager) {
	tokens := NewTokenManager(testSecret, time.Hour)
	return NewAuthenticator(tokens, slog.Default()), tokens
}

func TestAuthenticate(t *testing.T) {
	authenticator, tokens := newTestAuthenticator()
	valid, err := tokens.GenerateToken("alice", []string{"user"})
	require.NoError(t, err)

	expired := NewTokenManager(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.GenerateToken("alice", nil)
	require.NoError(t, err)

	otherSecret, err := NewTokenManager("another_secret_key_long_enough", time.Hour).GenerateToken("mallory", nil)
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
		principal  chat.Principal
		wantErr    error
	}{
		{"Empty credential", "", chat.Anonymous, nil},
		{"Valid bearer token", "Bearer " + valid, "alice", nil},
		{"Scheme is case insensitive", "bearer " + valid, "alice", nil},
		{"Garbage token", "Bearer not-a-jwt", chat.Anonymous, nil},
		{"Expired token", "Bearer " + expiredToken, chat.Anonymous, nil},
		{"Wrong signing key", "Bearer " + otherSecret, chat.Anonymous, nil},
		{"Basic scheme", "Basic YWxpY2U6cHdk", chat.Anonymous, errors.ErrMalformedCredentials},
		{"Scheme without token", "Bearer", chat.Anonymous, errors.ErrMalformedCredentials},
		{"Blank token", "Bearer   ", chat.Anonymous, errors.ErrMalformedCredentials},
		{"Control characters", "Bearer abc\x00def", chat.Anonymous, errors.ErrMalformedCredentials},
		{"Two tokens", "Bearer abc def", chat.Anonymous, errors.ErrMalformedCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			principal, err := authenticator.Authenticate(tt.credential)
			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
			} else {
				req.NoError(err)
			}
			req.Equal(tt.principal, principal)
		})
	}
}

func TestTokenManager_Claims(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenManager(testSecret, time.Hour)

	token, err := tokens.GenerateToken("bob", []string{"user", "admin"})
	req.NoError(err)

	claims, err := tokens.ValidateToken(token)
	req.NoError(err)
	req.Equal("bob", claims.Subject)
	req.Equal([]string{"user", "admin"}, claims.Roles)
	req.Equal("chat-relay", claims.Issuer)
}

func TestPrincipalFromContext(t *testing.T) {
	req := require.New(t)

	req.Equal(chat.Anonymous, PrincipalFromContext(context.Background()))

	ctx := WithPrincipal(context.Background(), "alice")
	req.Equal(chat.Principal("alice"), PrincipalFromContext(ctx))
}
