package auth

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"log/slog"
	"strings"
	"unicode"
)

const bearerScheme = "Bearer"

// Authenticator resolves a raw credential into a principal.
// It runs once per request and once per subscribe handshake.
type Authenticator struct {
	tokens *TokenManager
	log    *slog.Logger
}

func NewAuthenticator(tokens *TokenManager, log *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, log: log}
}

// Authenticate maps a credential to a principal:
//   - empty credential: anonymous, no error
//   - "Bearer <token>" with an invalid or expired token: anonymous, no error
//   - anything else it cannot parse: anonymous and ErrMalformedCredentials
func (a *Authenticator) Authenticate(credential string) (chat.Principal, error) {
	if credential == "" {
		return chat.Anonymous, nil
	}
	if strings.IndexFunc(credential, unicode.IsControl) >= 0 {
		return chat.Anonymous, errors.ErrMalformedCredentials
	}

	scheme, token, found := strings.Cut(credential, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return chat.Anonymous, errors.ErrMalformedCredentials
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return chat.Anonymous, errors.ErrMalformedCredentials
	}

	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		a.log.Debug("Token rejected", "error", err)
		return chat.Anonymous, nil
	}
	return chat.Principal(claims.Subject), nil
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying the principal.
func WithPrincipal(ctx context.Context, principal chat.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext returns the principal stored in ctx, or Anonymous.
func PrincipalFromContext(ctx context.Context) chat.Principal {
	p, ok := ctx.Value(principalKey).(chat.Principal)
	if !ok {
		return chat.Anonymous
	}
	return p
}
