package auth

import (
	"chat-relay/errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// TokenQueryParam carries the credential on websocket upgrades,
// where browsers cannot set an Authorization header.
const TokenQueryParam = "token"

// Middleware resolves the principal of every HTTP request from its Authorization header.
// Malformed credentials are rejected with 400; anonymous requests pass through.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return a.middleware(next, false)
}

// WebsocketMiddleware also accepts the token query parameter when no header is set.
// Mount it on the upgrade route only.
func (a *Authenticator) WebsocketMiddleware(next http.Handler) http.Handler {
	return a.middleware(next, true)
}

func (a *Authenticator) middleware(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get("Authorization")
		if credential == "" && allowQuery {
			if token := r.URL.Query().Get(TokenQueryParam); token != "" {
				credential = bearerScheme + " " + token
			}
		}

		principal, err := a.Authenticate(credential)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(errors.MapToHTTPStatus(err))
			_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}
