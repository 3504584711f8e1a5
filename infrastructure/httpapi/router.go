package httpapi

import (
	"chat-relay/auth"
	"chat-relay/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Options struct {
	// PingInterval is how often websocket subscribers are pinged.
	PingInterval time.Duration
	// WriteTimeout bounds every websocket write.
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// NewRouter wires the HTTP routes to the chat and auth services.
// Every /api route resolves its principal through the authenticator first;
// only the websocket route accepts the token query parameter.
func NewRouter(log *slog.Logger, authenticator *auth.Authenticator,
	chatService services.IChatService, authService services.IAuthService, options Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(accessLog{log: log}))
	r.Use(middleware.Recoverer)

	h := NewHandler(log, chatService, authService, options)

	r.Get("/healthz", h.healthz)
	r.Route("/api", func(api chi.Router) {
		api.Group(func(rest chi.Router) {
			rest.Use(authenticator.Middleware)
			h.RegisterRoutes(rest)
		})
		api.Group(func(ws chi.Router) {
			ws.Use(authenticator.WebsocketMiddleware)
			h.RegisterWebsocket(ws)
		})
	})

	return r
}
