package httpapi

import (
	"chat-relay/auth"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// accessLog writes one slog record per request. Query credentials are masked.
type accessLog struct {
	log *slog.Logger
}

func (f accessLog) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &accessLogEntry{
		log: f.log.With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"uri", redactedURI(r.URL),
			"remote", r.RemoteAddr,
		),
	}
}

type accessLogEntry struct {
	log *slog.Logger
}

func (e *accessLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	e.log.Log(context.Background(), level, "HTTP request", "status", status, "bytes", bytes, "elapsed", elapsed)
}

func (e *accessLogEntry) Panic(v any, stack []byte) {
	e.log.Error("HTTP handler panicked", "panic", v, "stack", string(stack))
}

func redactedURI(u *url.URL) string {
	query := u.Query()
	if !query.Has(auth.TokenQueryParam) {
		return u.RequestURI()
	}
	query.Set(auth.TokenQueryParam, "REDACTED")
	masked := *u
	masked.RawQuery = query.Encode()
	return masked.RequestURI()
}
