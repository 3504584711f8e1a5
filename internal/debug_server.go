package internal

import (
	"chat-relay/observability"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewDebugHandler serves the latest monitoring snapshot on /debug/stats.
func NewDebugHandler(monitoring *observability.MonitoringManager) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("refresh") == "true" {
			monitoring.Refresh()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(monitoring.GetLatest()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return mux
}

// StartDebugServer listens on port until ctx is done.
func StartDebugServer(ctx context.Context, log *slog.Logger, port int, monitoring *observability.MonitoringManager) {
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           NewDebugHandler(monitoring),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Debug server available", "url", fmt.Sprintf("http://localhost:%d/debug/stats", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Debug server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
