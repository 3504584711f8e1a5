package main

import (
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/httpapi"
	"chat-relay/infrastructure/index"
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Deferred cleanups run before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment is enough.
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	backpressure, err := config.Backpressure()
	if err != nil {
		return exitConfig, err
	}

	logger, logCloser := internal.NewLogger(config.LogLevel, config.LogFile)
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.InspectPort, endpoint))
		database.StartDebugServer(db, config.InspectPort, endpoint, MessageMapper)
	}

	messageRepository, err := storage.NewMessageRepository(db, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = messageRepository.Close() }()
	userRepository := storage.NewUserRepository(db)

	// 3. Search index (Bluge), in memory when no path is configured
	messageIndex, err := index.NewMessageIndex(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge index: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = messageIndex.Close()
	}()

	// 4. Delivery engine
	moderator, err := moderation.NewModerator(config.Words(), charReplacement, logger)
	if err != nil {
		return exitConfig, err
	}
	monitoring := observability.NewMonitoringManager(logger)
	broker := runtime.NewBroker(logger, monitoring)
	chatService := services.NewChatService(logger, messageRepository, broker, messageIndex, moderator, monitoring,
		services.ChatOptions{MaxContentLength: config.MaxContentLength, Backpressure: backpressure})
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(logger, userRepository, tokens)

	if err := chatService.RebuildIndex(ctx); err != nil {
		return exitRuntime, fmt.Errorf("index rebuild failed: %w", err)
	}

	// 5. Supervision
	indexBuffer := make(chan chat.Message, config.IndexBufferSize)
	if err := broker.Register(sink.NewIndexSink(logger, indexBuffer)); err != nil {
		return exitRuntime, err
	}
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewIndexWorker(logger, indexBuffer, messageIndex, monitoring, config.IndexBatchSize, config.IndexFlushInterval),
		workers.NewMonitoringWorker(monitoring, config.MetricInterval),
	)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	if config.DebugPort > 0 {
		internal.StartDebugServer(ctx, logger, config.DebugPort, monitoring)
	}

	errChan := make(chan error, 2)
	authenticator := auth.NewAuthenticator(tokens, logger)

	// 6. gRPC Server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s := server.NewGrpcServer(logger, authenticator, chatService, authService)
	go func() {
		logger.Info("Starting gRPC server", "address", address, "at", time.Now().UTC())
		for serviceName := range s.GetServiceInfo() {
			logger.Debug("gRPC exposed service", "name", serviceName)
		}
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. HTTP Server
	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", config.Host, config.HTTPPort),
		Handler: httpapi.NewRouter(logger, authenticator, chatService, authService, httpapi.Options{
			PingInterval: config.PingInterval,
			WriteTimeout: config.WriteTimeout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code, runErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful Shutdown
	// Closing the broker ends every live subscription, so streams can drain.
	logger.Info("Shutting down gracefully...")
	broker.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.WriteTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	s.GracefulStop()
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

// MessageMapper shows stored messages and users in the Badger inspector.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	if kind, detail := storage.Describe(key, val); kind != "" {
		row.Type = kind
		row.Detail = detail
	}
	return row
}
