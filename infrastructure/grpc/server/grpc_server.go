package server

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/grpc/chatpb"
	"chat-relay/services"
	"log/slog"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
)

// NewGrpcServer builds a server exposing the chat and auth services.
// Calls are logged first, then the caller principal is resolved.
func NewGrpcServer(log *slog.Logger, authenticator *auth.Authenticator,
	chatService services.IChatService, authService services.IAuthService) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(log),
			authenticator.UnaryInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			authenticator.StreamInterceptor(),
		))

	chatpb.RegisterChatServiceServer(s, NewChatServer(log, chatService))
	chatpb.RegisterAuthServiceServer(s, NewAuthServer(authService))
	return s
}
