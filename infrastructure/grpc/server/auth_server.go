package server

import (
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/chatpb"
	"chat-relay/services"
	"context"
)

type AuthServer struct {
	chatpb.UnimplementedAuthServiceServer
	authService services.IAuthService
}

func NewAuthServer(authService services.IAuthService) *AuthServer {
	return &AuthServer{authService: authService}
}

func (s *AuthServer) Register(_ context.Context, req *chatpb.RegisterRequest) (*chatpb.TokenResponse, error) {
	token, err := s.authService.Register(req.Username, req.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatpb.TokenResponse{Token: token.String()}, nil
}

func (s *AuthServer) Login(_ context.Context, req *chatpb.LoginRequest) (*chatpb.TokenResponse, error) {
	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatpb.TokenResponse{Token: token.String()}, nil
}
