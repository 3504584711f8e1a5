// Package server exposes the chat gateway over gRPC.
package server

import (
	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/chatpb"
	"chat-relay/services"
	"context"
	goerrors "errors"
	"log/slog"

	"github.com/samber/lo"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ChatServer struct {
	chatpb.UnimplementedChatServiceServer
	chatService services.IChatService
	log         *slog.Logger
}

func NewChatServer(log *slog.Logger, chatService services.IChatService) *ChatServer {
	return &ChatServer{chatService: chatService, log: log}
}

func (s *ChatServer) PostMessage(ctx context.Context, req *chatpb.PostMessageRequest) (*chatpb.PostMessageResponse, error) {
	message, err := s.chatService.AddMessage(ctx, auth.PrincipalFromContext(ctx), req.Text)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatpb.PostMessageResponse{Message: ToPbMessage(message)}, nil
}

func (s *ChatServer) ListMessages(ctx context.Context, _ *chatpb.ListMessagesRequest) (*chatpb.ListMessagesResponse, error) {
	messages, err := s.chatService.ListMessages(ctx, auth.PrincipalFromContext(ctx))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatpb.ListMessagesResponse{Messages: toPbMessages(messages)}, nil
}

func (s *ChatServer) SearchMessages(ctx context.Context, req *chatpb.SearchMessagesRequest) (*chatpb.SearchMessagesResponse, error) {
	messages, err := s.chatService.SearchMessages(ctx, auth.PrincipalFromContext(ctx), req.Query, int(req.Limit))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &chatpb.SearchMessagesResponse{Messages: toPbMessages(messages)}, nil
}

// Subscribe streams every message posted after registration, until the
// client goes away or the session is closed by the server.
func (s *ChatServer) Subscribe(_ *chatpb.SubscribeRequest, stream chatpb.ChatService_SubscribeServer) error {
	ctx := stream.Context()
	principal := auth.PrincipalFromContext(ctx)
	session, err := s.chatService.Subscribe(principal)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	defer session.Close()

	if err := stream.SendHeader(metadata.Pairs(chatpb.SessionHeader, session.ID())); err != nil {
		return err
	}
	s.log.Debug("Stream subscribed", "principal", principal, "session_id", session.ID())

	for {
		message, err := session.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Debug("Client disconnected", "principal", principal, "session_id", session.ID())
				return status.FromContextError(ctx.Err()).Err()
			}
			if goerrors.Is(err, errors.ErrSessionClosed) && session.Err() != nil {
				return errors.MapToGRPCError(session.Err())
			}
			return errors.MapToGRPCError(err)
		}
		if err := stream.Send(ToPbMessage(message)); err != nil {
			s.log.Warn("Failed to push message to stream",
				"principal", principal,
				"message_id", message.ID,
				"error", err)
			return err
		}
	}
}

func ToPbMessage(m chat.Message) *chatpb.Message {
	return &chatpb.Message{
		Id:        uint64(m.ID),
		Author:    string(m.Author),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func toPbMessages(messages []chat.Message) []*chatpb.Message {
	return lo.Map(messages, func(item chat.Message, _ int) *chatpb.Message {
		return ToPbMessage(item)
	})
}
