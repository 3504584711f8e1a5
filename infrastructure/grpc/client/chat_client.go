// Package client is a thin typed wrapper over the chat.v1 gRPC services,
// used by the command line client and the transport tests.
package client

import (
	"chat-relay/domain/chat"
	"chat-relay/infrastructure/grpc/chatpb"
	"context"

	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

type ChatClient struct {
	conn  *grpc.ClientConn
	chat  chatpb.ChatServiceClient
	auth  chatpb.AuthServiceClient
	token string
}

// Dial opens a plaintext connection to the relay.
func Dial(target string, opts ...grpc.DialOption) (*ChatClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &ChatClient{
		conn: conn,
		chat: chatpb.NewChatServiceClient(conn),
		auth: chatpb.NewAuthServiceClient(conn),
	}, nil
}

// WithToken returns a client sharing the connection that authenticates as token.
func (c *ChatClient) WithToken(token string) *ChatClient {
	clone := *c
	clone.token = token
	return &clone
}

func (c *ChatClient) Close() error {
	return c.conn.Close()
}

func (c *ChatClient) Register(ctx context.Context, username, password string) (string, error) {
	res, err := c.auth.Register(ctx, &chatpb.RegisterRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	return res.Token, nil
}

func (c *ChatClient) Login(ctx context.Context, username, password string) (string, error) {
	res, err := c.auth.Login(ctx, &chatpb.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	return res.Token, nil
}

func (c *ChatClient) Post(ctx context.Context, text string) (chat.Message, error) {
	res, err := c.chat.PostMessage(c.outgoing(ctx), &chatpb.PostMessageRequest{Text: text})
	if err != nil {
		return chat.Message{}, err
	}
	return FromPbMessage(res.Message), nil
}

func (c *ChatClient) List(ctx context.Context) ([]chat.Message, error) {
	res, err := c.chat.ListMessages(c.outgoing(ctx), &chatpb.ListMessagesRequest{})
	if err != nil {
		return nil, err
	}
	return fromPbMessages(res.Messages), nil
}

func (c *ChatClient) Search(ctx context.Context, query string, limit int) ([]chat.Message, error) {
	res, err := c.chat.SearchMessages(c.outgoing(ctx), &chatpb.SearchMessagesRequest{Query: query, Limit: int32(limit)})
	if err != nil {
		return nil, err
	}
	return fromPbMessages(res.Messages), nil
}

// Subscription is an open Subscribe stream.
type Subscription struct {
	stream    chatpb.ChatService_SubscribeClient
	SessionID string
}

// Subscribe returns once the server registered the session, so every message
// posted afterwards is delivered. Cancel ctx to end the subscription.
func (c *ChatClient) Subscribe(ctx context.Context) (*Subscription, error) {
	stream, err := c.chat.Subscribe(c.outgoing(ctx), &chatpb.SubscribeRequest{})
	if err != nil {
		return nil, err
	}
	header, err := stream.Header()
	if err != nil {
		return nil, err
	}
	sub := &Subscription{stream: stream}
	if values := header.Get(chatpb.SessionHeader); len(values) > 0 {
		sub.SessionID = values[0]
	} else {
		// No header means the stream failed before registration.
		if _, err := stream.Recv(); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func (s *Subscription) Recv() (chat.Message, error) {
	m, err := s.stream.Recv()
	if err != nil {
		return chat.Message{}, err
	}
	return FromPbMessage(m), nil
}

func (c *ChatClient) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func FromPbMessage(m *chatpb.Message) chat.Message {
	if m == nil {
		return chat.Message{}
	}
	return chat.Message{
		ID:        chat.MessageID(m.Id),
		Author:    chat.Principal(m.Author),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func fromPbMessages(messages []*chatpb.Message) []chat.Message {
	return lo.Map(messages, func(item *chatpb.Message, _ int) chat.Message {
		return FromPbMessage(item)
	})
}
