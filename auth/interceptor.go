package auth

import (
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/chatpb"
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Methods that do not resolve a principal.
var publicMethods = map[string]struct{}{
	chatpb.AuthService_Login_FullMethodName:    {},
	chatpb.AuthService_Register_FullMethodName: {},
}

const authorizationHeader = "authorization"

// UnaryInterceptor resolves the caller principal from the authorization
// metadata and stores it in the context. Anonymous callers are let through:
// each operation decides whether it needs a principal.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any,
		info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isPublicMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		newCtx, err := a.resolve(ctx)
		if err != nil {
			return nil, errors.MapToGRPCError(err)
		}
		return handler(newCtx, req)
	}
}

// StreamInterceptor is the streaming counterpart of UnaryInterceptor.
// The principal is resolved once, at stream establishment.
func (a *Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream,
		info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if isPublicMethod(info.FullMethod) {
			return handler(srv, ss)
		}
		newCtx, err := a.resolve(ss.Context())
		if err != nil {
			return errors.MapToGRPCError(err)
		}
		return handler(srv, &principalStream{ServerStream: ss, ctx: newCtx})
	}
}

func (a *Authenticator) resolve(ctx context.Context) (context.Context, error) {
	var credential string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(authorizationHeader); len(values) > 0 {
			credential = values[0]
		}
	}
	principal, err := a.Authenticate(credential)
	if err != nil {
		return nil, err
	}
	return WithPrincipal(ctx, principal), nil
}

// isPublicMethod checks if the current gRPC method is allowed without a token.
func isPublicMethod(method string) bool {
	_, ok := publicMethods[method]
	return ok
}

type principalStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *principalStream) Context() context.Context {
	return s.ctx
}
