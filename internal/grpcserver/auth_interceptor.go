package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/snappy-loop/feeled/internal/auth"
)

const metadataKeyAuthorization = "authorization"

// AuthUnaryInterceptor returns a gRPC unary interceptor that validates the bearer token
// from the "authorization" metadata. Health checks are always allowed.
func AuthUnaryInterceptor(authService *auth.Service) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !authService.Enabled() || info.FullMethod == healthCheckMethod {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md.Get(metadataKeyAuthorization)
		if len(vals) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization")
		}
		token, err := auth.BearerToken(vals[0])
		if err == nil {
			err = authService.ValidateToken(token)
		}
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid api token")
		}
		ctx = context.WithValue(ctx, auth.AuthenticatedKey, true)
		return handler(ctx, req)
	}
}
