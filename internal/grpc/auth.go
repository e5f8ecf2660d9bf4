package grpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const serviceTokenHeader = "x-service-token"

type serviceAuth struct {
	expected []byte
	logger   *zap.Logger
}

// NewServiceAuthUnaryInterceptor admits calls whose x-service-token metadata
// matches the shared token. Rejections are logged with the called method.
func NewServiceAuthUnaryInterceptor(expectedToken string, logger *zap.Logger) (grpc.UnaryServerInterceptor, error) {
	if expectedToken == "" {
		return nil, errors.New("service auth token required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := serviceAuth{expected: []byte(expectedToken), logger: logger}
	return a.intercept, nil
}

func (a serviceAuth) intercept(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	presented := incomingServiceToken(ctx)
	switch {
	case presented == "":
		a.logger.Warn("grpc call without service token", zap.String("method", info.FullMethod))
		return nil, status.Error(codes.Unauthenticated, "service token required")
	case subtle.ConstantTimeCompare([]byte(presented), a.expected) != 1:
		a.logger.Warn("grpc call with wrong service token", zap.String("method", info.FullMethod))
		return nil, status.Error(codes.PermissionDenied, "service token rejected")
	}
	return handler(ctx, req)
}

func incomingServiceToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(serviceTokenHeader) {
		if token := strings.TrimSpace(value); token != "" {
			return token
		}
	}
	return ""
}

// WithServiceToken attaches the service token to an outgoing call.
func WithServiceToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, serviceTokenHeader, token)
}

func NewLoggingUnaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("grpc call", fields...)
		}
		return resp, err
	}
}
