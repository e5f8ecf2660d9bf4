// Package grpc exposes the identity pipeline to sibling services: token
// verification and university lookup over elearning.identity.v1.
package grpc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"elearning/internal/apperr"
	"elearning/internal/model"
	"elearning/internal/repository"
	"elearning/internal/tenant"
)

const identityServiceName = "elearning.identity.v1.IdentityQueryService"

const (
	authenticateMethod  = "/" + identityServiceName + "/Authenticate"
	resolveTenantMethod = "/" + identityServiceName + "/ResolveTenant"
)

type IdentityQueryServiceServer interface {
	Authenticate(ctx context.Context, token *wrapperspb.StringValue) (*structpb.Struct, error)
	ResolveTenant(ctx context.Context, domain *wrapperspb.StringValue) (*structpb.Struct, error)
}

// IdentityQueryServiceDesc is registered by hand; the service speaks only
// well-known protobuf types.
var IdentityQueryServiceDesc = grpc.ServiceDesc{
	ServiceName: identityServiceName,
	HandlerType: (*IdentityQueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Authenticate", Handler: authenticateHandler},
		{MethodName: "ResolveTenant", Handler: resolveTenantHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "elearning/identity/v1/identity.proto",
}

func RegisterIdentityQueryServiceServer(s grpc.ServiceRegistrar, srv IdentityQueryServiceServer) {
	s.RegisterService(&IdentityQueryServiceDesc, srv)
}

func authenticateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityQueryServiceServer).Authenticate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: authenticateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IdentityQueryServiceServer).Authenticate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func resolveTenantHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityQueryServiceServer).ResolveTenant(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveTenantMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IdentityQueryServiceServer).ResolveTenant(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// IdentityQueryServiceClient calls the identity service from another process.
type IdentityQueryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewIdentityQueryServiceClient(cc grpc.ClientConnInterface) *IdentityQueryServiceClient {
	return &IdentityQueryServiceClient{cc: cc}
}

func (c *IdentityQueryServiceClient) Authenticate(ctx context.Context, token string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, authenticateMethod, wrapperspb.String(token), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *IdentityQueryServiceClient) ResolveTenant(ctx context.Context, domain string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, resolveTenantMethod, wrapperspb.String(domain), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Principal, error)
}

type IdentityServer struct {
	authn  Authenticator
	dir    tenant.Directory
	logger *zap.Logger
}

func NewIdentityServer(authn Authenticator, dir tenant.Directory, logger *zap.Logger) *IdentityServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityServer{authn: authn, dir: dir, logger: logger}
}

func (s *IdentityServer) Authenticate(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	p, err := s.authn.Authenticate(ctx, strings.TrimSpace(req.GetValue()))
	if err != nil {
		return nil, s.toStatus(err)
	}

	fields := map[string]interface{}{
		"id":            p.ID,
		"email":         p.Email,
		"first_name":    p.FirstName,
		"last_name":     p.LastName,
		"role":          string(p.Role),
		"university_id": p.TenantID,
		"university":    nil,
	}
	if p.Tenant != nil {
		fields["university"] = tenantFields(*p.Tenant)
	}
	return newStruct(fields)
}

func (s *IdentityServer) ResolveTenant(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	domain := strings.ToLower(strings.TrimSpace(req.GetValue()))
	if domain == "" {
		return nil, status.Error(codes.InvalidArgument, "domain required")
	}
	t, err := s.dir.TenantByDomain(ctx, domain)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !t.Active) {
		return nil, status.Error(codes.NotFound, apperr.MsgTenantNotFound)
	}
	if err != nil {
		return nil, s.toStatus(err)
	}
	return newStruct(tenantFields(t))
}

func tenantFields(t model.Tenant) map[string]interface{} {
	return map[string]interface{}{
		"id":                t.ID,
		"name":              t.Name,
		"name_ar":           t.NameAr,
		"code":              t.Code,
		"domain":            t.Domain,
		"is_active":         t.Active,
		"subscription_plan": string(t.SubscriptionPlan),
	}
}

func newStruct(fields map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

var codeByStatus = map[int]codes.Code{
	http.StatusBadRequest:      codes.InvalidArgument,
	http.StatusUnauthorized:    codes.Unauthenticated,
	http.StatusForbidden:       codes.PermissionDenied,
	http.StatusNotFound:        codes.NotFound,
	http.StatusConflict:        codes.AlreadyExists,
	http.StatusTooManyRequests: codes.ResourceExhausted,
}

// toStatus maps a classified failure onto a gRPC status carrying the same
// client-facing message the HTTP envelope would.
func (s *IdentityServer) toStatus(err error) error {
	classified := apperr.Classify(err)
	code, ok := codeByStatus[classified.Kind.Status()]
	if !ok {
		s.logger.Error("identity call failed", zap.String("kind", string(classified.Kind)), zap.Error(err))
		return status.Error(codes.Internal, classified.Message)
	}
	return status.Error(code, classified.Message)
}

// NewServer builds a gRPC server exposing the identity service behind the
// service-token check.
func NewServer(identity IdentityQueryServiceServer, serviceToken string, logger *zap.Logger) (*grpc.Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	authInterceptor, err := NewServiceAuthUnaryInterceptor(serviceToken, logger)
	if err != nil {
		return nil, err
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(NewLoggingUnaryInterceptor(logger), authInterceptor))
	RegisterIdentityQueryServiceServer(server, identity)
	return server, nil
}
