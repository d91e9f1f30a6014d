// Package admin is the operator surface of chatd: a small gRPC service on
// a Unix domain socket, consumed by chatctl.
package admin

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "chatsync.admin.v1.Admin"

const (
	methodStatus      = "/" + serviceName + "/Status"
	methodOnlineUsers = "/" + serviceName + "/OnlineUsers"
	methodCreateUser  = "/" + serviceName + "/CreateUser"
)

// Presence is what the admin service reads from the hub.
type Presence interface {
	Instance() string
	Connections() int
	Online(ctx context.Context) ([]string, error)
}

// Server is the admin service contract.
type Server interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	OnlineUsers(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	CreateUser(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
}

// Service implements Server.
type Service struct {
	store     store.Repository
	presence  Presence
	driver    string
	startedAt time.Time
}

var _ Server = (*Service)(nil)

func NewService(st store.Repository, p Presence, driver string) *Service {
	return &Service{store: st, presence: p, driver: driver, startedAt: time.Now()}
}

func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	online, err := s.presence.Online(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "presence: %v", err)
	}
	storeStatus := "ok"
	if err := s.store.Health(ctx); err != nil {
		storeStatus = err.Error()
	}
	return structpb.NewStruct(map[string]any{
		"instance":    s.presence.Instance(),
		"uptime_ms":   float64(time.Since(s.startedAt).Milliseconds()),
		"connections": float64(s.presence.Connections()),
		"online":      float64(len(online)),
		"store":       s.driver,
		"store_ok":    storeStatus,
	})
}

func (s *Service) OnlineUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	ids, err := s.presence.Online(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "presence: %v", err)
	}
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return structpb.NewList(vals)
}

func (s *Service) CreateUser(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	f := in.GetFields()
	u := chat.User{
		ID:         strings.TrimSpace(f["id"].GetStringValue()),
		FullName:   strings.TrimSpace(f["fullName"].GetStringValue()),
		Email:      strings.TrimSpace(f["email"].GetStringValue()),
		ProfilePic: f["profilePic"].GetStringValue(),
	}
	if u.FullName == "" || u.Email == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "fullName and email are required")
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "create user: %v", err)
	}
	return wrapperspb.String(u.ID), nil
}

// ServiceDesc describes the admin service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "OnlineUsers", Handler: onlineUsersHandler},
		{MethodName: "CreateUser", Handler: createUserHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatus}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Status(ctx, req.(*emptypb.Empty))
	})
}

func onlineUsersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).OnlineUsers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodOnlineUsers}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(Server).OnlineUsers(ctx, req.(*emptypb.Empty))
	})
}

func createUserHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).CreateUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCreateUser}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(Server).CreateUser(ctx, req.(*structpb.Struct))
	})
}
