package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/muxable/callback/pkg/callback"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type CallbacksServer struct {
	// the number of published bindings is small and fixed at startup
	// so a plain map is enough.
	mu       sync.RWMutex
	bindings map[string]callback.Invoker
}

func NewCallbacksServer() *CallbacksServer {
	return &CallbacksServer{
		bindings: make(map[string]callback.Invoker),
	}
}

// Bind publishes inv under name so that clients can invoke it.
func (s *CallbacksServer) Bind(name string, inv callback.Invoker) error {
	if name == "" {
		return fmt.Errorf("%w: binding needs a name", callback.ErrInvalidArgument)
	}
	if inv == nil || !inv.Bound() {
		return fmt.Errorf("%w: %s has no live binding", callback.ErrNotFound, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bindings[name]; ok {
		return fmt.Errorf("%w: %s is already bound", callback.ErrInvalidArgument, name)
	}
	s.bindings[name] = inv

	zap.L().Debug("published binding", zap.String("name", name), zap.String("id", inv.ID().String()))
	return nil
}

func (s *CallbacksServer) Invoke(ctx context.Context, request *structpb.Struct) (_ *emptypb.Empty, err error) {
	name := request.GetFields()["name"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "missing binding name")
	}

	s.mu.RLock()
	inv, ok := s.bindings[name]
	s.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no binding named %s", name)
	}

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("callback panicked", zap.String("name", name), zap.Any("panic", r))
			err = status.Errorf(codes.Internal, "callback %s panicked", name)
		}
	}()

	if err := inv.InvokeAny(request.GetFields()["event"].AsInterface()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *CallbacksServer) Unregister(ctx context.Context, request *wrapperspb.StringValue) (*emptypb.Empty, error) {
	name := request.GetValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "missing binding name")
	}

	s.mu.Lock()
	inv, ok := s.bindings[name]
	delete(s.bindings, name)
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no binding named %s", name)
	}

	if err := inv.Unregister(); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, callback.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, callback.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, callback.ErrClosed):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func fromStatus(err error) error {
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch s.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", callback.ErrNotFound, s.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", callback.ErrInvalidArgument, s.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", callback.ErrClosed, s.Message())
	}
	return err
}

type callbacksService interface {
	Invoke(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Unregister(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

const (
	invokeMethod     = "/callback.Callbacks/Invoke"
	unregisterMethod = "/callback.Callbacks/Unregister"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "callback.Callbacks",
	HandlerType: (*callbacksService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
		{MethodName: "Unregister", Handler: unregisterHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "callback.proto",
}

func RegisterCallbacksServer(s grpc.ServiceRegistrar, srv *CallbacksServer) {
	s.RegisterService(&serviceDesc, srv)
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(callbacksService).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: invokeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(callbacksService).Invoke(ctx, req.(*structpb.Struct))
	})
}

func unregisterHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(callbacksService).Unregister(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: unregisterMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(callbacksService).Unregister(ctx, req.(*wrapperspb.StringValue))
	})
}
