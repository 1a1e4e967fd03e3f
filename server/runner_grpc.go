package server

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// RunnerServer is the server API for the Runner service.
type RunnerServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRunnerServer registers r on s under weft.v1.Runner.
func RegisterRunnerServer(s grpc.ServiceRegistrar, r RunnerServer) {
	s.RegisterService(&runnerServiceDesc, r)
}

var runnerServiceDesc = grpc.ServiceDesc{
	ServiceName: RunnerServiceName,
	HandlerType: (*RunnerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: grpcUnary(RunProcedure, RunnerServer.Run)},
		{MethodName: "Check", Handler: grpcUnary(CheckProcedure, RunnerServer.Check)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "weft/v1/runner.proto",
}

func grpcUnary(fullMethod string, call func(RunnerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			res, err := call(srv.(RunnerServer), ctx, req.(*structpb.Struct))
			return res, grpcStatus(err)
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

func grpcStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errSourceRequired):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// RunnerGRPCClient calls a Runner over a gRPC connection.
type RunnerGRPCClient struct {
	cc grpc.ClientConnInterface
}

// NewRunnerGRPCClient wraps cc.
func NewRunnerGRPCClient(cc grpc.ClientConnInterface) *RunnerGRPCClient {
	return &RunnerGRPCClient{cc: cc}
}

func (c *RunnerGRPCClient) Run(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RunProcedure, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RunnerGRPCClient) Check(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CheckProcedure, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
