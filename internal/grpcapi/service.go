package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"tinyserve/pkg/types"
)

// ServiceName is both the gRPC service name and the health-check service name.
const ServiceName = "TinyModelServer"

// Method names.
const (
	MethodListModels            = "ListModels"
	MethodRunImage              = "RunImage"
	MethodRunBatchImage         = "RunBatchImage"
	MethodRunText               = "RunText"
	MethodRunBatchText          = "RunBatchText"
	MethodGetInputShape         = "GetInputShape"
	MethodReloadModel           = "ReloadModel"
	MethodGetPID                = "GetPID"
	MethodGetNumParallelWorkers = "GetNumParallelWorkers"
	MethodStopServer            = "StopServer"
)

// FullMethod returns the gRPC path of a model service method.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// ModelServer is the server API of the model service. Every method returns a
// Response; failures travel inside it, never as a gRPC status.
type ModelServer interface {
	ListModels(context.Context, *types.EmptyArgs) (*types.Response, error)
	RunImage(context.Context, *types.ImageArgs) (*types.Response, error)
	RunBatchImage(context.Context, *types.BatchImageArgs) (*types.Response, error)
	RunText(context.Context, *types.TextArgs) (*types.Response, error)
	RunBatchText(context.Context, *types.BatchTextArgs) (*types.Response, error)
	GetInputShape(context.Context, *types.StringArg) (*types.Response, error)
	ReloadModel(context.Context, *types.StringArg) (*types.Response, error)
	GetPID(context.Context, *types.StringArg) (*types.Response, error)
	GetNumParallelWorkers(context.Context, *types.StringArg) (*types.Response, error)
	StopServer(context.Context, *types.StringArg) (*types.Response, error)
}

func unary[Req any](method string, call func(ModelServer, context.Context, *Req) (*types.Response, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ModelServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ModelServer), ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc describes the model service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ModelServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodListModels, ModelServer.ListModels),
		unary(MethodRunImage, ModelServer.RunImage),
		unary(MethodRunBatchImage, ModelServer.RunBatchImage),
		unary(MethodRunText, ModelServer.RunText),
		unary(MethodRunBatchText, ModelServer.RunBatchText),
		unary(MethodGetInputShape, ModelServer.GetInputShape),
		unary(MethodReloadModel, ModelServer.ReloadModel),
		unary(MethodGetPID, ModelServer.GetPID),
		unary(MethodGetNumParallelWorkers, ModelServer.GetNumParallelWorkers),
		unary(MethodStopServer, ModelServer.StopServer),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tinyserve/model_service",
}

// RegisterModelServer registers srv on s.
func RegisterModelServer(s grpc.ServiceRegistrar, srv ModelServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ModelClient is the client stub of the model service.
type ModelClient struct {
	cc grpc.ClientConnInterface
}

func NewModelClient(cc grpc.ClientConnInterface) *ModelClient { return &ModelClient{cc: cc} }

func (c *ModelClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*types.Response, error) {
	out := new(types.Response)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ModelClient) ListModels(ctx context.Context, in *types.EmptyArgs, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodListModels, in, opts)
}

func (c *ModelClient) RunImage(ctx context.Context, in *types.ImageArgs, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodRunImage, in, opts)
}

func (c *ModelClient) RunBatchImage(ctx context.Context, in *types.BatchImageArgs, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodRunBatchImage, in, opts)
}

func (c *ModelClient) RunText(ctx context.Context, in *types.TextArgs, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodRunText, in, opts)
}

func (c *ModelClient) RunBatchText(ctx context.Context, in *types.BatchTextArgs, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodRunBatchText, in, opts)
}

func (c *ModelClient) GetInputShape(ctx context.Context, in *types.StringArg, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodGetInputShape, in, opts)
}

func (c *ModelClient) ReloadModel(ctx context.Context, in *types.StringArg, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodReloadModel, in, opts)
}

func (c *ModelClient) GetPID(ctx context.Context, in *types.StringArg, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodGetPID, in, opts)
}

func (c *ModelClient) GetNumParallelWorkers(ctx context.Context, in *types.StringArg, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodGetNumParallelWorkers, in, opts)
}

func (c *ModelClient) StopServer(ctx context.Context, in *types.StringArg, opts ...grpc.CallOption) (*types.Response, error) {
	return c.invoke(ctx, MethodStopServer, in, opts)
}
