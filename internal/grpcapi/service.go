package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/snappy-loop/feeled/internal/models"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "feeled.v1.StoryService"

// FullMethod returns "/feeled.v1.StoryService/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// StoryServiceServer is implemented by grpcserver.
type StoryServiceServer interface {
	GenerateStory(context.Context, *models.StoryRequest) (*models.StoryResponse, error)
	GenerateVoice(context.Context, *models.VoiceRequest) (*models.AudioAsset, error)
	GenerateImage(context.Context, *models.ImageRequest) (*models.ImageAsset, error)
}

// RegisterStoryServiceServer registers srv on s.
func RegisterStoryServiceServer(s grpc.ServiceRegistrar, srv StoryServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc is the grpc.ServiceDesc for StoryService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GenerateStory",
			Handler: unaryHandler("GenerateStory", func(s StoryServiceServer, ctx context.Context, in *models.StoryRequest) (*models.StoryResponse, error) {
				return s.GenerateStory(ctx, in)
			}),
		},
		{
			MethodName: "GenerateVoice",
			Handler: unaryHandler("GenerateVoice", func(s StoryServiceServer, ctx context.Context, in *models.VoiceRequest) (*models.AudioAsset, error) {
				return s.GenerateVoice(ctx, in)
			}),
		},
		{
			MethodName: "GenerateImage",
			Handler: unaryHandler("GenerateImage", func(s StoryServiceServer, ctx context.Context, in *models.ImageRequest) (*models.ImageAsset, error) {
				return s.GenerateImage(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "feeled/v1/story.json",
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

// unaryHandler adapts a typed server method to grpc's untyped method handler, running
// the interceptor chain when one is installed.
func unaryHandler[Req, Resp any](method string, call func(StoryServiceServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StoryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StoryServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// StoryServiceClient is the client side of StoryService.
type StoryServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewStoryServiceClient wraps a connection.
func NewStoryServiceClient(cc grpc.ClientConnInterface) *StoryServiceClient {
	return &StoryServiceClient{cc: cc}
}

func (c *StoryServiceClient) GenerateStory(ctx context.Context, in *models.StoryRequest, opts ...grpc.CallOption) (*models.StoryResponse, error) {
	out := new(models.StoryResponse)
	if err := c.invoke(ctx, "GenerateStory", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StoryServiceClient) GenerateVoice(ctx context.Context, in *models.VoiceRequest, opts ...grpc.CallOption) (*models.AudioAsset, error) {
	out := new(models.AudioAsset)
	if err := c.invoke(ctx, "GenerateVoice", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StoryServiceClient) GenerateImage(ctx context.Context, in *models.ImageRequest, opts ...grpc.CallOption) (*models.ImageAsset, error) {
	out := new(models.ImageAsset)
	if err := c.invoke(ctx, "GenerateImage", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StoryServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, FullMethod(method), in, out, opts...)
}
