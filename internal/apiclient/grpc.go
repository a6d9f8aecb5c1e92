package apiclient

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/snappy-loop/feeled/internal/grpcapi"
	"github.com/snappy-loop/feeled/internal/models"
)

// GRPCClient calls the same three operations over gRPC.
type GRPCClient struct {
	conn    *grpc.ClientConn
	cli     *grpcapi.StoryServiceClient
	token   string
	timeout time.Duration
}

// DialGRPC connects to target (e.g. localhost:9090). Extra dial options are appended,
// which lets tests pass a bufconn dialer. Call Close when done.
func DialGRPC(target, token string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(32 << 20)),
	}, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{
		conn:    conn,
		cli:     grpcapi.NewStoryServiceClient(conn),
		token:   token,
		timeout: timeout,
	}, nil
}

// Close closes the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// GenerateStory calls StoryService/GenerateStory.
func (c *GRPCClient) GenerateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.cli.GenerateStory(ctx, &req)
	if err != nil {
		return nil, fromStatus(OpStory, err)
	}
	if resp.Story == nil {
		return nil, newRemoteError(OpStory, 0, "story missing from response", nil)
	}
	if err := resp.Story.Validate(); err != nil {
		return nil, newRemoteError(OpStory, 0, "incomplete story in response", err)
	}
	return resp.Story, nil
}

// GenerateVoice calls StoryService/GenerateVoice.
func (c *GRPCClient) GenerateVoice(ctx context.Context, req models.VoiceRequest) (*models.AudioAsset, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.cli.GenerateVoice(ctx, &req)
	if err != nil {
		return nil, fromStatus(OpVoice, err)
	}
	if resp.Base64Audio == "" {
		return nil, newRemoteError(OpVoice, 0, "audio missing from response", nil)
	}
	return resp, nil
}

// GenerateImage calls StoryService/GenerateImage.
func (c *GRPCClient) GenerateImage(ctx context.Context, req models.ImageRequest) (*models.ImageAsset, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.cli.GenerateImage(ctx, &req)
	if err != nil {
		return nil, fromStatus(OpImage, err)
	}
	if resp.Base64Image == "" {
		return nil, newRemoteError(OpImage, 0, "image missing from response", nil)
	}
	if resp.MimeType == "" {
		resp.MimeType = models.DefaultImageMimeType
	}
	return resp, nil
}

// fromStatus keeps the server's message for application errors and falls back to a
// generic one for transport failures.
func fromStatus(op string, err error) *RemoteError {
	st, ok := status.FromError(err)
	if !ok {
		return transportError(op, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return transportError(op, err)
	default:
		return newRemoteError(op, 0, st.Message(), err)
	}
}
