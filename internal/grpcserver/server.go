package grpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/snappy-loop/feeled/internal/auth"
	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/grpcapi"
	"github.com/snappy-loop/feeled/internal/models"
	"github.com/snappy-loop/feeled/internal/services"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// generationService is the subset of services.GenerationService served over gRPC.
type generationService interface {
	GenerateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error)
	GenerateVoice(ctx context.Context, req models.VoiceRequest) (*models.AudioAsset, error)
	GenerateImage(ctx context.Context, req models.ImageRequest) (*models.ImageAsset, error)
}

// StoryServer implements grpcapi.StoryServiceServer.
type StoryServer struct {
	svc generationService
}

// NewStoryServer returns a new StoryServer.
func NewStoryServer(svc generationService) *StoryServer {
	return &StoryServer{svc: svc}
}

// GenerateStory delegates to the generation service.
func (s *StoryServer) GenerateStory(ctx context.Context, req *models.StoryRequest) (*models.StoryResponse, error) {
	story, err := s.svc.GenerateStory(ctx, *req)
	if err != nil {
		return nil, toStatus(err, "Failed to generate story text")
	}
	return &models.StoryResponse{Story: story}, nil
}

// GenerateVoice delegates to the generation service.
func (s *StoryServer) GenerateVoice(ctx context.Context, req *models.VoiceRequest) (*models.AudioAsset, error) {
	asset, err := s.svc.GenerateVoice(ctx, *req)
	if err != nil {
		return nil, toStatus(err, "Failed to generate audio")
	}
	return asset, nil
}

// GenerateImage delegates to the generation service.
func (s *StoryServer) GenerateImage(ctx context.Context, req *models.ImageRequest) (*models.ImageAsset, error) {
	asset, err := s.svc.GenerateImage(ctx, *req)
	if err != nil {
		return nil, toStatus(err, "Failed to generate image")
	}
	return asset, nil
}

// toStatus maps validation errors to InvalidArgument and everything else to Internal
// with the same "<prefix>. Details: <err>" text the HTTP API returns.
func toStatus(err error, prefix string) error {
	var vErr *catalog.ValidationError
	if errors.As(err, &vErr) {
		return status.Error(codes.InvalidArgument, vErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, prefix+". Details: "+err.Error())
	}
	return status.Error(codes.Internal, prefix+". Details: "+err.Error())
}

// LoggingUnaryInterceptor assigns a trace id and logs each call.
func LoggingUnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	traceID := uuid.New().String()
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-request-id"); len(vals) > 0 && vals[0] != "" {
			traceID = vals[0]
		}
	}
	ctx = services.WithTraceID(ctx, traceID)

	start := time.Now()
	resp, err := handler(ctx, req)
	evt := log.Info()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("method", info.FullMethod).
		Str("trace_id", traceID).
		Str("code", status.Code(err).String()).
		Dur("duration", time.Since(start)).
		Msg("gRPC request")
	return resp, err
}

// NewServer builds a gRPC server with the story service and the standard health service.
func NewServer(svc generationService, authService *auth.Service, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(LoggingUnaryInterceptor, AuthUnaryInterceptor(authService)),
		grpc.MaxSendMsgSize(32<<20),
	)
	srv := grpc.NewServer(opts...)
	grpcapi.RegisterStoryServiceServer(srv, NewStoryServer(svc))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}
