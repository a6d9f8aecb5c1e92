package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/snappy-loop/feeled/internal/apiclient"
	"github.com/snappy-loop/feeled/internal/auth"
	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/config"
	"github.com/snappy-loop/feeled/internal/grpcserver"
	"github.com/snappy-loop/feeled/internal/handlers"
	"github.com/snappy-loop/feeled/internal/kafka"
	"github.com/snappy-loop/feeled/internal/llm"
	"github.com/snappy-loop/feeled/internal/logging"
	"github.com/snappy-loop/feeled/internal/metrics"
	"github.com/snappy-loop/feeled/internal/services"
	"github.com/snappy-loop/feeled/internal/session"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogJSON)

	log.Info().Msg("Starting FeelEd API")

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("Failed to load option catalog")
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set; generation calls will fail")
	}

	llmClient := llm.NewClient(llm.Options{
		APIKey:           cfg.GeminiAPIKey,
		APIEndpoint:      cfg.GeminiAPIEndpoint,
		ModelStory:       cfg.GeminiModelStory,
		ModelTTS:         cfg.GeminiModelTTS,
		ModelImage:       cfg.GeminiModelImage,
		Temperature:      cfg.StoryTemperature,
		StructuredOutput: cfg.StoryStructured,
	})
	defer llmClient.Close()

	m := metrics.New(nil)

	var publisher services.EventPublisher
	if cfg.EventsEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicEvents)
		defer producer.Close()
		publisher = producer
	}
	generationService := services.NewGenerationService(llmClient, cat, publisher, m)

	authService, err := auth.NewService(cfg.APITokenHash)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid auth configuration")
	}

	pool, err := session.NewPool(cfg.SessionWorkers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create worker pool")
	}
	defer pool.Release()

	// Live sessions call the local service unless pointed at another API.
	var sessionBackend session.Generator = generationService
	if cfg.APIBaseURL != "" {
		sessionBackend = apiclient.NewClient(cfg.APIBaseURL,
			apiclient.WithToken(cfg.APIToken),
			apiclient.WithTimeout(cfg.RemoteTimeout))
		log.Info().Str("api_base_url", cfg.APIBaseURL).Msg("Live sessions use remote API")
	}
	newSession := func() *session.Orchestrator {
		return session.New(sessionBackend,
			session.WithValidator(cat),
			session.WithDispatcher(pool),
			session.WithTimeout(cfg.RemoteTimeout),
			session.WithMetrics(m))
	}

	h := handlers.NewHandler(generationService, cat, m, newSession)
	router := h.Router(handlers.RouterOptions{
		Auth:           authService,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Generation calls can take most of RemoteTimeout.
		WriteTimeout: cfg.RemoteTimeout + 15*time.Second,
	}

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcSrv = grpcserver.NewServer(generationService, authService)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Bool("auth", authService.Enabled()).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcSrv != nil {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}
			log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC listening")
			return grpcSrv.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}
	log.Info().Msg("API exited")
}
