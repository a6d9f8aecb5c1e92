package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/feeled/internal/config"
	"github.com/snappy-loop/feeled/internal/kafka"
	"github.com/snappy-loop/feeled/internal/logging"
	"github.com/snappy-loop/feeled/internal/metrics"
	"github.com/snappy-loop/feeled/internal/processor"
)

const summaryInterval = time.Minute

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogJSON)

	log.Info().Msg("Starting FeelEd Worker")

	if !cfg.EventsEnabled() {
		log.Fatal().Msg("KAFKA_BROKERS is required for the worker")
	}

	m := metrics.New(nil)
	eventProcessor := processor.NewEventProcessor(m)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopicEvents, cfg.KafkaConsumerGroup, eventProcessor)

	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods("GET")
	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: router, ReadTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.WorkerMetricsAddr).Msg("Metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(summaryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eventProcessor.LogSummary()
			}
		}
	}()

	log.Info().Msg("Worker started, consuming messages...")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Kafka consumer error")
	}

	log.Info().Msg("Shutting down worker...")
	if err := consumer.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close Kafka consumer")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)
	eventProcessor.LogSummary()
	log.Info().Msg("Worker exited")
}
