package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/metrics"
	"github.com/snappy-loop/feeled/internal/models"
	"github.com/snappy-loop/feeled/internal/session"
)

// generationService is what the proxy endpoints call. *services.GenerationService implements it.
type generationService interface {
	GenerateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error)
	GenerateVoice(ctx context.Context, req models.VoiceRequest) (*models.AudioAsset, error)
	GenerateImage(ctx context.Context, req models.ImageRequest) (*models.ImageAsset, error)
}

// Handler contains all HTTP handlers
type Handler struct {
	service    generationService
	catalog    *catalog.Catalog
	metrics    *metrics.Metrics
	newSession func() *session.Orchestrator
	limiter    *rate.Limiter // shared by /api and live session submits; nil disables
}

// NewHandler creates a new handler. newSession builds the orchestrator behind each
// live UI connection; nil runs sessions against service in-process.
func NewHandler(service generationService, cat *catalog.Catalog, m *metrics.Metrics, newSession func() *session.Orchestrator) *Handler {
	if newSession == nil {
		newSession = func() *session.Orchestrator {
			return session.New(service, session.WithValidator(cat), session.WithMetrics(m))
		}
	}
	return &Handler{
		service:    service,
		catalog:    cat,
		metrics:    m,
		newSession: newSession,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
