package processor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/feeled/internal/metrics"
	"github.com/snappy-loop/feeled/internal/models"
)

// eventMaxAge drops events that sat in the topic for too long to be useful as live stats.
const eventMaxAge = 24 * time.Hour

var knownKinds = map[string]bool{
	models.EventStoryGenerated: true,
	models.EventStoryFailed:    true,
	models.EventVoiceGenerated: true,
	models.EventVoiceFailed:    true,
	models.EventImageGenerated: true,
	models.EventImageFailed:    true,
}

// OperationStats aggregates generation events for one operation (story, voice, image).
type OperationStats struct {
	Operation    string
	Succeeded    int64
	Failed       int64
	TotalLatency time.Duration
}

// MeanLatency of all calls seen for the operation.
func (s OperationStats) MeanLatency() time.Duration {
	n := s.Succeeded + s.Failed
	if n == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(n)
}

// EventProcessor consumes generation events: it exports them as metrics and keeps
// running per-operation totals for the periodic summary log.
type EventProcessor struct {
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	stats map[string]*OperationStats
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(m *metrics.Metrics) *EventProcessor {
	return &EventProcessor{
		metrics: m,
		now:     time.Now,
		stats:   make(map[string]*OperationStats),
	}
}

// HandleEvent implements kafka.EventHandler.
func (p *EventProcessor) HandleEvent(ctx context.Context, event *models.GenerationEvent) error {
	if age := p.now().Sub(event.CreatedAt); !event.CreatedAt.IsZero() && age > eventMaxAge {
		log.Debug().Str("event_id", event.ID.String()).Dur("age", age).Msg("Skipping stale generation event")
		return nil
	}

	if !knownKinds[event.Kind] {
		log.Warn().Str("kind", event.Kind).Msg("Unknown generation event kind")
		return nil
	}

	operation, outcome, _ := strings.Cut(event.Kind, ".")
	p.metrics.EventConsumed(event.Kind, event.Language)

	p.mu.Lock()
	st, exists := p.stats[operation]
	if !exists {
		st = &OperationStats{Operation: operation}
		p.stats[operation] = st
	}
	if outcome == "failed" {
		st.Failed++
	} else {
		st.Succeeded++
	}
	st.TotalLatency += time.Duration(event.LatencyMS) * time.Millisecond
	p.mu.Unlock()

	logEvent := log.Info()
	if outcome == "failed" {
		logEvent = log.Warn().Str("error", event.Error)
	}
	logEvent.
		Str("event_id", event.ID.String()).
		Str("kind", event.Kind).
		Str("language", event.Language).
		Str("std", event.Std).
		Str("voice", event.Voice).
		Int64("latency_ms", event.LatencyMS).
		Str("trace_id", event.TraceID).
		Msg("Generation event")
	return nil
}

// Summary returns the totals sorted by operation.
func (p *EventProcessor) Summary() []OperationStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OperationStats, 0, len(p.stats))
	for _, st := range p.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// LogSummary writes one line per operation.
func (p *EventProcessor) LogSummary() {
	for _, st := range p.Summary() {
		log.Info().
			Str("operation", st.Operation).
			Int64("succeeded", st.Succeeded).
			Int64("failed", st.Failed).
			Dur("mean_latency", st.MeanLatency()).
			Msg("Generation summary")
	}
}
