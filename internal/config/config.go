package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	// Server
	HTTPAddr string
	GRPCAddr string // empty disables the gRPC listener
	LogLevel string
	LogJSON  bool // plain JSON lines instead of the console writer

	// Clients (storyctl and live sessions). Empty APIBaseURL means sessions call the service in-process.
	APIBaseURL    string
	GRPCTarget    string
	APIToken      string
	RemoteTimeout time.Duration

	// Auth: bcrypt hash of the shared bearer token; empty disables auth
	APITokenHash string

	// Rate limiting on /api (requests per second, 0 disables)
	RateLimitRPS   float64
	RateLimitBurst int

	// Sessions
	SessionWorkers int

	// Option catalog (empty uses the embedded one)
	CatalogPath string

	// Kafka (empty brokers disables events)
	KafkaBrokers       []string
	KafkaConsumerGroup string
	KafkaTopicEvents   string

	// Worker
	WorkerMetricsAddr string

	// Gemini API
	GeminiAPIKey      string
	GeminiAPIEndpoint string // if set, overrides default Gemini API base URL (e.g. http://host.docker.internal:31300/gemini)
	GeminiModelStory  string
	GeminiModelTTS    string
	GeminiModelImage  string
	StoryTemperature  float64
	StoryStructured   bool // schema-constrained JSON via generative-ai-go; false uses langchaingo JSON mode
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr: getEnvAllowEmpty("GRPC_ADDR", ":9090"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),

		APIBaseURL:    getEnv("API_BASE_URL", ""),
		GRPCTarget:    getEnv("GRPC_TARGET", "localhost:9090"),
		APIToken:      getEnv("API_TOKEN", ""),
		RemoteTimeout: clampMinDuration(getEnvDuration("REMOTE_TIMEOUT", 45*time.Second), time.Second),

		APITokenHash: getEnv("API_TOKEN_HASH", ""),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: clampMin(getEnvInt("RATE_LIMIT_BURST", 10), 1),

		SessionWorkers: clampMin(getEnvInt("SESSION_WORKERS", 64), 2),

		CatalogPath: getEnv("CATALOG_PATH", ""),

		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "feeled-worker-main"),
		KafkaTopicEvents:   getEnv("KAFKA_TOPIC_EVENTS", "feeled.events.v1"),

		WorkerMetricsAddr: getEnv("WORKER_METRICS_ADDR", ":9102"),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint: getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModelStory:  getEnv("GEMINI_MODEL_STORY", "gemini-2.5-flash"),
		GeminiModelTTS:    getEnv("GEMINI_MODEL_TTS", "gemini-2.5-flash-preview-tts"),
		GeminiModelImage:  getEnv("GEMINI_MODEL_IMAGE", "gemini-2.5-flash-image"),
		StoryTemperature:  getEnvFloat("STORY_TEMPERATURE", 0.7),
		StoryStructured:   getEnvBool("STORY_STRUCTURED_OUTPUT", true),
	}
}

// EventsEnabled reports whether generation events should be published.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes an unset variable from one explicitly set to "".
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// clampMin returns v if v >= min, otherwise min. Used to ensure config values are in valid range.
func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func clampMinDuration(v, min time.Duration) time.Duration {
	if v < min {
		return min
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
