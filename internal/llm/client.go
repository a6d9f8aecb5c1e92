package llm

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/api/option"
	unifiedgenai "google.golang.org/genai"
)

// maxGeminiResponseLogBytes is the max length of a Gemini response body to log in full (to avoid huge logs).
const maxGeminiResponseLogBytes = 8192

// httpClientForEndpoint returns an http.Client that rewrites request URLs to the given base endpoint (e.g. http://host.docker.internal:31300/gemini).
func httpClientForEndpoint(baseEndpoint string) *http.Client {
	base, err := url.Parse(baseEndpoint)
	if err != nil || base.Host == "" {
		log.Warn().Err(err).Str("endpoint", baseEndpoint).Msg("Invalid GEMINI_API_ENDPOINT, using default")
		return nil
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &http.Client{
		Transport: &endpointRoundTripper{base: base, next: http.DefaultTransport},
	}
}

// endpointRoundTripper rewrites request URLs to a custom base (scheme, host, path prefix).
type endpointRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

func (e *endpointRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = e.base.Scheme
	req2.URL.Host = e.base.Host
	req2.Host = e.base.Host
	req2.URL.Path = path.Join(e.base.Path, strings.TrimPrefix(req.URL.Path, "/"))
	if req.URL.RawQuery != "" {
		req2.URL.RawQuery = req.URL.RawQuery
	}
	return e.next.RoundTrip(req2)
}

// logGeminiResponse logs Gemini response text, truncating if over maxGeminiResponseLogBytes.
func logGeminiResponse(caller, raw string) {
	if len(raw) <= maxGeminiResponseLogBytes {
		log.Debug().Str("caller", caller).Str("gemini_response", raw).Msg("Gemini response")
		return
	}
	log.Debug().
		Str("caller", caller).
		Str("gemini_response", raw[:maxGeminiResponseLogBytes]+"... [truncated]").
		Int("gemini_response_len", len(raw)).
		Msg("Gemini response")
}

// Options configures NewClient. Empty model names fall back to the defaults below.
type Options struct {
	APIKey      string
	APIEndpoint string // optional base URL override, applied to every SDK
	ModelStory  string
	ModelTTS    string
	ModelImage  string
	Temperature float64
	// StructuredOutput selects the schema-constrained story path; when false (or the
	// schema client is unavailable) the story is requested through langchaingo in JSON mode.
	StructuredOutput bool
}

const (
	defaultModelStory  = "gemini-2.5-flash"
	defaultModelTTS    = "gemini-2.5-flash-preview-tts"
	defaultModelImage  = "gemini-2.5-flash-image"
	defaultTemperature = 0.7
)

// Client wraps the Gemini SDKs used for stories, narration and illustrations.
type Client struct {
	modelStory    string
	modelTTS      string
	modelImage    string
	temperature   float32
	llmStory      llms.Model           // langchaingo JSON-mode story path
	genaiClient   *genai.Client        // story with response schema
	unifiedClient *unifiedgenai.Client // TTS and image modalities
}

// NewClient creates a new LLM client. Individual SDK failures are logged and leave
// that path disabled; calls on a disabled path return an error.
func NewClient(opts Options) *Client {
	if opts.ModelStory == "" {
		opts.ModelStory = defaultModelStory
	}
	if opts.ModelTTS == "" {
		opts.ModelTTS = defaultModelTTS
	}
	if opts.ModelImage == "" {
		opts.ModelImage = defaultModelImage
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}

	// Optional custom HTTP client for langchaingo when using a custom endpoint
	var langchaingoHTTPClient *http.Client
	if opts.APIEndpoint != "" {
		langchaingoHTTPClient = httpClientForEndpoint(opts.APIEndpoint)
	}

	storyOpts := []googleai.Option{googleai.WithAPIKey(opts.APIKey), googleai.WithDefaultModel(opts.ModelStory)}
	if langchaingoHTTPClient != nil {
		storyOpts = append(storyOpts, googleai.WithHTTPClient(langchaingoHTTPClient))
	}
	var llmStory llms.Model
	if m, err := googleai.New(context.Background(), storyOpts...); err != nil {
		log.Error().Err(err).Str("model", opts.ModelStory).Msg("Failed to initialize langchaingo story model")
	} else {
		llmStory = m
	}

	var genaiClient *genai.Client
	if opts.APIKey != "" && opts.StructuredOutput {
		genaiOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
		if opts.APIEndpoint != "" {
			genaiOpts = append(genaiOpts, option.WithEndpoint(opts.APIEndpoint))
		}
		var err error
		genaiClient, err = genai.NewClient(context.Background(), genaiOpts...)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize genai client for structured stories")
		}
	}

	// Unified genai client for response_modalities audio/image
	var unifiedClient *unifiedgenai.Client
	if opts.APIKey != "" {
		unifiedCfg := &unifiedgenai.ClientConfig{APIKey: opts.APIKey, Backend: unifiedgenai.BackendGeminiAPI}
		if opts.APIEndpoint != "" {
			unifiedCfg.HTTPOptions = unifiedgenai.HTTPOptions{BaseURL: opts.APIEndpoint}
		}
		var err error
		unifiedClient, err = unifiedgenai.NewClient(context.Background(), unifiedCfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize unified genai client for TTS and images")
		}
	}

	log.Info().
		Str("model_story", opts.ModelStory).
		Str("model_tts", opts.ModelTTS).
		Str("model_image", opts.ModelImage).
		Float64("temperature", opts.Temperature).
		Str("api_endpoint", opts.APIEndpoint).
		Bool("genai_client", genaiClient != nil).
		Bool("langchaingo_story", llmStory != nil).
		Bool("unified_client", unifiedClient != nil).
		Msg("LLM client initialized")

	return &Client{
		modelStory:    opts.ModelStory,
		modelTTS:      opts.ModelTTS,
		modelImage:    opts.ModelImage,
		temperature:   float32(opts.Temperature),
		llmStory:      llmStory,
		genaiClient:   genaiClient,
		unifiedClient: unifiedClient,
	}
}

// Close releases the schema client's connection.
func (c *Client) Close() error {
	if c.genaiClient != nil {
		return c.genaiClient.Close()
	}
	return nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
