// Package apiclient calls the story, voice and image endpoints. Each call is a single
// request with a bounded timeout and no retries.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/feeled/internal/models"
)

// DefaultTimeout bounds each remote call.
const DefaultTimeout = 45 * time.Second

// maxResponseBytes caps a response body (base64 images can be several MB).
const maxResponseBytes = 64 << 20

// Client calls the HTTP API.
type Client struct {
	baseURL string
	httpCli *http.Client
	token   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpCli = h }
}

// WithToken sends "Authorization: Bearer <token>" on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a client for the API at baseURL (e.g. http://localhost:8080).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpCli: &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateStory posts to /api/story.
func (c *Client) GenerateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error) {
	var resp models.StoryResponse
	if err := c.post(ctx, OpStory, "/api/story", req, &resp); err != nil {
		return nil, err
	}
	if resp.Story == nil {
		return nil, newRemoteError(OpStory, http.StatusOK, "story missing from response", nil)
	}
	if err := resp.Story.Validate(); err != nil {
		return nil, newRemoteError(OpStory, http.StatusOK, "incomplete story in response", err)
	}
	return resp.Story, nil
}

// GenerateVoice posts to /api/voice.
func (c *Client) GenerateVoice(ctx context.Context, req models.VoiceRequest) (*models.AudioAsset, error) {
	var resp models.AudioAsset
	if err := c.post(ctx, OpVoice, "/api/voice", req, &resp); err != nil {
		return nil, err
	}
	if resp.Base64Audio == "" {
		return nil, newRemoteError(OpVoice, http.StatusOK, "audio missing from response", nil)
	}
	return &resp, nil
}

// GenerateImage posts to /api/image.
func (c *Client) GenerateImage(ctx context.Context, req models.ImageRequest) (*models.ImageAsset, error) {
	var resp models.ImageAsset
	if err := c.post(ctx, OpImage, "/api/image", req, &resp); err != nil {
		return nil, err
	}
	if resp.Base64Image == "" {
		return nil, newRemoteError(OpImage, http.StatusOK, "image missing from response", nil)
	}
	if resp.MimeType == "" {
		resp.MimeType = models.DefaultImageMimeType
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	body, err := c.do(ctx, op, path, in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return newRemoteError(op, http.StatusOK, "invalid response from server", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, path string, in any) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpCli.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Str("operation", op).Dur("elapsed", time.Since(start)).Msg("Remote call failed")
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &errBody)
		log.Warn().
			Str("operation", op).
			Int("status", resp.StatusCode).
			Str("error", errBody.Error).
			Msg("Remote call returned error status")
		return nil, newRemoteError(op, resp.StatusCode, errBody.Error, nil)
	}

	log.Debug().Str("operation", op).Int("bytes", len(body)).Dur("elapsed", time.Since(start)).Msg("Remote call succeeded")
	return body, nil
}
