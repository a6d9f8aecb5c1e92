package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/snappy-loop/feeled/internal/models"
)

func completeStory() *models.Story {
	return &models.Story{Title: "T", EmotionTone: "Curious", Introduction: "I", EmotionalTrigger: "E",
		ConceptExplanation: "C", Resolution: "R", MoralMessage: "M", Conclusion: "Z"}
}

func TestGenerateStory_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/story" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		var req models.StoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic != "Gravity" {
			t.Errorf("unexpected body %+v (%v)", req, err)
		}
		json.NewEncoder(w).Encode(models.StoryResponse{Story: completeStory()})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithToken("tok"))
	story, err := c.GenerateStory(context.Background(), models.StoryRequest{Topic: "Gravity"})
	if err != nil {
		t.Fatalf("GenerateStory failed: %v", err)
	}
	if story.Title != "T" {
		t.Errorf("unexpected story %+v", story)
	}
}

func TestRemoteErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		call       func(c *Client) error
		wantMsg    string
		wantStatus int
	}{
		{
			name:   "server message is kept",
			status: http.StatusInternalServerError,
			body:   `{"error":"Failed to generate story text. Details: quota"}`,
			call: func(c *Client) error {
				_, err := c.GenerateStory(context.Background(), models.StoryRequest{})
				return err
			},
			wantMsg:    "Failed to generate story text. Details: quota",
			wantStatus: 500,
		},
		{
			name:   "generic fallback without message",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			call: func(c *Client) error {
				_, err := c.GenerateVoice(context.Background(), models.VoiceRequest{})
				return err
			},
			wantMsg:    "voice generation failed",
			wantStatus: 502,
		},
		{
			name:   "success without story",
			status: http.StatusOK,
			body:   `{}`,
			call: func(c *Client) error {
				_, err := c.GenerateStory(context.Background(), models.StoryRequest{})
				return err
			},
			wantMsg:    "story missing from response",
			wantStatus: 200,
		},
		{
			name:   "success with partial story",
			status: http.StatusOK,
			body:   `{"story":{"title":"Only a title"}}`,
			call: func(c *Client) error {
				_, err := c.GenerateStory(context.Background(), models.StoryRequest{})
				return err
			},
			wantMsg:    "incomplete story in response",
			wantStatus: 200,
		},
		{
			name:   "success without image",
			status: http.StatusOK,
			body:   `{"mimeType":"image/png"}`,
			call: func(c *Client) error {
				_, err := c.GenerateImage(context.Background(), models.ImageRequest{})
				return err
			},
			wantMsg:    "image missing from response",
			wantStatus: 200,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := tt.call(NewClient(srv.URL))
			var rErr *RemoteError
			if !errors.As(err, &rErr) {
				t.Fatalf("expected *RemoteError, got %v", err)
			}
			if rErr.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, rErr.Message)
			}
			if rErr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rErr.StatusCode)
			}
		})
	}
}

func TestGenerateImage_DefaultMime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base64Image":"QUJD"}`))
	}))
	defer srv.Close()

	img, err := NewClient(srv.URL).GenerateImage(context.Background(), models.ImageRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if img.MimeType != "image/jpeg" {
		t.Errorf("expected image/jpeg default, got %q", img.MimeType)
	}
}

func TestTimeoutIsRemoteError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.GenerateImage(context.Background(), models.ImageRequest{Prompt: "p"})
	var rErr *RemoteError
	if !errors.As(err, &rErr) {
		t.Fatalf("expected *RemoteError, got %v", err)
	}
	if rErr.Operation != OpImage || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected image deadline error, got %+v (%v)", rErr, rErr.Cause)
	}
}
