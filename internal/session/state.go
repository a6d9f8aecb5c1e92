package session

import (
	"strings"

	"github.com/snappy-loop/feeled/internal/models"
)

// Phase is where a session is in the story → assets pipeline.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseStoryPending Phase = "story_pending"
	PhaseStoryReady   Phase = "story_ready"
	PhaseSettled      Phase = "settled"
)

// AssetStatus tracks one of the two assets generated after the story.
type AssetStatus string

const (
	AssetNone    AssetStatus = ""
	AssetPending AssetStatus = "pending"
	AssetReady   AssetStatus = "ready"
	AssetFailed  AssetStatus = "failed"
)

// Errors holds one message per failure source. Voice and image never overwrite each other.
type Errors struct {
	Story string `json:"story,omitempty"`
	Voice string `json:"voice,omitempty"`
	Image string `json:"image,omitempty"`
}

// Banner joins the present messages in story, voice, image order.
func (e Errors) Banner() string {
	var parts []string
	for _, msg := range []string{e.Story, e.Voice, e.Image} {
		if msg != "" {
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "\n")
}

// Empty reports whether no failure has been recorded.
func (e Errors) Empty() bool {
	return e.Story == "" && e.Voice == "" && e.Image == ""
}

// State is a point-in-time view of a session. Values are never mutated after
// being handed out, so a State can be read without locking.
type State struct {
	Session uint64               `json:"session"`
	Phase   Phase                `json:"phase"`
	Request *models.StoryRequest `json:"request,omitempty"`
	Story   *models.Story        `json:"story,omitempty"`

	Audio         AssetStatus        `json:"audio,omitempty"`
	AudioAsset    *models.AudioAsset `json:"audioAsset,omitempty"`
	AudioPlayable bool               `json:"audioPlayable"`
	AudioSeconds  float64            `json:"audioSeconds,omitempty"`

	Image      AssetStatus        `json:"image,omitempty"`
	ImageAsset *models.ImageAsset `json:"imageAsset,omitempty"`

	Errors Errors `json:"errors"`
	Banner string `json:"banner,omitempty"`
}

// Busy reports whether results for this session are still outstanding.
func (s State) Busy() bool {
	return s.Phase == PhaseStoryPending || s.Phase == PhaseStoryReady
}

// Result labels a finished session for metrics: "complete", "partial" or "story_failed".
func (s State) Result() string {
	switch {
	case s.Errors.Story != "":
		return "story_failed"
	case s.Audio == AssetReady && s.Image == AssetReady:
		return "complete"
	default:
		return "partial"
	}
}
