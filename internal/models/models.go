package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StoryRequest is what the form submits. Field names match the JSON the browser sends.
type StoryRequest struct {
	Topic         string `json:"topic"`
	Std           string `json:"std"`
	Language      string `json:"language"`
	NarratorVoice string `json:"narratorVoice"`
	EmotionTone   string `json:"emotionTone"`
}

// Story is the eight-part structured story returned by the model.
type Story struct {
	Title              string `json:"title"`
	EmotionTone        string `json:"emotion_tone"`
	Introduction       string `json:"introduction"`
	EmotionalTrigger   string `json:"emotional_trigger"`
	ConceptExplanation string `json:"concept_explanation"`
	Resolution         string `json:"resolution"`
	MoralMessage       string `json:"moral_message"`
	Conclusion         string `json:"conclusion"`
}

// StoryFields lists the JSON keys every story must carry, in display order.
var StoryFields = []string{
	"title", "emotion_tone", "introduction", "emotional_trigger",
	"concept_explanation", "resolution", "moral_message", "conclusion",
}

// Section is one headed block of story text.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Sections returns the seven text sections shown under the title.
func (s *Story) Sections() []Section {
	return []Section{
		{"Emotion Tone", s.EmotionTone},
		{"Introduction", s.Introduction},
		{"Emotional Trigger", s.EmotionalTrigger},
		{"Concept Explanation", s.ConceptExplanation},
		{"Resolution", s.Resolution},
		{"Moral Message", s.MoralMessage},
		{"Conclusion", s.Conclusion},
	}
}

// Validate rejects a story with any missing field; stories are all-or-nothing.
func (s *Story) Validate() error {
	if s == nil {
		return fmt.Errorf("story is nil")
	}
	values := []string{s.Title, s.EmotionTone, s.Introduction, s.EmotionalTrigger,
		s.ConceptExplanation, s.Resolution, s.MoralMessage, s.Conclusion}
	var missing []string
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, StoryFields[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("story missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// FullText is the narration script: title and the six narrative parts joined with ". ".
func (s *Story) FullText() string {
	return strings.Join([]string{
		s.Title, s.Introduction, s.EmotionalTrigger, s.ConceptExplanation,
		s.Resolution, s.MoralMessage, s.Conclusion,
	}, ". ")
}

// ImagePrompt builds the illustration prompt from the tone, title and introduction.
func (s *Story) ImagePrompt() string {
	return fmt.Sprintf("A vibrant, child-friendly storybook illustration with a %s mood for the story titled %q. "+
		"Scene: %s Warm colors, soft lighting, expressive characters, no text or letters in the image.",
		strings.ToLower(s.EmotionTone), s.Title, s.Introduction)
}

// ShareText is the message body used when sharing a story to chat apps.
func (s *Story) ShareText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", s.Title)
	for _, sec := range s.Sections() {
		fmt.Fprintf(&b, "*%s:*\n%s\n\n", sec.Heading, sec.Body)
	}
	b.WriteString("- Generated by FeelEd AI\n- Create your own at https://feeledai.com/")
	return b.String()
}

// AudioAsset is base64 16-bit little-endian mono PCM.
type AudioAsset struct {
	Base64Audio string `json:"base64Audio"`
	SampleRate  int    `json:"sampleRate,omitempty"`
}

// ImageAsset is a base64 encoded image.
type ImageAsset struct {
	Base64Image string `json:"base64Image"`
	MimeType    string `json:"mimeType"`
}

// DefaultImageMimeType is assumed when the model omits a MIME type.
const DefaultImageMimeType = "image/jpeg"

// VoiceRequest asks for narration of a story's full text.
type VoiceRequest struct {
	FullStoryText string `json:"fullStoryText"`
	Language      string `json:"language"`
	NarratorVoice string `json:"narratorVoice"`
	EmotionTone   string `json:"emotionTone"`
}

// ImageRequest asks for an illustration.
type ImageRequest struct {
	Prompt string `json:"prompt"`
}

// StoryResponse wraps the story for the /api/story endpoint
type StoryResponse struct {
	Story *Story `json:"story"`
}

// DownloadRequest asks the server to package narration PCM as a WAV file.
type DownloadRequest struct {
	Title       string `json:"title"`
	Base64Audio string `json:"base64Audio"`
}

// Generation event kinds
const (
	EventStoryGenerated = "story.generated"
	EventStoryFailed    = "story.failed"
	EventVoiceGenerated = "voice.generated"
	EventVoiceFailed    = "voice.failed"
	EventImageGenerated = "image.generated"
	EventImageFailed    = "image.failed"
)

// GenerationEvent is published after every model call (Kafka).
type GenerationEvent struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Language    string    `json:"language,omitempty"`
	Std         string    `json:"std,omitempty"`
	EmotionTone string    `json:"emotion_tone,omitempty"`
	Voice       string    `json:"voice,omitempty"`
	LatencyMS   int64     `json:"latency_ms"`
	Error       string    `json:"error,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewGenerationEvent stamps an event with a fresh id and the current time.
func NewGenerationEvent(kind string, latency time.Duration) *GenerationEvent {
	return &GenerationEvent{
		ID:        uuid.New(),
		Kind:      kind,
		LatencyMS: latency.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
}
