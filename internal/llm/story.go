package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/snappy-loop/feeled/internal/models"
)

const storyMaxTokens = 4096

// GenerateStory turns a topic into an eight-part story. The structured (schema) path is
// used when available, otherwise langchaingo in JSON mode. There is no retry between them.
func (c *Client) GenerateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error) {
	prompt := storyPrompt(req)
	log.Info().
		Str("caller", "GenerateStory").
		Str("model", c.modelStory).
		Str("language", req.Language).
		Str("std", req.Std).
		Str("tone", req.EmotionTone).
		Int("prompt_len", len(prompt)).
		Msg("Generating story")

	var response string
	switch {
	case c.genaiClient != nil:
		model := c.genaiClient.GenerativeModel(c.modelStory)
		model.SetTemperature(c.temperature)
		model.SetMaxOutputTokens(storyMaxTokens)
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = storyResponseSchema()

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, fmt.Errorf("story model: %w", err)
		}
		response = extractTextFromGenaiResponse(resp)
	case c.llmStory != nil:
		messages := []llms.MessageContent{
			{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: prompt + "\n\n" + storyJSONInstruction}}},
		}
		resp, err := c.llmStory.GenerateContent(ctx, messages,
			llms.WithTemperature(float64(c.temperature)),
			llms.WithMaxTokens(storyMaxTokens),
			llms.WithResponseMIMEType("application/json"),
		)
		if err != nil {
			return nil, fmt.Errorf("story model: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("empty response from model")
		}
		response = resp.Choices[0].Content
	default:
		return nil, fmt.Errorf("no story model available")
	}

	logGeminiResponse("GenerateStory", response)
	return parseStory(response)
}

// storyPrompt is the storyteller instruction for a request.
func storyPrompt(req models.StoryRequest) string {
	return fmt.Sprintf("You are an expert educational storyteller. Convert the academic topic \"%s\" into an emotional, student-friendly story. "+
		"The story must be appropriate for a %s student and be in %s. The emotional tone should be %s. "+
		"Generate the story in a 5-part structure: Introduction, Emotional Trigger, Concept Explanation, Resolution, and Moral Message, plus a title and conclusion. "+
		"Return the output strictly in the specified JSON format.",
		strings.TrimSpace(req.Topic), req.Std, req.Language, req.EmotionTone)
}

// storyJSONInstruction spells out the shape when no response schema can be attached.
var storyJSONInstruction = "Respond with a single JSON object (no markdown, no code fences) with exactly these string keys: " +
	strings.Join(models.StoryFields, ", ") + "."

// storyResponseSchema requires all eight story fields as strings.
func storyResponseSchema() *genai.Schema {
	descriptions := map[string]string{
		"title":               "A short, catchy title for the story",
		"emotion_tone":        "The emotional tone of the story",
		"introduction":        "Introduces the characters and setting",
		"emotional_trigger":   "The event that creates an emotional hook",
		"concept_explanation": "Explains the academic concept through the story",
		"resolution":          "How the characters resolve the situation",
		"moral_message":       "The lesson or moral of the story",
		"conclusion":          "A brief closing for the story",
	}
	props := make(map[string]*genai.Schema, len(models.StoryFields))
	for _, f := range models.StoryFields {
		props[f] = &genai.Schema{Type: genai.TypeString, Description: descriptions[f]}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   append([]string(nil), models.StoryFields...),
	}
}

// extractTextFromGenaiResponse returns the concatenated text from the first candidate's parts.
func extractTextFromGenaiResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// parseStory decodes model JSON, tolerating code fences, and rejects incomplete stories.
func parseStory(response string) (*models.Story, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	if response == "" {
		return nil, fmt.Errorf("empty response")
	}

	var story models.Story
	if err := json.Unmarshal([]byte(response), &story); err != nil {
		return nil, fmt.Errorf("parse story JSON: %w", err)
	}
	if err := story.Validate(); err != nil {
		return nil, err
	}
	return &story, nil
}
