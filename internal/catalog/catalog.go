// Package catalog holds the selectable form options and the narrator voice table.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/snappy-loop/feeled/internal/models"
)

//go:embed catalog.yaml
var embedded []byte

// VoicePair maps narrator voice (Male/Female) to a prebuilt TTS voice name.
type VoicePair map[string]string

// Defaults are the preselected form values.
type Defaults struct {
	Std           string `yaml:"std" json:"std"`
	Language      string `yaml:"language" json:"language"`
	NarratorVoice string `yaml:"narrator_voice" json:"narratorVoice"`
	EmotionTone   string `yaml:"emotion_tone" json:"emotionTone"`
}

// Catalog is the option catalog.
type Catalog struct {
	Grades         []string `yaml:"grades" json:"grades"`
	Languages      []string `yaml:"languages" json:"languages"`
	EmotionTones   []string `yaml:"emotion_tones" json:"emotionTones"`
	NarratorVoices []string `yaml:"narrator_voices" json:"narratorVoices"`
	Voices         struct {
		Default   VoicePair            `yaml:"default" json:"default"`
		Overrides map[string]VoicePair `yaml:"overrides" json:"overrides,omitempty"`
	} `yaml:"voices" json:"voices"`
	Defaults Defaults `yaml:"defaults" json:"defaults"`
}

// ValidationError reports a form field with an empty or unknown value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Default returns the embedded catalog. It panics only if the embedded file is broken.
func Default() *Catalog {
	c, err := Parse(embedded)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file, or the embedded catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(embedded)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) check() error {
	switch {
	case len(c.Grades) == 0:
		return fmt.Errorf("catalog: no grades")
	case len(c.Languages) == 0:
		return fmt.Errorf("catalog: no languages")
	case len(c.EmotionTones) == 0:
		return fmt.Errorf("catalog: no emotion tones")
	case len(c.NarratorVoices) == 0:
		return fmt.Errorf("catalog: no narrator voices")
	}
	for _, nv := range c.NarratorVoices {
		if c.Voices.Default[nv] == "" {
			return fmt.Errorf("catalog: no default voice for narrator %q", nv)
		}
	}
	for lang := range c.Voices.Overrides {
		if !slices.Contains(c.Languages, lang) {
			return fmt.Errorf("catalog: voice override for unknown language %q", lang)
		}
	}
	d := c.Defaults
	if err := c.Validate(models.StoryRequest{Topic: "-", Std: d.Std, Language: d.Language,
		NarratorVoice: d.NarratorVoice, EmotionTone: d.EmotionTone}); err != nil {
		return fmt.Errorf("catalog defaults: %w", err)
	}
	return nil
}

// VoiceName picks the prebuilt voice for a language and narrator. Languages without an
// override use the default pair.
func (c *Catalog) VoiceName(language, narrator string) string {
	if pair, ok := c.Voices.Overrides[language]; ok {
		if v := pair[narrator]; v != "" {
			return v
		}
	}
	if v := c.Voices.Default[narrator]; v != "" {
		return v
	}
	return c.Voices.Default[c.Defaults.NarratorVoice]
}

// Validate checks a story request before any network call is made.
func (c *Catalog) Validate(req models.StoryRequest) error {
	if strings.TrimSpace(req.Topic) == "" {
		return &ValidationError{Field: "topic", Message: "please enter a topic"}
	}
	if err := oneOf("std", req.Std, c.Grades); err != nil {
		return err
	}
	return c.validateVoiceOptions(req.Language, req.NarratorVoice, req.EmotionTone)
}

// ValidateVoice checks a narration request.
func (c *Catalog) ValidateVoice(req models.VoiceRequest) error {
	if strings.TrimSpace(req.FullStoryText) == "" {
		return &ValidationError{Field: "fullStoryText", Message: "must not be empty"}
	}
	return c.validateVoiceOptions(req.Language, req.NarratorVoice, req.EmotionTone)
}

func (c *Catalog) validateVoiceOptions(language, narrator, tone string) error {
	if err := oneOf("language", language, c.Languages); err != nil {
		return err
	}
	if err := oneOf("narratorVoice", narrator, c.NarratorVoices); err != nil {
		return err
	}
	return oneOf("emotionTone", tone, c.EmotionTones)
}

func oneOf(field, value string, allowed []string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if !slices.Contains(allowed, value) {
		return &ValidationError{Field: field, Message: fmt.Sprintf("unknown value %q", value)}
	}
	return nil
}
