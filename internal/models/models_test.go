package models

import (
	"strings"
	"testing"
)

func sampleStory() *Story {
	return &Story{
		Title:              "The Apple",
		EmotionTone:        "Curious",
		Introduction:       "Ravi sat under a tree",
		EmotionalTrigger:   "An apple hit his head",
		ConceptExplanation: "Gravity pulls things down",
		Resolution:         "Ravi understood",
		MoralMessage:       "Stay curious",
		Conclusion:         "The end",
	}
}

func TestStory_FullText(t *testing.T) {
	got := sampleStory().FullText()
	want := "The Apple. Ravi sat under a tree. An apple hit his head. Gravity pulls things down. Ravi understood. Stay curious. The end"
	if got != want {
		t.Errorf("FullText mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestStory_Validate(t *testing.T) {
	if err := sampleStory().Validate(); err != nil {
		t.Fatalf("complete story rejected: %v", err)
	}

	s := sampleStory()
	s.Resolution = "  "
	s.Conclusion = ""
	err := s.Validate()
	if err == nil {
		t.Fatal("expected error for missing fields")
	}
	if !strings.Contains(err.Error(), "resolution, conclusion") {
		t.Errorf("error should name missing fields, got %v", err)
	}

	var nilStory *Story
	if nilStory.Validate() == nil {
		t.Error("nil story should be invalid")
	}
}

func TestStory_Sections(t *testing.T) {
	secs := sampleStory().Sections()
	if len(secs) != 7 {
		t.Fatalf("expected 7 sections, got %d", len(secs))
	}
	if secs[0].Heading != "Emotion Tone" || secs[6].Body != "The end" {
		t.Errorf("unexpected sections %+v", secs)
	}
}

func TestStory_ImagePrompt(t *testing.T) {
	p := sampleStory().ImagePrompt()
	for _, want := range []string{"curious mood", `"The Apple"`, "Ravi sat under a tree"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt %q missing %q", p, want)
		}
	}
}

func TestStory_ShareText(t *testing.T) {
	text := sampleStory().ShareText()
	if !strings.HasPrefix(text, "*The Apple*\n\n*Emotion Tone:*\nCurious") {
		t.Errorf("unexpected share text prefix: %q", text[:40])
	}
	if !strings.HasSuffix(text, "https://feeledai.com/") {
		t.Error("share text should end with the trailer")
	}
}
