package session

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/snappy-loop/feeled/internal/apiclient"
	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/metrics"
	"github.com/snappy-loop/feeled/internal/models"
)

type result[T any] struct {
	val *T
	err error
}

// gatedGenerator blocks each call until the test releases it through the channel.
type gatedGenerator struct {
	story chan result[models.Story]
	voice chan result[models.AudioAsset]
	image chan result[models.ImageAsset]

	storyCalls, voiceCalls, imageCalls atomic.Int32

	mu       sync.Mutex
	voiceReq models.VoiceRequest
	imageReq models.ImageRequest
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{
		story: make(chan result[models.Story], 1),
		voice: make(chan result[models.AudioAsset], 1),
		image: make(chan result[models.ImageAsset], 1),
	}
}

func (g *gatedGenerator) GenerateStory(ctx context.Context, _ models.StoryRequest) (*models.Story, error) {
	g.storyCalls.Add(1)
	select {
	case r := <-g.story:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedGenerator) GenerateVoice(ctx context.Context, req models.VoiceRequest) (*models.AudioAsset, error) {
	g.voiceCalls.Add(1)
	g.mu.Lock()
	g.voiceReq = req
	g.mu.Unlock()
	select {
	case r := <-g.voice:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedGenerator) GenerateImage(ctx context.Context, req models.ImageRequest) (*models.ImageAsset, error) {
	g.imageCalls.Add(1)
	g.mu.Lock()
	g.imageReq = req
	g.mu.Unlock()
	select {
	case r := <-g.image:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func gravityRequest() models.StoryRequest {
	return models.StoryRequest{Topic: "Gravity", Std: "5th STD", Language: "English", NarratorVoice: "Male", EmotionTone: "Curious"}
}

func gravityStory() *models.Story {
	return &models.Story{
		Title:              "The Falling Apple",
		EmotionTone:        "Curious",
		Introduction:       "Ravi sat under a tree.",
		EmotionalTrigger:   "An apple fell on his head.",
		ConceptExplanation: "Gravity pulls things toward the Earth.",
		Resolution:         "Ravi understood why.",
		MoralMessage:       "Stay curious.",
		Conclusion:         "He smiled.",
	}
}

func pcmAudio() *models.AudioAsset {
	raw := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80}
	return &models.AudioAsset{Base64Audio: base64.StdEncoding.EncodeToString(raw), SampleRate: 24000}
}

func pngImage() *models.ImageAsset {
	return &models.ImageAsset{Base64Image: "iVBORw0KGgo=", MimeType: "image/png"}
}

// waitFor polls the orchestrator until cond holds.
func waitFor(t *testing.T, o *Orchestrator, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := o.Snapshot(); cond(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached, state %+v", o.Snapshot())
	return State{}
}

func storyReady(st State) bool { return st.Phase == PhaseStoryReady }

func bothStarted(g *gatedGenerator) func(State) bool {
	return func(State) bool { return g.voiceCalls.Load() == 1 && g.imageCalls.Load() == 1 }
}

func TestEndToEnd(t *testing.T) {
	g := newGatedGenerator()
	o := New(g)

	if _, err := o.Submit(gravityRequest()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if st := o.Snapshot(); st.Phase != PhaseStoryPending || st.Story != nil {
		t.Fatalf("expected story_pending with no story, got %+v", st)
	}

	g.story <- result[models.Story]{val: gravityStory()}
	waitFor(t, o, bothStarted(g))

	g.mu.Lock()
	if !strings.HasPrefix(g.voiceReq.FullStoryText, "The Falling Apple. Ravi sat under a tree.. ") {
		t.Errorf("unexpected narration text %q", g.voiceReq.FullStoryText)
	}
	if g.voiceReq.Language != "English" || g.voiceReq.NarratorVoice != "Male" || g.voiceReq.EmotionTone != "Curious" {
		t.Errorf("unexpected voice request %+v", g.voiceReq)
	}
	if !strings.Contains(g.imageReq.Prompt, "The Falling Apple") {
		t.Errorf("image prompt should include the title, got %q", g.imageReq.Prompt)
	}
	g.mu.Unlock()

	g.voice <- result[models.AudioAsset]{val: pcmAudio()}
	g.image <- result[models.ImageAsset]{val: pngImage()}

	st, err := o.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if st.Phase != PhaseSettled {
		t.Fatalf("expected settled, got %s", st.Phase)
	}
	if st.Story.Title != "The Falling Apple" || len(st.Story.Sections()) != 7 {
		t.Errorf("unexpected story %+v", st.Story)
	}
	if !st.AudioPlayable || st.Audio != AssetReady {
		t.Errorf("expected playable audio, got %s playable=%v", st.Audio, st.AudioPlayable)
	}
	if st.Image != AssetReady || st.ImageAsset.MimeType != "image/png" {
		t.Errorf("unexpected image %+v", st.ImageAsset)
	}
	if st.Banner != "" || !st.Errors.Empty() {
		t.Errorf("expected no errors, got %+v", st.Errors)
	}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	orders := map[string]func(g *gatedGenerator){
		"voice first": func(g *gatedGenerator) {
			g.voice <- result[models.AudioAsset]{val: pcmAudio()}
			g.image <- result[models.ImageAsset]{val: pngImage()}
		},
		"image first": func(g *gatedGenerator) {
			g.image <- result[models.ImageAsset]{val: pngImage()}
			g.voice <- result[models.AudioAsset]{val: pcmAudio()}
		},
	}
	for name, deliver := range orders {
		t.Run(name, func(t *testing.T) {
			g := newGatedGenerator()
			o := New(g)
			o.Submit(gravityRequest())
			g.story <- result[models.Story]{val: gravityStory()}
			waitFor(t, o, bothStarted(g))

			deliver(g)
			st, _ := o.Wait(context.Background())
			if st.Phase != PhaseSettled || st.AudioAsset == nil || st.ImageAsset == nil {
				t.Errorf("expected both assets, got %+v", st)
			}
		})
	}
}

func TestPartialFailure(t *testing.T) {
	tests := []struct {
		name        string
		voiceErr    error
		imageErr    error
		wantAudio   AssetStatus
		wantImage   AssetStatus
		wantMessage string
	}{
		{
			name:        "voice fails",
			voiceErr:    &apiclient.RemoteError{Operation: apiclient.OpVoice, StatusCode: 500, Message: "Failed to generate audio. Details: quota"},
			wantAudio:   AssetFailed,
			wantImage:   AssetReady,
			wantMessage: "Story generated, but failed to create audio: Failed to generate audio. Details: quota",
		},
		{
			name:        "image fails",
			imageErr:    errors.New("safety filter"),
			wantAudio:   AssetReady,
			wantImage:   AssetFailed,
			wantMessage: "Story generated, but failed to create image: safety filter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGatedGenerator()
			o := New(g)
			o.Submit(gravityRequest())
			g.story <- result[models.Story]{val: gravityStory()}
			waitFor(t, o, bothStarted(g))

			if tt.voiceErr != nil {
				g.voice <- result[models.AudioAsset]{err: tt.voiceErr}
			} else {
				g.voice <- result[models.AudioAsset]{val: pcmAudio()}
			}
			if tt.imageErr != nil {
				g.image <- result[models.ImageAsset]{err: tt.imageErr}
			} else {
				g.image <- result[models.ImageAsset]{val: pngImage()}
			}

			st, _ := o.Wait(context.Background())
			if st.Phase != PhaseSettled || st.Story == nil {
				t.Fatalf("story must stay visible, got %+v", st)
			}
			if st.Audio != tt.wantAudio || st.Image != tt.wantImage {
				t.Errorf("expected audio=%s image=%s, got %s %s", tt.wantAudio, tt.wantImage, st.Audio, st.Image)
			}
			if st.Banner != tt.wantMessage {
				t.Errorf("expected banner %q, got %q", tt.wantMessage, st.Banner)
			}
		})
	}
}

func TestBothAssetsFail(t *testing.T) {
	g := newGatedGenerator()
	o := New(g)
	o.Submit(gravityRequest())
	g.story <- result[models.Story]{val: gravityStory()}
	waitFor(t, o, bothStarted(g))

	g.image <- result[models.ImageAsset]{err: errors.New("image down")}
	g.voice <- result[models.AudioAsset]{err: errors.New("voice down")}

	st, _ := o.Wait(context.Background())
	want := "Story generated, but failed to create audio: voice down\nStory generated, but failed to create image: image down"
	if st.Banner != want {
		t.Errorf("expected both messages in fixed order, got %q", st.Banner)
	}
}

func TestNilAssetsAreFailures(t *testing.T) {
	g := newGatedGenerator()
	o := New(g)
	o.Submit(gravityRequest())
	g.story <- result[models.Story]{val: gravityStory()}
	waitFor(t, o, bothStarted(g))

	g.voice <- result[models.AudioAsset]{}
	g.image <- result[models.ImageAsset]{}

	st, _ := o.Wait(context.Background())
	if st.Audio != AssetFailed || st.Image != AssetFailed || st.AudioPlayable {
		t.Fatalf("expected both assets failed, got audio=%s image=%s", st.Audio, st.Image)
	}
	want := "Story generated, but failed to create audio: no audio returned\nStory generated, but failed to create image: no image returned"
	if st.Banner != want {
		t.Errorf("unexpected banner %q", st.Banner)
	}
	if st.Story == nil {
		t.Error("story should survive asset failures")
	}
}

func TestStoryFailureSkipsAssets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	g := newGatedGenerator()
	o := New(g, WithMetrics(m))

	o.Submit(gravityRequest())
	g.story <- result[models.Story]{err: errors.New("model overloaded")}

	st, _ := o.Wait(context.Background())
	if st.Phase != PhaseIdle || st.Story != nil {
		t.Fatalf("expected idle without story, got %+v", st)
	}
	if st.Banner != "Failed to generate story: model overloaded" {
		t.Errorf("unexpected banner %q", st.Banner)
	}
	time.Sleep(20 * time.Millisecond)
	if g.voiceCalls.Load() != 0 || g.imageCalls.Load() != 0 {
		t.Error("voice and image must not be requested after a story failure")
	}
	if got := testutil.ToFloat64(m.SessionsSettled.WithLabelValues("story_failed")); got != 1 {
		t.Errorf("expected story_failed metric 1, got %v", got)
	}
}

func TestIncompleteStoryIsAFailure(t *testing.T) {
	g := newGatedGenerator()
	o := New(g)
	o.Submit(gravityRequest())
	partial := gravityStory()
	partial.Conclusion = ""
	g.story <- result[models.Story]{val: partial}

	st, _ := o.Wait(context.Background())
	if st.Story != nil || st.Errors.Story == "" {
		t.Errorf("a partial story must never be shown, got %+v", st)
	}
}

func TestValidationMakesNoCalls(t *testing.T) {
	g := newGatedGenerator()
	o := New(g)

	req := gravityRequest()
	req.Topic = "   "
	_, err := o.Submit(req)
	var vErr *catalog.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "topic" {
		t.Fatalf("expected topic ValidationError, got %v", err)
	}
	if o.Snapshot().Phase != PhaseIdle {
		t.Error("state must not change on validation failure")
	}
	if g.storyCalls.Load() != 0 {
		t.Error("no network call expected")
	}
}

func TestTryAnotherSuppressesLateResults(t *testing.T) {
	t.Run("before story", func(t *testing.T) {
		g := newGatedGenerator()
		o := New(g)
		o.Submit(gravityRequest())
		waitFor(t, o, func(State) bool { return g.storyCalls.Load() == 1 })

		o.TryAnother()
		g.story <- result[models.Story]{val: gravityStory()}
		time.Sleep(20 * time.Millisecond)

		st := o.Snapshot()
		if st.Phase != PhaseIdle || st.Story != nil {
			t.Errorf("late story repopulated state: %+v", st)
		}
		if g.voiceCalls.Load() != 0 {
			t.Error("stale story must not start voice generation")
		}
	})

	t.Run("before assets", func(t *testing.T) {
		g := newGatedGenerator()
		o := New(g)
		o.Submit(gravityRequest())
		g.story <- result[models.Story]{val: gravityStory()}
		waitFor(t, o, bothStarted(g))

		o.TryAnother()
		g.voice <- result[models.AudioAsset]{val: pcmAudio()}
		g.image <- result[models.ImageAsset]{err: errors.New("late failure")}
		time.Sleep(20 * time.Millisecond)

		st := o.Snapshot()
		if st.Phase != PhaseIdle || st.AudioAsset != nil || st.Banner != "" {
			t.Errorf("late assets repopulated state: %+v", st)
		}
	})

	t.Run("new session ignores the old one", func(t *testing.T) {
		g := newGatedGenerator()
		o := New(g)
		first, _ := o.Submit(gravityRequest())
		waitFor(t, o, func(State) bool { return g.storyCalls.Load() == 1 })

		second, _ := o.Submit(gravityRequest())
		if second <= first {
			t.Fatalf("session tokens must increase, got %d then %d", first, second)
		}
		waitFor(t, o, func(State) bool { return g.storyCalls.Load() == 2 })

		// One story answers; whichever call takes it, only the current session may advance.
		g.story <- result[models.Story]{val: gravityStory()}
		g.story <- result[models.Story]{err: errors.New("old")}
		time.Sleep(20 * time.Millisecond)
		st := o.Snapshot()
		if st.Session != second {
			t.Errorf("expected session %d, got %d", second, st.Session)
		}
	})
}

func TestUndecodableAudioIsNotABannerError(t *testing.T) {
	g := newGatedGenerator()
	o := New(g)
	o.Submit(gravityRequest())
	g.story <- result[models.Story]{val: gravityStory()}
	waitFor(t, o, bothStarted(g))

	g.voice <- result[models.AudioAsset]{val: &models.AudioAsset{Base64Audio: "AAE"}}
	g.image <- result[models.ImageAsset]{val: pngImage()}

	st, _ := o.Wait(context.Background())
	if st.Audio != AssetReady || st.AudioPlayable {
		t.Errorf("expected ready but unplayable audio, got %s playable=%v", st.Audio, st.AudioPlayable)
	}
	if st.Banner != "" {
		t.Errorf("decode errors must not reach the banner, got %q", st.Banner)
	}
}

func TestTimeoutIsAFailure(t *testing.T) {
	g := newGatedGenerator()
	o := New(g, WithTimeout(20*time.Millisecond))
	o.Submit(gravityRequest())

	st, _ := o.Wait(context.Background())
	if st.Banner != "Failed to generate story: the request timed out" {
		t.Errorf("unexpected banner %q", st.Banner)
	}
}

type failingDispatcher struct{ err error }

func (d failingDispatcher) Submit(func()) error { return d.err }

func TestDispatchFailure(t *testing.T) {
	o := New(newGatedGenerator(), WithDispatcher(failingDispatcher{err: errors.New("pool overloaded")}))
	if _, err := o.Submit(gravityRequest()); err == nil {
		t.Fatal("expected dispatch error")
	}
	st := o.Snapshot()
	if st.Phase != PhaseIdle || !strings.Contains(st.Banner, "pool overloaded") {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestSubscribe(t *testing.T) {
	g := newGatedGenerator()
	o := New(g)

	var mu sync.Mutex
	var phases []Phase
	unsubscribe := o.Subscribe(func(st State) {
		mu.Lock()
		phases = append(phases, st.Phase)
		mu.Unlock()
	})

	o.Submit(gravityRequest())
	g.story <- result[models.Story]{val: gravityStory()}
	waitFor(t, o, bothStarted(g))
	g.voice <- result[models.AudioAsset]{val: pcmAudio()}
	g.image <- result[models.ImageAsset]{val: pngImage()}
	o.Wait(context.Background())
	unsubscribe()
	o.TryAnother()

	mu.Lock()
	defer mu.Unlock()
	want := []Phase{PhaseIdle, PhaseStoryPending, PhaseStoryReady, PhaseStoryReady, PhaseSettled}
	if len(phases) != len(want) {
		t.Fatalf("expected %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], phases[i])
		}
	}
}

func TestPoolDispatcher(t *testing.T) {
	pool, err := NewPool(4)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Release()

	g := newGatedGenerator()
	o := New(g, WithDispatcher(pool))
	o.Submit(gravityRequest())
	g.story <- result[models.Story]{val: gravityStory()}
	g.voice <- result[models.AudioAsset]{val: pcmAudio()}
	g.image <- result[models.ImageAsset]{val: pngImage()}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := o.Wait(ctx)
	if err != nil || st.Result() != "complete" {
		t.Errorf("expected complete session, got %+v (%v)", st, err)
	}
}
