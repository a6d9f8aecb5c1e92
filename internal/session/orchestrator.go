// Package session sequences one story generation: the story first, then narration
// and illustration as two independent tasks whose results merge into a single State.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/feeled/internal/audio"
	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/metrics"
	"github.com/snappy-loop/feeled/internal/models"
)

var (
	errEmptyVoice = errors.New("no audio returned")
	errEmptyImage = errors.New("no image returned")
)

// DefaultTimeout bounds each remote call. A timeout is reported like any other failure.
const DefaultTimeout = 45 * time.Second

// Generator is the remote side of a session. The in-process service, the HTTP
// client and the gRPC client all implement it.
type Generator interface {
	GenerateStory(ctx context.Context, req models.StoryRequest) (*models.Story, error)
	GenerateVoice(ctx context.Context, req models.VoiceRequest) (*models.AudioAsset, error)
	GenerateImage(ctx context.Context, req models.ImageRequest) (*models.ImageAsset, error)
}

// Validator rejects a request before any network call. *catalog.Catalog implements it.
type Validator interface {
	Validate(req models.StoryRequest) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithValidator replaces the embedded option catalog.
func WithValidator(v Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithDispatcher runs tasks on d instead of bare goroutines.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMetrics records settled sessions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator owns one session at a time. Every result carries the token of the
// session that launched it and is dropped if the token is no longer current, so
// TryAnother never has to cancel in-flight calls.
type Orchestrator struct {
	gen        Generator
	validator  Validator
	dispatcher Dispatcher
	timeout    time.Duration
	metrics    *metrics.Metrics

	mu      sync.Mutex
	token   uint64
	state   State
	changed chan struct{} // closed and replaced on every transition

	subs   map[int]func(State)
	nextID int
}

// New creates an idle orchestrator.
func New(gen Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:        gen,
		dispatcher: goDispatcher{},
		timeout:    DefaultTimeout,
		state:      State{Phase: PhaseIdle},
		changed:    make(chan struct{}),
		subs:       make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.validator == nil {
		o.validator = catalog.Default()
	}
	return o
}

// Submit validates req and starts a new session, discarding the previous one.
// A validation error leaves the current state untouched.
func (o *Orchestrator) Submit(req models.StoryRequest) (uint64, error) {
	if err := o.validator.Validate(req); err != nil {
		return 0, err
	}

	o.mu.Lock()
	o.token++
	token := o.token
	o.state = State{
		Session: token,
		Phase:   PhaseStoryPending,
		Request: &req,
	}
	o.publishLocked()
	o.mu.Unlock()

	log.Info().
		Uint64("session", token).
		Str("language", req.Language).
		Str("std", req.Std).
		Str("emotion_tone", req.EmotionTone).
		Msg("Story session started")

	if err := o.dispatcher.Submit(func() { o.runStory(token, req) }); err != nil {
		o.finishStory(token, nil, fmt.Errorf("schedule story: %w", err))
		return token, err
	}
	return token, nil
}

// TryAnother abandons the current session. Late results for it are ignored.
func (o *Orchestrator) TryAnother() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.token++
	o.state = State{Session: o.token, Phase: PhaseIdle}
	o.publishLocked()
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe calls fn with the current state and after every transition until the
// returned func is called. fn runs with the orchestrator locked: it must not block
// or call back into the orchestrator.
func (o *Orchestrator) Subscribe(fn func(State)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	fn(o.state)
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

// Wait blocks until the current session stops being busy or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) (State, error) {
	for {
		o.mu.Lock()
		st, ch := o.state, o.changed
		o.mu.Unlock()
		if !st.Busy() {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

func (o *Orchestrator) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}

func (o *Orchestrator) runStory(token uint64, req models.StoryRequest) {
	ctx, cancel := o.callContext()
	defer cancel()

	story, err := o.gen.GenerateStory(ctx, req)
	if err == nil {
		err = story.Validate()
	}
	if !o.finishStory(token, story, err) {
		return
	}

	voiceReq := models.VoiceRequest{
		FullStoryText: story.FullText(),
		Language:      req.Language,
		NarratorVoice: req.NarratorVoice,
		EmotionTone:   req.EmotionTone,
	}
	if err := o.dispatcher.Submit(func() { o.runVoice(token, voiceReq) }); err != nil {
		o.finishVoice(token, nil, fmt.Errorf("schedule voice: %w", err))
	}

	imageReq := models.ImageRequest{Prompt: story.ImagePrompt()}
	if err := o.dispatcher.Submit(func() { o.runImage(token, imageReq) }); err != nil {
		o.finishImage(token, nil, fmt.Errorf("schedule image: %w", err))
	}
}

// finishStory applies a story result and reports whether voice and image should start.
func (o *Orchestrator) finishStory(token uint64, story *models.Story, err error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.token {
		log.Debug().Uint64("session", token).Msg("Dropping stale story result")
		return false
	}
	if err != nil {
		log.Error().Err(err).Uint64("session", token).Msg("Story generation failed")
		o.state.Phase = PhaseIdle
		o.state.Errors.Story = "Failed to generate story: " + message(err)
		o.state.Banner = o.state.Errors.Banner()
		o.metrics.SessionSettled(o.state.Result())
		o.publishLocked()
		return false
	}
	o.state.Phase = PhaseStoryReady
	o.state.Story = story
	o.state.Audio = AssetPending
	o.state.Image = AssetPending
	o.publishLocked()
	return true
}

func (o *Orchestrator) runVoice(token uint64, req models.VoiceRequest) {
	ctx, cancel := o.callContext()
	defer cancel()
	asset, err := o.gen.GenerateVoice(ctx, req)
	o.finishVoice(token, asset, err)
}

func (o *Orchestrator) finishVoice(token uint64, asset *models.AudioAsset, err error) {
	if err == nil && asset == nil {
		err = errEmptyVoice
	}
	// Decode outside the lock; only playability depends on it.
	var buf *audio.Buffer
	var decodeErr error
	if err == nil {
		buf, decodeErr = audio.DecodeBase64PCM(asset.Base64Audio)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.token {
		log.Debug().Uint64("session", token).Msg("Dropping stale voice result")
		return
	}
	if err != nil {
		log.Error().Err(err).Uint64("session", token).Msg("Voice generation failed")
		o.state.Audio = AssetFailed
		o.state.Errors.Voice = "Story generated, but failed to create audio: " + message(err)
	} else {
		o.state.Audio = AssetReady
		o.state.AudioAsset = asset
		if decodeErr != nil {
			log.Warn().Err(decodeErr).Uint64("session", token).Msg("Narration audio is not playable")
		} else {
			o.state.AudioPlayable = true
			o.state.AudioSeconds = buf.Duration().Seconds()
		}
	}
	o.settleLocked()
}

func (o *Orchestrator) runImage(token uint64, req models.ImageRequest) {
	ctx, cancel := o.callContext()
	defer cancel()
	asset, err := o.gen.GenerateImage(ctx, req)
	o.finishImage(token, asset, err)
}

func (o *Orchestrator) finishImage(token uint64, asset *models.ImageAsset, err error) {
	if err == nil && asset == nil {
		err = errEmptyImage
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.token {
		log.Debug().Uint64("session", token).Msg("Dropping stale image result")
		return
	}
	if err != nil {
		log.Error().Err(err).Uint64("session", token).Msg("Image generation failed")
		o.state.Image = AssetFailed
		o.state.Errors.Image = "Story generated, but failed to create image: " + message(err)
	} else {
		o.state.Image = AssetReady
		o.state.ImageAsset = asset
	}
	o.settleLocked()
}

func (o *Orchestrator) settleLocked() {
	o.state.Banner = o.state.Errors.Banner()
	if o.state.Audio != AssetPending && o.state.Image != AssetPending {
		o.state.Phase = PhaseSettled
		o.metrics.SessionSettled(o.state.Result())
		log.Info().
			Uint64("session", o.state.Session).
			Str("audio", string(o.state.Audio)).
			Str("image", string(o.state.Image)).
			Msg("Story session settled")
	}
	o.publishLocked()
}

func (o *Orchestrator) publishLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
	for _, fn := range o.subs {
		fn(o.state)
	}
}

// message is the user-facing text of a failed call.
func message(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "the request timed out"
	}
	return err.Error()
}
