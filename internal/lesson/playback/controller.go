// Package playback sequences a lesson plan on one board: it narrates each step,
// tracks how far narration has got, and advances through the erase transition.
package playback

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/markup"
	"github.com/yungbote/blackboard-backend/internal/lesson/narration"
	"github.com/yungbote/blackboard-backend/internal/lesson/subtitle"
	"github.com/yungbote/blackboard-backend/internal/observability"
	"github.com/yungbote/blackboard-backend/internal/platform/clock"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

const DefaultEraseDelay = 1500 * time.Millisecond

type Config struct {
	EraseDelay time.Duration
	// Narration speed passed to every utterance; 1.0 is normal.
	Rate float64
	// AutoPlay is the initial autoplay setting.
	AutoPlay bool
	// VoiceLocales lists the preferred narrator locales for a language, best first.
	VoiceLocales func(domain.Language) []string
}

type session struct {
	plan       *domain.LessonPlan
	index      int
	narrated   int
	phase      Phase
	autoPlay   bool
	generation uint64

	text       string
	chunks     []string
	chunkIndex int

	voices     []narration.Voice
	voice      *narration.Voice
	audio      *narration.Audio
	eraseTimer clock.Timer
	lastErr    error
}

// Controller owns the playback session of one board. Every command runs to
// completion under one lock; narration callbacks and the erase timer re-enter
// through the same lock and are dropped when their generation is stale.
type Controller struct {
	log      *logger.Logger
	narrator narration.Service
	clock    clock.Clock
	sink     EventSink
	cfg      Config

	mu sync.Mutex
	s  session
}

func NewController(log *logger.Logger, narrator narration.Service, clk clock.Clock, sink EventSink, cfg Config) *Controller {
	if cfg.EraseDelay <= 0 {
		cfg.EraseDelay = DefaultEraseDelay
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if clk == nil {
		clk = clock.Real()
	}
	if sink == nil {
		sink = discardSink{}
	}
	return &Controller{
		log:      log.With("service", "PlaybackController"),
		narrator: narrator,
		clock:    clk,
		sink:     sink,
		cfg:      cfg,
		s: session{
			phase:      PhaseIdle,
			autoPlay:   cfg.AutoPlay,
			chunkIndex: -1,
		},
	}
}

// Accept replaces whatever is on the board with plan. An empty plan leaves
// the board idle.
func (c *Controller) Accept(plan domain.LessonPlan) {
	voices, err := c.narrator.ListVoices(context.Background())
	if err != nil {
		c.log.Warn("list narration voices failed", "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidateLocked()
	c.s.voices = voices
	c.s.index = 0
	c.resetStepLocked()
	if plan.Empty() {
		c.s.plan = nil
		c.emitLocked(EventReset, nil)
		c.setPhaseLocked(PhaseIdle)
		return
	}
	p := plan
	c.s.plan = &p
	c.emitLocked(EventReset, nil)
	if c.s.autoPlay {
		c.startNarrationLocked(0)
		return
	}
	c.loadStepLocked(0)
	c.setPhaseLocked(PhasePaused)
}

// Replay narrates the current step again from the start.
func (c *Controller) Replay() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s.plan == nil {
		return ErrNoLesson
	}
	c.startNarrationLocked(c.s.index)
	return nil
}

// ToggleAutoplay flips autoplay and returns the new value. Turning it off
// mid-step pauses; turning it on while paused resumes the current step.
func (c *Controller) ToggleAutoplay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toggleLocked()
	return c.s.autoPlay
}

func (c *Controller) SetAutoplay(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s.autoPlay != on {
		c.toggleLocked()
	}
}

func (c *Controller) toggleLocked() {
	c.s.autoPlay = !c.s.autoPlay
	switch c.s.phase {
	case PhasePlaying, PhaseErasing:
		if !c.s.autoPlay {
			c.invalidateLocked()
			c.setPhaseLocked(PhasePaused)
		}
	case PhasePaused:
		if c.s.autoPlay && c.s.plan != nil {
			c.startNarrationLocked(c.s.index)
		}
	}
}

// Clear discards the plan and returns the board to idle.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
	c.s.plan = nil
	c.s.index = 0
	c.resetStepLocked()
	c.emitLocked(EventReset, nil)
	c.setPhaseLocked(PhaseIdle)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Idle reports whether the board has nothing playing or pending.
func (c *Controller) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.phase == PhaseIdle || c.s.phase == PhaseCompleted || c.s.phase == PhasePaused
}

// invalidateLocked makes every outstanding callback and timer stale.
func (c *Controller) invalidateLocked() {
	c.s.generation++
	c.narrator.CancelAll()
	if c.s.eraseTimer != nil {
		c.s.eraseTimer.Stop()
		c.s.eraseTimer = nil
	}
}

func (c *Controller) resetStepLocked() {
	c.s.narrated = 0
	c.s.text = ""
	c.s.chunks = nil
	c.s.chunkIndex = -1
	c.s.audio = nil
	c.s.voice = nil
	c.s.lastErr = nil
}

func (c *Controller) loadStepLocked(i int) {
	c.s.index = i
	c.resetStepLocked()
	step := c.s.plan.Steps[i]
	c.s.text = markup.Strip(step.Spoken)
	c.s.chunks = subtitle.Segment(c.s.text)
	c.s.chunkIndex = subtitle.ActiveIndex(c.s.chunks, 0)
	if v, ok := narration.SelectVoice(c.s.voices, c.voiceLocales()); ok {
		c.s.voice = &v
	}
}

func (c *Controller) voiceLocales() []string {
	if c.cfg.VoiceLocales == nil || c.s.plan == nil {
		return nil
	}
	return c.cfg.VoiceLocales(c.s.plan.Language)
}

func (c *Controller) startNarrationLocked(i int) {
	c.invalidateLocked()
	gen := c.s.generation
	c.loadStepLocked(i)
	c.setPhaseLocked(PhasePlaying)

	u := narration.Utterance{Text: c.s.text, Rate: c.cfg.Rate}
	if c.s.voice != nil {
		u.Voice = *c.s.voice
	}
	if err := c.narrator.Speak(context.Background(), u, c.callbacks(gen)); err != nil {
		c.failLocked(err)
	}
}

func (c *Controller) callbacks(gen uint64) narration.Callbacks {
	return narration.Callbacks{
		OnStart:    func(a narration.Audio) { c.onStart(gen, a) },
		OnProgress: func(off int) { c.onProgress(gen, off) },
		OnEnd:      func() { c.onEnd(gen) },
		OnError:    func(err error) { c.onError(gen, err) },
	}
}

func (c *Controller) staleLocked(gen uint64, what string) bool {
	if gen == c.s.generation {
		return false
	}
	observability.Current().IncStaleCallback()
	c.log.Debug("stale narration callback dropped",
		"callback", what,
		"callback_generation", gen,
		"generation", c.s.generation,
	)
	return true
}

func (c *Controller) onStart(gen uint64, a narration.Audio) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen, "start") || c.s.phase != PhasePlaying {
		return
	}
	c.s.audio = &a
	c.emitLocked(EventNarrationStarted, nil)
}

func (c *Controller) onProgress(gen uint64, off int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen, "progress") || c.s.phase != PhasePlaying {
		return
	}
	c.advanceLocked(off)
}

func (c *Controller) advanceLocked(off int) {
	if off < 0 {
		off = 0
	}
	if off > len(c.s.text) {
		off = len(c.s.text)
	}
	if off <= c.s.narrated {
		return
	}
	c.s.narrated = off
	c.emitLocked(EventProgress, nil)
	if idx := subtitle.ActiveIndex(c.s.chunks, c.s.narrated); idx != c.s.chunkIndex {
		c.s.chunkIndex = idx
		c.emitLocked(EventSubtitle, nil)
	}
}

func (c *Controller) onEnd(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen, "end") || c.s.phase != PhasePlaying {
		return
	}
	c.advanceLocked(len(c.s.text))
	if c.s.index >= len(c.s.plan.Steps)-1 {
		c.setPhaseLocked(PhaseCompleted)
		return
	}
	c.setPhaseLocked(PhaseErasing)
	c.s.eraseTimer = c.clock.AfterFunc(c.cfg.EraseDelay, func() { c.onErased(gen) })
}

func (c *Controller) onErased(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen, "erase") || c.s.phase != PhaseErasing {
		return
	}
	c.s.eraseTimer = nil
	c.startNarrationLocked(c.s.index + 1)
}

func (c *Controller) onError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen, "error") || c.s.phase != PhasePlaying {
		return
	}
	c.failLocked(err)
}

// failLocked stops at the current step; narration is not retried.
func (c *Controller) failLocked(err error) {
	observability.Current().IncNarrationFailure("narrator")
	c.log.Warn("narration failed; pausing at current step",
		"step_index", c.s.index,
		"narrated", c.s.narrated,
		"error", err,
	)
	c.invalidateLocked()
	c.s.lastErr = err
	// Autoplay goes off so the next toggle resumes narration.
	c.s.autoPlay = false
	c.setPhaseLocked(PhasePaused)
	c.emitLocked(EventNarrationFailed, err)
}

func (c *Controller) setPhaseLocked(p Phase) {
	c.s.phase = p
	observability.Current().IncPlaybackTransition(string(p))
	c.emitLocked(EventPhase, nil)
}

func (c *Controller) emitLocked(kind EventKind, err error) {
	e := Event{Kind: kind, Err: err}
	switch kind {
	case EventProgress, EventSubtitle:
		p := c.progressLocked()
		e.Progress = &p
	default:
		e.Snapshot = c.snapshotLocked()
	}
	c.sink.Publish(e)
}

func (c *Controller) progressLocked() Progress {
	p := Progress{
		Generation:        c.s.generation,
		CurrentIndex:      c.s.index,
		NarratedCharCount: c.s.narrated,
		TextLength:        len(c.s.text),
		Subtitle:          strings.TrimSpace(subtitle.ActiveChunk(c.s.chunks, c.s.narrated)),
	}
	if c.s.plan != nil {
		p.LessonID = c.s.plan.ID
	}
	return p
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Generation:        c.s.generation,
		Phase:             c.s.phase,
		CurrentIndex:      c.s.index,
		NextIndex:         -1,
		NarratedCharCount: c.s.narrated,
		TextLength:        len(c.s.text),
		AutoPlay:          c.s.autoPlay,
		Subtitle:          strings.TrimSpace(subtitle.ActiveChunk(c.s.chunks, c.s.narrated)),
		Audio:             c.s.audio,
		Voice:             c.s.voice,
	}
	if c.s.lastErr != nil {
		s.LastError = c.s.lastErr.Error()
	}
	if c.s.plan == nil {
		return s
	}
	s.LessonID = c.s.plan.ID
	s.Language = c.s.plan.Language
	s.Fallback = c.s.plan.Fallback
	s.StepCount = len(c.s.plan.Steps)
	if c.s.phase == PhaseErasing {
		s.NextIndex = c.s.index + 1
	}
	if c.s.index < len(c.s.plan.Steps) {
		step := c.s.plan.Steps[c.s.index]
		s.Step = &step
		s.IsImage = step.VisualType == domain.VisualImage || markup.IsImageReference(step.Content)
		s.BoardVisible = c.s.phase != PhaseErasing
	}
	return s
}
