package playback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/narration"
	"github.com/yungbote/blackboard-backend/internal/lesson/narration/narrationtest"
	"github.com/yungbote/blackboard-backend/internal/lesson/pipeline"
	"github.com/yungbote/blackboard-backend/internal/platform/clock"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

func (l *eventLog) count(kind EventKind) int {
	n := 0
	for _, k := range l.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type harness struct {
	ctrl   *Controller
	narr   *narrationtest.Fake
	clock  *clock.Fake
	events *eventLog
}

func newHarness(t *testing.T, autoPlay bool) *harness {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	h := &harness{
		narr: narrationtest.New(
			narration.Voice{ID: "alloy", Name: "Alloy", Lang: "en-US"},
			narration.Voice{ID: "coral", Name: "Coral", Lang: "hi-IN", Gender: "female"},
		),
		clock:  clock.NewFake(time.Unix(0, 0)),
		events: &eventLog{},
	}
	h.ctrl = NewController(log, h.narr, h.clock, h.events, Config{
		AutoPlay: autoPlay,
		VoiceLocales: func(l domain.Language) []string {
			if l == domain.LanguageHindi {
				return []string{"hi-IN", "en-IN"}
			}
			return []string{"en-IN"}
		},
	})
	return h
}

func plan(spoken ...string) domain.LessonPlan {
	p := domain.LessonPlan{Language: domain.LanguageEnglish}
	for _, s := range spoken {
		p.Steps = append(p.Steps, domain.LessonStep{Content: "<h1>x</h1>", Spoken: s, VisualType: domain.VisualMarkup})
	}
	return p
}

func expectPhase(t *testing.T, c *Controller, want Phase) Snapshot {
	t.Helper()
	s := c.Snapshot()
	if s.Phase != want {
		t.Fatalf("phase: want=%s got=%s", want, s.Phase)
	}
	return s
}

func TestScenarioTwoStepLesson(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("Hello there. Bye now.", "Second step."))

	s := expectPhase(t, h.ctrl, PhasePlaying)
	if s.CurrentIndex != 0 || s.NarratedCharCount != 0 || s.TextLength != 21 {
		t.Fatalf("start: got=%+v", s)
	}
	step0 := h.narr.Last()
	if step0.Utterance.Text != "Hello there. Bye now." {
		t.Fatalf("utterance: got=%q", step0.Utterance.Text)
	}

	step0.Progress(5)
	if got := h.ctrl.Snapshot(); got.NarratedCharCount != 5 || got.Subtitle != "Hello there." {
		t.Fatalf("mid-step: narrated=%d subtitle=%q", got.NarratedCharCount, got.Subtitle)
	}
	step0.Progress(16)
	if got := h.ctrl.Snapshot(); got.Subtitle != "Bye now." {
		t.Fatalf("second chunk: subtitle=%q", got.Subtitle)
	}

	step0.End()
	s = expectPhase(t, h.ctrl, PhaseErasing)
	if s.NarratedCharCount != 21 || s.CurrentIndex != 0 || s.NextIndex != 1 || s.BoardVisible {
		t.Fatalf("erasing: got=%+v", s)
	}

	h.clock.Advance(DefaultEraseDelay - time.Millisecond)
	expectPhase(t, h.ctrl, PhaseErasing)
	h.clock.Advance(time.Millisecond)
	s = expectPhase(t, h.ctrl, PhasePlaying)
	if s.CurrentIndex != 1 || s.NarratedCharCount != 0 || !s.BoardVisible {
		t.Fatalf("step 1: got=%+v", s)
	}

	h.narr.Last().End()
	s = expectPhase(t, h.ctrl, PhaseCompleted)
	if s.CurrentIndex != 1 || s.NarratedCharCount != len("Second step.") {
		t.Fatalf("completed: got=%+v", s)
	}

	calls := len(h.narr.Calls())
	h.clock.Advance(10 * time.Second)
	expectPhase(t, h.ctrl, PhaseCompleted)
	if len(h.narr.Calls()) != calls {
		t.Fatalf("completed session started narration")
	}
}

func TestProgressNeverRegressesAndIsClamped(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("abcdef"))
	call := h.narr.Last()

	call.Progress(4)
	call.Progress(2)
	if got := h.ctrl.Snapshot().NarratedCharCount; got != 4 {
		t.Fatalf("regressed: want=4 got=%d", got)
	}
	call.Progress(99)
	if got := h.ctrl.Snapshot().NarratedCharCount; got != 6 {
		t.Fatalf("clamp: want=6 got=%d", got)
	}
	if n := h.events.count(EventProgress); n != 2 {
		t.Fatalf("progress events: want=2 got=%d", n)
	}
}

func TestStaleCallbacksAreIgnored(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("first lesson here", "two"))
	old := h.narr.Last()

	h.ctrl.Accept(plan("second lesson", "b"))
	before := h.ctrl.Snapshot()
	eventsBefore := len(h.events.kinds())

	old.Progress(5)
	old.End()
	old.Fail(errors.New("late"))

	after := h.ctrl.Snapshot()
	if after.Generation != before.Generation || after.Phase != before.Phase ||
		after.NarratedCharCount != before.NarratedCharCount || after.CurrentIndex != before.CurrentIndex ||
		after.LastError != before.LastError {
		t.Fatalf("stale callback changed state:\nbefore=%+v\nafter=%+v", before, after)
	}
	if len(h.events.kinds()) != eventsBefore {
		t.Fatalf("stale callback emitted events")
	}
}

func TestStaleEraseTimerIsIgnored(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("one", "two"))
	h.narr.Last().End()
	expectPhase(t, h.ctrl, PhaseErasing)

	h.ctrl.Clear()
	h.clock.Advance(DefaultEraseDelay)
	s := expectPhase(t, h.ctrl, PhaseIdle)
	if s.Step != nil || s.StepCount != 0 {
		t.Fatalf("cleared: got=%+v", s)
	}
}

func TestEmptyPlanStaysIdle(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(domain.LessonPlan{})
	s := expectPhase(t, h.ctrl, PhaseIdle)
	if s.Step != nil || s.StepCount != 0 || s.Subtitle != "" {
		t.Fatalf("empty: got=%+v", s)
	}
	if len(h.narr.Calls()) != 0 {
		t.Fatalf("narration started for empty plan")
	}
	if err := h.ctrl.Replay(); !errors.Is(err, ErrNoLesson) {
		t.Fatalf("replay: want=%v got=%v", ErrNoLesson, err)
	}
}

type fakeImages struct{}

func (fakeImages) GenerateImage(context.Context, pipeline.ImageRequest) (pipeline.Image, error) {
	return pipeline.Image{}, nil
}

func TestMalformedResponseFallbackPlays(t *testing.T) {
	log, _ := logger.New("test")
	p := pipeline.New(log, fakeImages{}, nil, nil, pipeline.Config{})
	fallback, err := p.ResolveResponse(context.Background(), "<html>oops</html>", domain.LanguageEnglish)
	if err != nil {
		t.Fatalf("ResolveResponse: %v", err)
	}

	h := newHarness(t, true)
	h.ctrl.Accept(fallback)
	s := expectPhase(t, h.ctrl, PhasePlaying)
	if s.StepCount != 1 || !s.Fallback {
		t.Fatalf("fallback: got=%+v", s)
	}
	h.narr.Last().End()
	expectPhase(t, h.ctrl, PhaseCompleted)
}

func TestAcceptWithoutAutoplayWaitsPaused(t *testing.T) {
	h := newHarness(t, false)
	h.ctrl.Accept(plan("Wait for me.", "two"))
	s := expectPhase(t, h.ctrl, PhasePaused)
	if s.CurrentIndex != 0 || s.Step == nil || s.TextLength != len("Wait for me.") {
		t.Fatalf("paused: got=%+v", s)
	}
	if len(h.narr.Calls()) != 0 {
		t.Fatalf("narration started without autoplay")
	}

	if on := h.ctrl.ToggleAutoplay(); !on {
		t.Fatalf("toggle: want on")
	}
	expectPhase(t, h.ctrl, PhasePlaying)
	if len(h.narr.Calls()) != 1 {
		t.Fatalf("toggle on did not resume narration")
	}
}

func TestToggleOffPausesAndRetainsProgress(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("one two three", "next"))
	call := h.narr.Last()
	call.Progress(7)
	cancels := h.narr.Cancels()

	if on := h.ctrl.ToggleAutoplay(); on {
		t.Fatalf("toggle: want off")
	}
	s := expectPhase(t, h.ctrl, PhasePaused)
	if s.NarratedCharCount != 7 || s.CurrentIndex != 0 {
		t.Fatalf("paused: got=%+v", s)
	}
	if h.narr.Cancels() <= cancels {
		t.Fatalf("toggle off did not cancel narration")
	}
	call.End()
	expectPhase(t, h.ctrl, PhasePaused)
}

func TestToggleOffWhileErasingStopsAdvance(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("one", "two"))
	h.narr.Last().End()
	h.ctrl.ToggleAutoplay()
	h.clock.Advance(DefaultEraseDelay * 2)
	s := expectPhase(t, h.ctrl, PhasePaused)
	if s.CurrentIndex != 0 || len(h.narr.Calls()) != 1 {
		t.Fatalf("advanced while paused: got=%+v calls=%d", s, len(h.narr.Calls()))
	}
}

func TestReplayRestartsCurrentStep(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("one two", "next"))
	first := h.narr.Last()
	first.Progress(3)

	if err := h.ctrl.Replay(); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	s := expectPhase(t, h.ctrl, PhasePlaying)
	if s.CurrentIndex != 0 || s.NarratedCharCount != 0 {
		t.Fatalf("replay: got=%+v", s)
	}
	if len(h.narr.Calls()) != 2 {
		t.Fatalf("calls: want=2 got=%d", len(h.narr.Calls()))
	}
	first.End()
	expectPhase(t, h.ctrl, PhasePlaying)

	h.narr.Last().End()
	expectPhase(t, h.ctrl, PhaseErasing)
	h.clock.Advance(DefaultEraseDelay)
	h.narr.Last().End()
	expectPhase(t, h.ctrl, PhaseCompleted)
	if err := h.ctrl.Replay(); err != nil {
		t.Fatalf("Replay after completion: %v", err)
	}
	if s := expectPhase(t, h.ctrl, PhasePlaying); s.CurrentIndex != 1 {
		t.Fatalf("replay index: got=%d", s.CurrentIndex)
	}
}

func TestNarrationErrorPausesWithoutAdvancing(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("one two", "next"))
	call := h.narr.Last()
	call.Progress(3)
	call.Fail(errors.New("synth down"))

	s := expectPhase(t, h.ctrl, PhasePaused)
	if s.NarratedCharCount != 3 || s.CurrentIndex != 0 || s.LastError != "synth down" {
		t.Fatalf("after error: got=%+v", s)
	}
	if h.events.count(EventNarrationFailed) != 1 {
		t.Fatalf("narration_failed events: want=1 got=%d", h.events.count(EventNarrationFailed))
	}
	h.clock.Advance(time.Minute)
	if len(h.narr.Calls()) != 1 {
		t.Fatalf("narration retried")
	}
}

func TestToggleAfterNarrationErrorResumes(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("one two", "next"))
	h.narr.Last().Fail(errors.New("synth down"))

	if s := expectPhase(t, h.ctrl, PhasePaused); s.AutoPlay {
		t.Fatalf("autoplay after error: want=false got=%v", s.AutoPlay)
	}
	if on := h.ctrl.ToggleAutoplay(); !on {
		t.Fatalf("toggle: want=true got=%v", on)
	}
	expectPhase(t, h.ctrl, PhasePlaying)
	calls := h.narr.Calls()
	if len(calls) != 2 || calls[1].Utterance.Text != "one two" {
		t.Fatalf("resumed narration: got=%d calls", len(calls))
	}
}

func TestSpeakErrorIsTreatedAsNarrationError(t *testing.T) {
	h := newHarness(t, true)
	h.narr.SpeakErr = errors.New("no audio device")
	h.ctrl.Accept(plan("one"))
	s := expectPhase(t, h.ctrl, PhasePaused)
	if s.LastError == "" {
		t.Fatalf("last error not recorded")
	}
}

func TestMarkupIsStrippedFromNarration(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("<b>Leaf</b> makes food."))
	if got := h.narr.Last().Utterance.Text; got != "Leaf makes food." {
		t.Fatalf("utterance: got=%q", got)
	}
	if got := h.ctrl.Snapshot().TextLength; got != len("Leaf makes food.") {
		t.Fatalf("text length: got=%d", got)
	}
}

func TestVoiceFollowsPlanLanguage(t *testing.T) {
	h := newHarness(t, true)
	p := plan("Namaste")
	p.Language = domain.LanguageHindi
	h.ctrl.Accept(p)
	if got := h.narr.Last().Utterance.Voice.ID; got != "coral" {
		t.Fatalf("voice: want=coral got=%s", got)
	}
}

func TestNarrationStartedCarriesAudio(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("one"))
	h.narr.Last().Start(narration.Audio{URL: "https://cdn/a.mp3", MimeType: "audio/mpeg"})
	s := h.ctrl.Snapshot()
	if s.Audio == nil || s.Audio.URL != "https://cdn/a.mp3" {
		t.Fatalf("audio: got=%+v", s.Audio)
	}
	if h.events.count(EventNarrationStarted) != 1 {
		t.Fatalf("narration_started events: want=1")
	}
}

func TestSubtitleEventsOnlyOnChunkChange(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("Hello there. Bye now."))
	call := h.narr.Last()
	call.Progress(2)
	call.Progress(5)
	call.Progress(14)
	if n := h.events.count(EventSubtitle); n != 1 {
		t.Fatalf("subtitle events: want=1 got=%d", n)
	}
}

func TestAcceptEmitsResetAndCancels(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("one"))
	kinds := h.events.kinds()
	if len(kinds) == 0 || kinds[0] != EventReset {
		t.Fatalf("first event: want=reset got=%v", kinds)
	}
	if h.narr.Cancels() == 0 {
		t.Fatalf("accept did not cancel narration")
	}
}

func TestCompletedOnlyFlipsAutoplay(t *testing.T) {
	h := newHarness(t, true)
	h.ctrl.Accept(plan("one"))
	h.narr.Last().End()
	expectPhase(t, h.ctrl, PhaseCompleted)
	h.ctrl.ToggleAutoplay()
	h.ctrl.ToggleAutoplay()
	expectPhase(t, h.ctrl, PhaseCompleted)
	if len(h.narr.Calls()) != 1 {
		t.Fatalf("toggle on completed started narration")
	}
}

func TestPacedNarratorDrivesLesson(t *testing.T) {
	log, _ := logger.New("test")
	clk := clock.NewFake(time.Unix(0, 0))
	narr := narration.NewPaced(log, clk, nil, nil, narration.PacedConfig{WordsPerSecond: 1})
	ctrl := NewController(log, narr, clk, nil, Config{AutoPlay: true})

	ctrl.Accept(plan("Hello there.", "Bye."))
	clk.Advance(time.Second)
	if got := ctrl.Snapshot().NarratedCharCount; got != 5 {
		t.Fatalf("after 1s: want=5 got=%d", got)
	}
	clk.Advance(2 * time.Second)
	expectPhase(t, ctrl, PhaseErasing)
	clk.Advance(DefaultEraseDelay)
	expectPhase(t, ctrl, PhasePlaying)
	clk.Advance(2 * time.Second)
	expectPhase(t, ctrl, PhaseCompleted)
}

func TestProgressEventsLeaveOutStepAndAudio(t *testing.T) {
	h := newHarness(t, true)
	image := "data:image/png;base64," + strings.Repeat("A", 64<<10)
	h.ctrl.Accept(domain.LessonPlan{Steps: []domain.LessonStep{
		{Content: image, Spoken: "Look here. Then there.", VisualType: domain.VisualImage},
	}})
	call := h.narr.Last()
	call.Start(narration.Audio{URL: "data:audio/wav;base64,UklGRg==", MimeType: "audio/wav"})
	call.Progress(4)
	call.Progress(12)

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	progress := 0
	for _, e := range h.events.events {
		switch e.Kind {
		case EventProgress, EventSubtitle:
			progress++
			if e.Progress == nil {
				t.Fatalf("%s: want progress payload", e.Kind)
			}
			if e.Snapshot.Step != nil || e.Snapshot.Audio != nil {
				t.Fatalf("%s: step and audio should be left out", e.Kind)
			}
		case EventNarrationStarted:
			if e.Snapshot.Step == nil || e.Snapshot.Step.Content != image || e.Snapshot.Audio == nil {
				t.Fatalf("narration_started: want full snapshot got=%+v", e.Snapshot)
			}
		}
	}
	if progress != 3 {
		t.Fatalf("progress+subtitle events: want=3 got=%d", progress)
	}
	last := h.events.events[len(h.events.events)-1]
	if last.Kind != EventSubtitle || last.Progress.NarratedCharCount != 12 || last.Progress.Subtitle != "Then there." {
		t.Fatalf("last: got=%s %+v", last.Kind, last.Progress)
	}
}
