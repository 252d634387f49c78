// Package narrationtest provides a narration.Service whose callbacks are fired by the test.
package narrationtest

import (
	"context"
	"sync"

	"github.com/yungbote/blackboard-backend/internal/lesson/narration"
)

type Call struct {
	Utterance narration.Utterance
	Callbacks narration.Callbacks
}

type Fake struct {
	mu       sync.Mutex
	calls    []Call
	cancels  int
	voices   []narration.Voice
	SpeakErr error
}

func New(voices ...narration.Voice) *Fake {
	return &Fake{voices: voices}
}

func (f *Fake) Speak(ctx context.Context, u narration.Utterance, cb narration.Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SpeakErr != nil {
		return f.SpeakErr
	}
	f.calls = append(f.calls, Call{Utterance: u, Callbacks: cb})
	return nil
}

func (f *Fake) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *Fake) ListVoices(ctx context.Context) ([]narration.Voice, error) {
	return f.voices, nil
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

// Last returns the most recent Speak call. It panics if there was none.
func (f *Fake) Last() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (c Call) Progress(off int) {
	if c.Callbacks.OnProgress != nil {
		c.Callbacks.OnProgress(off)
	}
}

func (c Call) End() {
	if c.Callbacks.OnEnd != nil {
		c.Callbacks.OnEnd()
	}
}

func (c Call) Fail(err error) {
	if c.Callbacks.OnError != nil {
		c.Callbacks.OnError(err)
	}
}

func (c Call) Start(a narration.Audio) {
	if c.Callbacks.OnStart != nil {
		c.Callbacks.OnStart(a)
	}
}
