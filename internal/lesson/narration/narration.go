// Package narration speaks lesson text and reports progress through callbacks.
//
// Callbacks are never invoked from inside Speak or CancelAll. A Speak call
// supersedes whatever was being spoken.
package narration

import (
	"context"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/yungbote/blackboard-backend/internal/lesson/prompts"
)

type Voice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Lang   string `json:"lang"`
	Gender string `json:"gender,omitempty"`
}

type Utterance struct {
	Text  string
	Voice Voice
	// 1.0 is normal speed.
	Rate float64
}

// Audio is synthesized speech the client can play alongside the progress events.
type Audio struct {
	URL      string        `json:"url"`
	MimeType string        `json:"mime_type"`
	Duration time.Duration `json:"duration,omitempty"`
}

type Callbacks struct {
	OnStart func(Audio)
	// OnProgress receives the byte offset just past the word being spoken.
	OnProgress func(charOffset int)
	OnEnd      func()
	OnError    func(error)
}

func (cb Callbacks) start(a Audio) {
	if cb.OnStart != nil {
		cb.OnStart(a)
	}
}

func (cb Callbacks) progress(off int) {
	if cb.OnProgress != nil {
		cb.OnProgress(off)
	}
}

func (cb Callbacks) end() {
	if cb.OnEnd != nil {
		cb.OnEnd()
	}
}

func (cb Callbacks) fail(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

type Service interface {
	Speak(ctx context.Context, u Utterance, cb Callbacks) error
	CancelAll()
	ListVoices(ctx context.Context) ([]Voice, error)
}

// VoicesFromCatalogue converts the persona catalogue's voice list.
func VoicesFromCatalogue(specs []prompts.VoiceSpec) []Voice {
	out := make([]Voice, 0, len(specs))
	for _, s := range specs {
		out = append(out, Voice{ID: s.ID, Name: s.Name, Lang: s.Lang, Gender: s.Gender})
	}
	return out
}

// WordEnds returns the byte offset just past each word of text.
func WordEnds(text string) []int {
	var ends []int
	inWord := false
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if inWord {
				ends = append(ends, i)
			}
			inWord = false
		} else {
			inWord = true
		}
		i += size
	}
	if inWord {
		ends = append(ends, len(text))
	}
	return ends
}
