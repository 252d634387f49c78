package playback

import (
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/narration"
)

var ErrNoLesson = errors.New("no lesson loaded")

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePlaying   Phase = "playing"
	PhaseErasing   Phase = "erasing"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
)

type EventKind string

const (
	// EventReset tells the presentation layer to drop transforms and tooltips.
	EventReset            EventKind = "reset"
	EventPhase            EventKind = "phase"
	EventProgress         EventKind = "progress"
	EventSubtitle         EventKind = "subtitle"
	EventNarrationStarted EventKind = "narration_started"
	EventNarrationFailed  EventKind = "narration_failed"
)

// Event carries a full Snapshot, except for progress and subtitle events,
// which fire once per narrated word and carry only Progress.
type Event struct {
	Kind     EventKind `json:"kind"`
	Snapshot Snapshot  `json:"snapshot"`
	Progress *Progress `json:"progress,omitempty"`
	Err      error     `json:"-"`
}

// Progress is the narration position within the current step. It leaves out
// the step content and audio, which can be large data URIs.
type Progress struct {
	Generation        uint64    `json:"generation"`
	LessonID          uuid.UUID `json:"lesson_id"`
	CurrentIndex      int       `json:"current_index"`
	NarratedCharCount int       `json:"narrated_char_count"`
	TextLength        int       `json:"text_length"`
	Subtitle          string    `json:"subtitle"`
}

// EventSink receives events while the controller lock is held: Publish must
// not block and must not call back into the controller.
type EventSink interface {
	Publish(Event)
}

type EventSinkFunc func(Event)

func (f EventSinkFunc) Publish(e Event) { f(e) }

type discardSink struct{}

func (discardSink) Publish(Event) {}

// Snapshot is a read-only view of a board's playback state.
type Snapshot struct {
	Generation        uint64             `json:"generation"`
	Phase             Phase              `json:"phase"`
	LessonID          uuid.UUID          `json:"lesson_id"`
	Language          domain.Language    `json:"language,omitempty"`
	Fallback          bool               `json:"fallback"`
	CurrentIndex      int                `json:"current_index"`
	NextIndex         int                `json:"next_index"`
	StepCount         int                `json:"step_count"`
	NarratedCharCount int                `json:"narrated_char_count"`
	TextLength        int                `json:"text_length"`
	AutoPlay          bool               `json:"auto_play"`
	Subtitle          string             `json:"subtitle"`
	Step              *domain.LessonStep `json:"step,omitempty"`
	IsImage           bool               `json:"is_image"`
	BoardVisible      bool               `json:"board_visible"`
	Audio             *narration.Audio   `json:"audio,omitempty"`
	Voice             *narration.Voice   `json:"voice,omitempty"`
	LastError         string             `json:"last_error,omitempty"`
}
