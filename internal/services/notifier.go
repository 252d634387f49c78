package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/playback"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
	"github.com/yungbote/blackboard-backend/internal/realtime"
)

const notifierQueueSize = 1024

// BoardNotifier turns playback events and lesson lifecycle changes into
// realtime messages on the board's channel.
type BoardNotifier interface {
	Sink(boardID string) playback.EventSink
	LessonLoading(boardID string, requestID uuid.UUID, prompt string, lang domain.Language)
	LessonReady(boardID string, requestID uuid.UUID, plan domain.LessonPlan)
	LessonFailed(boardID string, requestID uuid.UUID, err error)
}

type Notifier struct {
	log   *logger.Logger
	emit  SSEEmitter
	queue chan realtime.SSEMessage
}

// NewBoardNotifier queues messages until Run drains them into emit, so Sink
// never blocks the controller that publishes into it.
func NewBoardNotifier(log *logger.Logger, emit SSEEmitter) *Notifier {
	return &Notifier{
		log:   log.With("service", "BoardNotifier"),
		emit:  emit,
		queue: make(chan realtime.SSEMessage, notifierQueueSize),
	}
}

// Run delivers queued messages in order until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-n.queue:
			if n.emit != nil {
				n.emit.Emit(ctx, msg)
			}
		}
	}
}

func (n *Notifier) enqueue(msg realtime.SSEMessage) {
	if n == nil || msg.Channel == "" {
		return
	}
	select {
	case n.queue <- msg:
	default:
		n.log.Warn("board event queue full; dropping", "board_id", msg.Channel, "event", msg.Event)
	}
}

func (n *Notifier) Sink(boardID string) playback.EventSink {
	return playback.EventSinkFunc(func(e playback.Event) {
		data := map[string]any{
			"board_id": boardID,
			"kind":     e.Kind,
		}
		if e.Progress != nil {
			data["progress"] = *e.Progress
		} else {
			data["snapshot"] = e.Snapshot
		}
		if e.Err != nil {
			data["error"] = e.Err.Error()
		}
		n.enqueue(realtime.SSEMessage{
			Channel: boardID,
			Event:   boardEvent(e.Kind),
			Data:    data,
		})
	})
}

func boardEvent(kind playback.EventKind) realtime.SSEEvent {
	switch kind {
	case playback.EventReset:
		return realtime.SSEEventBoardReset
	case playback.EventProgress:
		return realtime.SSEEventBoardProgress
	case playback.EventSubtitle:
		return realtime.SSEEventBoardSubtitle
	case playback.EventNarrationStarted:
		return realtime.SSEEventNarrationStarted
	case playback.EventNarrationFailed:
		return realtime.SSEEventNarrationFailed
	default:
		return realtime.SSEEventBoardPhase
	}
}

func (n *Notifier) LessonLoading(boardID string, requestID uuid.UUID, prompt string, lang domain.Language) {
	n.enqueue(realtime.SSEMessage{
		Channel: boardID,
		Event:   realtime.SSEEventLessonLoading,
		Data: map[string]any{
			"board_id":   boardID,
			"request_id": requestID,
			"prompt":     prompt,
			"language":   lang,
		},
	})
}

func (n *Notifier) LessonReady(boardID string, requestID uuid.UUID, plan domain.LessonPlan) {
	n.enqueue(realtime.SSEMessage{
		Channel: boardID,
		Event:   realtime.SSEEventLessonReady,
		Data: map[string]any{
			"board_id":   boardID,
			"request_id": requestID,
			"lesson_id":  plan.ID,
			"language":   plan.Language,
			"step_count": len(plan.Steps),
			"fallback":   plan.Fallback,
		},
	})
}

func (n *Notifier) LessonFailed(boardID string, requestID uuid.UUID, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	n.enqueue(realtime.SSEMessage{
		Channel: boardID,
		Event:   realtime.SSEEventLessonFailed,
		Data: map[string]any{
			"board_id":   boardID,
			"request_id": requestID,
			"error":      msg,
		},
	})
}
