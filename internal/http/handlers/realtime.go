package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/blackboard-backend/internal/lesson/playback"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
	"github.com/yungbote/blackboard-backend/internal/realtime"
	"github.com/yungbote/blackboard-backend/internal/services"
)

type RealtimeHandler struct {
	Log *logger.Logger
	Hub *realtime.SSEHub
	svc services.LessonService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, svc services.LessonService) *RealtimeHandler {
	return &RealtimeHandler{
		Log: log.With("handler", "RealtimeHandler"),
		Hub: hub,
		svc: svc,
	}
}

// GET /api/boards/:id/events
func (h *RealtimeHandler) BoardEvents(c *gin.Context) {
	boardID := strings.TrimSpace(c.Param("id"))
	if boardID == "" {
		respondErr(c, fmt.Errorf("%w: board id required", services.ErrInvalidArgument))
		return
	}
	snap, err := h.svc.State(c.Request.Context(), boardID)
	if err != nil {
		respondErr(c, err)
		return
	}

	client := h.Hub.NewSSEClient()
	h.Hub.AddChannel(client, boardID)
	h.Log.Info("board stream open", "board_id", boardID, "client_id", client.ID)

	// Current state first so a reconnecting board catches up.
	client.Outbound <- realtime.SSEMessage{
		Channel: boardID,
		Event:   realtime.SSEEventBoardPhase,
		Data: map[string]any{
			"board_id": boardID,
			"kind":     playback.EventPhase,
			"snapshot": snap,
		},
	}

	h.Hub.ServeHTTP(c.Writer, c.Request, client)

	h.Hub.CloseClient(client)
	h.Log.Info("board stream closed", "board_id", boardID, "client_id", client.ID)
}
