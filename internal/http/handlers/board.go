package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/services"
)

type BoardHandler struct {
	svc services.LessonService
}

func NewBoardHandler(svc services.LessonService) *BoardHandler {
	return &BoardHandler{svc: svc}
}

type submitLessonRequest struct {
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
}

// POST /api/boards/:id/lessons
func (h *BoardHandler) SubmitLesson(c *gin.Context) {
	var req submitLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, fmt.Errorf("%w: %v", services.ErrInvalidArgument, err))
		return
	}
	reqID, err := h.svc.Submit(c.Request.Context(), c.Param("id"), req.Prompt, domain.ParseLanguage(req.Language))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"request_id": reqID})
}

// GET /api/boards/:id
func (h *BoardHandler) GetBoard(c *gin.Context) {
	snap, err := h.svc.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"board": snap})
}

// POST /api/boards/:id/clear
func (h *BoardHandler) Clear(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type autoplayRequest struct {
	AutoPlay *bool `json:"auto_play"`
}

// POST /api/boards/:id/autoplay
// An empty body toggles; {"auto_play": bool} sets the value.
func (h *BoardHandler) ToggleAutoplay(c *gin.Context) {
	var req autoplayRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondErr(c, fmt.Errorf("%w: %v", services.ErrInvalidArgument, err))
		return
	}
	var (
		on  bool
		err error
	)
	if req.AutoPlay != nil {
		on, err = h.svc.SetAutoplay(c.Request.Context(), c.Param("id"), *req.AutoPlay)
	} else {
		on, err = h.svc.ToggleAutoplay(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auto_play": on})
}

// POST /api/boards/:id/replay
func (h *BoardHandler) Replay(c *gin.Context) {
	if err := h.svc.Replay(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/boards/:id/lessons?limit=
func (h *BoardHandler) ListLessons(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondErr(c, fmt.Errorf("%w: invalid limit", services.ErrInvalidArgument))
			return
		}
		limit = n
	}
	rows, err := h.svc.ListBoardLessons(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lessons": rows})
}

// DELETE /api/boards/:id/lessons
func (h *BoardHandler) ForgetLessons(c *gin.Context) {
	if err := h.svc.ForgetLessons(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/boards/:id/lessons/:lessonId/load
func (h *BoardHandler) LoadLesson(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		respondErr(c, fmt.Errorf("%w: invalid lesson id", services.ErrInvalidArgument))
		return
	}
	rec, err := h.svc.LoadLesson(c.Request.Context(), c.Param("id"), lessonID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lesson": rec})
}
