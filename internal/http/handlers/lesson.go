package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/services"
)

type LessonHandler struct {
	svc services.LessonService
}

func NewLessonHandler(svc services.LessonService) *LessonHandler {
	return &LessonHandler{svc: svc}
}

// GET /api/lessons/:id
func (h *LessonHandler) GetLesson(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, fmt.Errorf("%w: invalid lesson id", services.ErrInvalidArgument))
		return
	}
	rec, err := h.svc.GetLesson(c.Request.Context(), lessonID)
	if err != nil {
		respondErr(c, err)
		return
	}
	plan, err := rec.Plan()
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lesson":   rec,
		"plan":     plan,
		"board_id": rec.BoardID,
	})
}

// GET /api/voices?language=
func (h *LessonHandler) ListVoices(c *gin.Context) {
	choice, err := h.svc.Voices(c.Request.Context(), domain.ParseLanguage(c.Query("language")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, choice)
}
