package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/blackboard-backend/internal/http/response"
	"github.com/yungbote/blackboard-backend/internal/lesson/playback"
	"github.com/yungbote/blackboard-backend/internal/platform/apierr"
	"github.com/yungbote/blackboard-backend/internal/services"
)

func toAPIError(err error) *apierr.Error {
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		return apierr.InvalidArgument(err)
	case errors.Is(err, services.ErrNotFound):
		return apierr.NotFound(err)
	case errors.Is(err, playback.ErrNoLesson):
		return apierr.Conflict(err)
	default:
		return apierr.From(err)
	}
}

func respondErr(c *gin.Context, err error) {
	response.RespondAPIError(c, toAPIError(err))
}
