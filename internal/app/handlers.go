package app

import (
	httpH "github.com/yungbote/blackboard-backend/internal/http/handlers"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
	"github.com/yungbote/blackboard-backend/internal/realtime"
)

type Handlers struct {
	Board    *httpH.BoardHandler
	Lesson   *httpH.LessonHandler
	Realtime *httpH.RealtimeHandler
	Health   *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, svcs Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Board:    httpH.NewBoardHandler(svcs.Lesson),
		Lesson:   httpH.NewLessonHandler(svcs.Lesson),
		Realtime: httpH.NewRealtimeHandler(log, hub, svcs.Lesson),
		Health:   httpH.NewHealthHandler(),
	}
}
