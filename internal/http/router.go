package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/blackboard-backend/internal/http/handlers"
	httpMW "github.com/yungbote/blackboard-backend/internal/http/middleware"
	"github.com/yungbote/blackboard-backend/internal/observability"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	BoardHandler    *httpH.BoardHandler
	LessonHandler   *httpH.LessonHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "blackboard"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/metrics", cfg.HealthHandler.Metrics)
	}

	api := r.Group("/api")
	{
		// Boards
		if cfg.BoardHandler != nil {
			api.GET("/boards/:id", cfg.BoardHandler.GetBoard)
			api.POST("/boards/:id/lessons", cfg.BoardHandler.SubmitLesson)
			api.GET("/boards/:id/lessons", cfg.BoardHandler.ListLessons)
			api.DELETE("/boards/:id/lessons", cfg.BoardHandler.ForgetLessons)
			api.POST("/boards/:id/lessons/:lessonId/load", cfg.BoardHandler.LoadLesson)
			api.POST("/boards/:id/clear", cfg.BoardHandler.Clear)
			api.POST("/boards/:id/autoplay", cfg.BoardHandler.ToggleAutoplay)
			api.POST("/boards/:id/replay", cfg.BoardHandler.Replay)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/boards/:id/events", cfg.RealtimeHandler.BoardEvents)
		}

		// Lessons
		if cfg.LessonHandler != nil {
			api.GET("/lessons/:id", cfg.LessonHandler.GetLesson)
			api.GET("/voices", cfg.LessonHandler.ListVoices)
		}
	}

	return r
}
