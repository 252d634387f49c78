package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/blackboard-backend/internal/data/repos/lesson"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

type Repos struct {
	LessonPlan lesson.LessonPlanRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		LessonPlan: lesson.NewLessonPlanRepo(db, log),
	}
}
