package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/blackboard-backend/internal/domain"
)

func SeedLesson(tb testing.TB, tx *gorm.DB, boardID, prompt string, createdAt time.Time) *domain.LessonRecord {
	tb.Helper()
	rec, err := domain.NewLessonRecord(boardID, domain.LessonPlan{
		ID:       uuid.New(),
		Language: domain.LanguageEnglish,
		Prompt:   prompt,
		Steps: []domain.LessonStep{
			{Content: "<h1>" + prompt + "</h1>", Spoken: prompt, VisualType: domain.VisualMarkup},
		},
		CreatedAt: createdAt,
	})
	if err != nil {
		tb.Fatalf("build lesson record: %v", err)
	}
	if err := tx.Create(rec).Error; err != nil {
		tb.Fatalf("seed lesson: %v", err)
	}
	return rec
}
