package lesson

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/blackboard-backend/internal/data/repos/testutil"
	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/platform/dbctx"
)

func TestLessonPlanRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewLessonPlanRepo(db, testutil.Logger(t))

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	old := testutil.SeedLesson(t, tx, "board-a", "old", base)
	testutil.SeedLesson(t, tx, "board-b", "other", base.Add(time.Minute))

	plan := domain.LessonPlan{
		ID:       uuid.New(),
		Language: domain.LanguageHindi,
		Prompt:   "photosynthesis",
		Steps: []domain.LessonStep{
			{Content: "<h1>Leaf</h1>", Spoken: "Dekho beta", VisualType: domain.VisualMarkup},
			{Content: "https://cdn.test/leaf.png", Spoken: "Yeh leaf hai", VisualType: domain.VisualImage},
		},
		CreatedAt: base.Add(time.Hour),
	}
	rec, err := domain.NewLessonRecord("board-a", plan)
	if err != nil {
		t.Fatalf("NewLessonRecord: %v", err)
	}
	if _, err := repo.Create(dbc, []*domain.LessonRecord{rec}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(dbc, plan.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	restored, err := got.Plan()
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if restored.Language != domain.LanguageHindi || len(restored.Steps) != 2 || restored.Steps[1].VisualType != domain.VisualImage {
		t.Fatalf("restored: got=%+v", restored)
	}
	if got.StepCount != 2 {
		t.Fatalf("step count: want=2 got=%d", got.StepCount)
	}

	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: got=%v err=%v", missing, err)
	}

	rows, err := repo.ListByBoard(dbc, "board-a", 10)
	if err != nil || len(rows) != 2 {
		t.Fatalf("ListByBoard: err=%v len=%d", err, len(rows))
	}
	if rows[0].ID != plan.ID || rows[1].ID != old.ID {
		t.Fatalf("ListByBoard order: got=%v,%v", rows[0].ID, rows[1].ID)
	}
	if rows, err := repo.ListByBoard(dbc, "board-a", 1); err != nil || len(rows) != 1 {
		t.Fatalf("ListByBoard limit: err=%v len=%d", err, len(rows))
	}

	if err := repo.SoftDeleteByBoard(dbc, "board-a"); err != nil {
		t.Fatalf("SoftDeleteByBoard: %v", err)
	}
	if rows, err := repo.ListByBoard(dbc, "board-a", 10); err != nil || len(rows) != 0 {
		t.Fatalf("after delete: err=%v len=%d", err, len(rows))
	}
	if rows, err := repo.ListByBoard(dbc, "board-b", 10); err != nil || len(rows) != 1 {
		t.Fatalf("other board: err=%v len=%d", err, len(rows))
	}
}
