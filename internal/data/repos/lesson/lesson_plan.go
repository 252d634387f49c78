package lesson

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/platform/dbctx"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

const defaultListLimit = 20

type LessonPlanRepo interface {
	Create(dbc dbctx.Context, rows []*domain.LessonRecord) ([]*domain.LessonRecord, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.LessonRecord, error)
	ListByBoard(dbc dbctx.Context, boardID string, limit int) ([]*domain.LessonRecord, error)
	SoftDeleteByBoard(dbc dbctx.Context, boardID string) error
}

type lessonPlanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonPlanRepo(db *gorm.DB, baseLog *logger.Logger) LessonPlanRepo {
	return &lessonPlanRepo{db: db, log: baseLog.With("repo", "LessonPlanRepo")}
}

func (r *lessonPlanRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx)
}

func (r *lessonPlanRepo) Create(dbc dbctx.Context, rows []*domain.LessonRecord) ([]*domain.LessonRecord, error) {
	if len(rows) == 0 {
		return []*domain.LessonRecord{}, nil
	}
	if err := r.tx(dbc).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetByID returns nil, nil when no row matches.
func (r *lessonPlanRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.LessonRecord, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row domain.LessonRecord
	err := r.tx(dbc).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListByBoard returns the board's lessons, newest first.
func (r *lessonPlanRepo) ListByBoard(dbc dbctx.Context, boardID string, limit int) ([]*domain.LessonRecord, error) {
	var out []*domain.LessonRecord
	if boardID == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if err := r.tx(dbc).
		Where("board_id = ?", boardID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *lessonPlanRepo) SoftDeleteByBoard(dbc dbctx.Context, boardID string) error {
	if boardID == "" {
		return nil
	}
	return r.tx(dbc).Where("board_id = ?", boardID).Delete(&domain.LessonRecord{}).Error
}
