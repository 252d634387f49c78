package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VisualType says how a step's Content is shown on the board.
type VisualType string

const (
	VisualMarkup VisualType = "markup"
	VisualImage  VisualType = "image"
)

// ParseVisualType never rejects: "html" is the generation prompt's name for markup
// and anything unrecognized is treated as markup.
func ParseVisualType(s string) VisualType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image":
		return VisualImage
	default:
		return VisualMarkup
	}
}

// UnmarshalJSON accepts any string, including "html".
func (v *VisualType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("visual type: %w", err)
	}
	*v = ParseVisualType(s)
	return nil
}

// RawStep is one step as produced by the generation service. For image steps
// Content is a prompt description, not an image. On the wire the content field
// is called "board"; "content" is accepted too.
type RawStep struct {
	VisualType VisualType `json:"visualType"`
	Content    string     `json:"board"`
	Spoken     string     `json:"spoken"`
}

func (s *RawStep) UnmarshalJSON(b []byte) error {
	var wire struct {
		VisualType VisualType `json:"visualType"`
		Board      *string    `json:"board"`
		Content    *string    `json:"content"`
		Spoken     string     `json:"spoken"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	s.VisualType = wire.VisualType
	if s.VisualType == "" {
		s.VisualType = VisualMarkup
	}
	switch {
	case wire.Board != nil:
		s.Content = *wire.Board
	case wire.Content != nil:
		s.Content = *wire.Content
	default:
		s.Content = ""
	}
	s.Spoken = wire.Spoken
	return nil
}

// LessonStep is playback-ready. For image steps Content is an image reference
// (data URI or object URL).
type LessonStep struct {
	Content    string     `json:"content"`
	Spoken     string     `json:"spoken"`
	VisualType VisualType `json:"visual_type"`
}

// Language is the spoken-language variant of a lesson.
type Language string

const (
	LanguageEnglish Language = "English"
	LanguageHindi   Language = "Hindi"
	LanguageTamil   Language = "Tamil"

	DefaultLanguage = LanguageEnglish
)

var Languages = []Language{LanguageEnglish, LanguageHindi, LanguageTamil}

// ParseLanguage is case-insensitive; unknown or blank values map to DefaultLanguage.
func ParseLanguage(s string) Language {
	s = strings.TrimSpace(s)
	for _, l := range Languages {
		if strings.EqualFold(s, string(l)) {
			return l
		}
	}
	return DefaultLanguage
}

// LessonPlan is immutable once the content pipeline returns it.
type LessonPlan struct {
	ID        uuid.UUID    `json:"id"`
	Language  Language     `json:"language"`
	Prompt    string       `json:"prompt"`
	Steps     []LessonStep `json:"steps"`
	Fallback  bool         `json:"fallback"`
	CreatedAt time.Time    `json:"created_at"`
}

func (p LessonPlan) Empty() bool { return len(p.Steps) == 0 }

// LessonRecord persists a produced plan so it can be listed and replayed.
type LessonRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BoardID   string         `gorm:"column:board_id;not null;index:idx_lesson_board_created,priority:1" json:"board_id"`
	Prompt    string         `gorm:"column:prompt;type:text;not null" json:"prompt"`
	Language  string         `gorm:"column:language;not null" json:"language"`
	Steps     datatypes.JSON `gorm:"column:steps" json:"steps"`
	StepCount int            `gorm:"column:step_count;not null" json:"step_count"`
	Fallback  bool           `gorm:"column:fallback;not null" json:"fallback"`
	CreatedAt time.Time      `gorm:"index:idx_lesson_board_created,priority:2" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LessonRecord) TableName() string { return "lesson_plan" }

func (r *LessonRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// NewLessonRecord snapshots a plan for storage.
func NewLessonRecord(boardID string, plan LessonPlan) (*LessonRecord, error) {
	steps := plan.Steps
	if steps == nil {
		steps = []LessonStep{}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("encode lesson steps: %w", err)
	}
	return &LessonRecord{
		ID:        plan.ID,
		BoardID:   boardID,
		Prompt:    plan.Prompt,
		Language:  string(plan.Language),
		Steps:     datatypes.JSON(raw),
		StepCount: len(plan.Steps),
		Fallback:  plan.Fallback,
		CreatedAt: plan.CreatedAt,
	}, nil
}

// Plan rebuilds the stored LessonPlan.
func (r *LessonRecord) Plan() (LessonPlan, error) {
	var steps []LessonStep
	if len(r.Steps) > 0 {
		if err := json.Unmarshal(r.Steps, &steps); err != nil {
			return LessonPlan{}, fmt.Errorf("decode lesson steps: %w", err)
		}
	}
	return LessonPlan{
		ID:        r.ID,
		Language:  ParseLanguage(r.Language),
		Prompt:    r.Prompt,
		Steps:     steps,
		Fallback:  r.Fallback,
		CreatedAt: r.CreatedAt,
	}, nil
}
