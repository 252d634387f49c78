package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	lessonrepo "github.com/yungbote/blackboard-backend/internal/data/repos/lesson"
	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/narration"
	"github.com/yungbote/blackboard-backend/internal/lesson/playback"
	"github.com/yungbote/blackboard-backend/internal/observability"
	"github.com/yungbote/blackboard-backend/internal/platform/ctxutil"
	"github.com/yungbote/blackboard-backend/internal/platform/dbctx"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
)

// LessonGenerator returns the raw, unparsed lesson response for a prompt.
type LessonGenerator interface {
	Generate(ctx context.Context, prompt string, lang domain.Language) (string, error)
}

// LessonResolver turns a raw response into a playable plan.
type LessonResolver interface {
	ResolveResponse(ctx context.Context, raw string, lang domain.Language) (domain.LessonPlan, error)
	GenerationFailurePlan(lang domain.Language) domain.LessonPlan
}

type VoiceLister interface {
	ListVoices(ctx context.Context) ([]narration.Voice, error)
}

// VoiceChoice is the catalogue plus the voice a board would use for a language.
type VoiceChoice struct {
	Language domain.Language   `json:"language"`
	Locales  []string          `json:"locales"`
	Voices   []narration.Voice `json:"voices"`
	Selected *narration.Voice  `json:"selected,omitempty"`
}

type LessonService interface {
	Submit(ctx context.Context, boardID, prompt string, lang domain.Language) (uuid.UUID, error)
	Clear(ctx context.Context, boardID string) error
	ToggleAutoplay(ctx context.Context, boardID string) (bool, error)
	SetAutoplay(ctx context.Context, boardID string, on bool) (bool, error)
	Replay(ctx context.Context, boardID string) error
	State(ctx context.Context, boardID string) (playback.Snapshot, error)
	GetLesson(ctx context.Context, id uuid.UUID) (*domain.LessonRecord, error)
	ListBoardLessons(ctx context.Context, boardID string, limit int) ([]*domain.LessonRecord, error)
	LoadLesson(ctx context.Context, boardID string, id uuid.UUID) (*domain.LessonRecord, error)
	// ForgetLessons soft-deletes the board's stored lesson history.
	ForgetLessons(ctx context.Context, boardID string) error
	Voices(ctx context.Context, lang domain.Language) (VoiceChoice, error)
	// Wait blocks until every background submission has finished.
	Wait()
}

type LessonServiceDeps struct {
	Generator    LessonGenerator
	Resolver     LessonResolver
	Boards       *BoardRegistry
	Notifier     BoardNotifier
	Lessons      lessonrepo.LessonPlanRepo
	Voices       VoiceLister
	VoiceLocales func(domain.Language) []string
}

type submission struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

type lessonService struct {
	log  *logger.Logger
	deps LessonServiceDeps

	mu       sync.Mutex
	inflight map[string]*submission
	wg       sync.WaitGroup
}

func NewLessonService(log *logger.Logger, deps LessonServiceDeps) (LessonService, error) {
	if deps.Generator == nil || deps.Resolver == nil || deps.Boards == nil {
		return nil, fmt.Errorf("lesson service: generator, resolver and boards are required")
	}
	return &lessonService{
		log:      log.With("service", "LessonService"),
		deps:     deps,
		inflight: make(map[string]*submission),
	}, nil
}

func normalizeBoardID(boardID string) (string, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return "", fmt.Errorf("%w: board id required", ErrInvalidArgument)
	}
	return boardID, nil
}

// Submit clears the board and produces a lesson for prompt in the background.
// A later Submit, Clear or LoadLesson on the same board supersedes it.
func (s *lessonService) Submit(ctx context.Context, boardID, prompt string, lang domain.Language) (uuid.UUID, error) {
	boardID, err := normalizeBoardID(boardID)
	if err != nil {
		return uuid.Nil, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return uuid.Nil, fmt.Errorf("%w: prompt required", ErrInvalidArgument)
	}
	if lang == "" {
		lang = domain.DefaultLanguage
	}

	reqID := uuid.New()
	runCtx, cancel := context.WithCancel(ctxutil.Detach(ctx))

	s.mu.Lock()
	s.cancelLocked(boardID)
	s.inflight[boardID] = &submission{id: reqID, cancel: cancel}
	s.deps.Boards.Get(boardID).Clear()
	s.mu.Unlock()

	if s.deps.Notifier != nil {
		s.deps.Notifier.LessonLoading(boardID, reqID, prompt, lang)
	}
	s.log.Info("lesson submitted", "board_id", boardID, "request_id", reqID, "language", lang)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.produce(runCtx, boardID, reqID, prompt, lang)
	}()
	return reqID, nil
}

func (s *lessonService) produce(ctx context.Context, boardID string, reqID uuid.UUID, prompt string, lang domain.Language) {
	ctx, span := observability.Tracer().Start(ctx, "lesson.submit")
	defer span.End()

	plan, genErr := s.buildPlan(ctx, prompt, lang)
	if ctx.Err() != nil {
		s.log.Debug("lesson submission superseded", "board_id", boardID, "request_id", reqID)
		return
	}
	if plan.Prompt == "" {
		plan.Prompt = prompt
	}

	if s.deps.Lessons != nil {
		rec, err := domain.NewLessonRecord(boardID, plan)
		if err == nil {
			_, err = s.deps.Lessons.Create(dbctx.Context{Ctx: ctx}, []*domain.LessonRecord{rec})
		}
		if err != nil {
			fields := append([]interface{}{"board_id", boardID, "lesson_id", plan.ID, "error", err}, ctxutil.LogFields(ctx)...)
			s.log.Warn("persist lesson failed; continuing", fields...)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.inflight[boardID]
	if !ok || cur.id != reqID {
		s.log.Debug("lesson submission superseded", "board_id", boardID, "request_id", reqID)
		return
	}
	delete(s.inflight, boardID)

	if genErr != nil && s.deps.Notifier != nil {
		s.deps.Notifier.LessonFailed(boardID, reqID, genErr)
	}
	s.deps.Boards.Get(boardID).Accept(plan)
	if s.deps.Notifier != nil {
		s.deps.Notifier.LessonReady(boardID, reqID, plan)
	}
	s.log.Info("lesson ready",
		"board_id", boardID,
		"request_id", reqID,
		"lesson_id", plan.ID,
		"steps", len(plan.Steps),
		"fallback", plan.Fallback,
	)
}

// buildPlan always yields a plan unless ctx is done; the returned error is the
// generation failure the fallback plan stands in for.
func (s *lessonService) buildPlan(ctx context.Context, prompt string, lang domain.Language) (domain.LessonPlan, error) {
	raw, err := s.deps.Generator.Generate(ctx, prompt, lang)
	if err != nil {
		if ctx.Err() != nil {
			return domain.LessonPlan{}, ctx.Err()
		}
		s.log.Warn("lesson generation failed; using fallback plan", "language", lang, "error", err)
		return s.deps.Resolver.GenerationFailurePlan(lang), err
	}
	plan, err := s.deps.Resolver.ResolveResponse(ctx, raw, lang)
	if err != nil {
		return domain.LessonPlan{}, err
	}
	return plan, nil
}

func (s *lessonService) cancelLocked(boardID string) {
	if prev, ok := s.inflight[boardID]; ok {
		prev.cancel()
		delete(s.inflight, boardID)
	}
}

func (s *lessonService) Clear(ctx context.Context, boardID string) error {
	boardID, err := normalizeBoardID(boardID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(boardID)
	if ctrl, ok := s.deps.Boards.Lookup(boardID); ok {
		ctrl.Clear()
	}
	return nil
}

func (s *lessonService) ToggleAutoplay(ctx context.Context, boardID string) (bool, error) {
	boardID, err := normalizeBoardID(boardID)
	if err != nil {
		return false, err
	}
	return s.deps.Boards.Get(boardID).ToggleAutoplay(), nil
}

func (s *lessonService) SetAutoplay(ctx context.Context, boardID string, on bool) (bool, error) {
	boardID, err := normalizeBoardID(boardID)
	if err != nil {
		return false, err
	}
	s.deps.Boards.Get(boardID).SetAutoplay(on)
	return on, nil
}

func (s *lessonService) Replay(ctx context.Context, boardID string) error {
	boardID, err := normalizeBoardID(boardID)
	if err != nil {
		return err
	}
	ctrl, ok := s.deps.Boards.Lookup(boardID)
	if !ok {
		return playback.ErrNoLesson
	}
	return ctrl.Replay()
}

func (s *lessonService) State(ctx context.Context, boardID string) (playback.Snapshot, error) {
	boardID, err := normalizeBoardID(boardID)
	if err != nil {
		return playback.Snapshot{}, err
	}
	return s.deps.Boards.Snapshot(boardID), nil
}

func (s *lessonService) GetLesson(ctx context.Context, id uuid.UUID) (*domain.LessonRecord, error) {
	if s.deps.Lessons == nil {
		return nil, ErrNotFound
	}
	rec, err := s.deps.Lessons.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *lessonService) ListBoardLessons(ctx context.Context, boardID string, limit int) ([]*domain.LessonRecord, error) {
	boardID, err := normalizeBoardID(boardID)
	if err != nil {
		return nil, err
	}
	if s.deps.Lessons == nil {
		return []*domain.LessonRecord{}, nil
	}
	rows, err := s.deps.Lessons.ListByBoard(dbctx.Context{Ctx: ctx}, boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return rows, nil
}

// LoadLesson replays a stored lesson of this board from its first step.
func (s *lessonService) LoadLesson(ctx context.Context, boardID string, id uuid.UUID) (*domain.LessonRecord, error) {
	boardID, err := normalizeBoardID(boardID)
	if err != nil {
		return nil, err
	}
	rec, err := s.GetLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.BoardID != boardID {
		return nil, ErrNotFound
	}
	plan, err := rec.Plan()
	if err != nil {
		return nil, fmt.Errorf("load lesson: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(boardID)
	s.deps.Boards.Get(boardID).Accept(plan)
	return rec, nil
}

func (s *lessonService) ForgetLessons(ctx context.Context, boardID string) error {
	boardID, err := normalizeBoardID(boardID)
	if err != nil {
		return err
	}
	if s.deps.Lessons == nil {
		return nil
	}
	if err := s.deps.Lessons.SoftDeleteByBoard(dbctx.Context{Ctx: ctx}, boardID); err != nil {
		return fmt.Errorf("forget lessons: %w", err)
	}
	s.log.Info("lesson history forgotten", "board_id", boardID)
	return nil
}

func (s *lessonService) Voices(ctx context.Context, lang domain.Language) (VoiceChoice, error) {
	if lang == "" {
		lang = domain.DefaultLanguage
	}
	out := VoiceChoice{Language: lang, Voices: []narration.Voice{}}
	if s.deps.VoiceLocales != nil {
		out.Locales = s.deps.VoiceLocales(lang)
	}
	if s.deps.Voices == nil {
		return out, nil
	}
	voices, err := s.deps.Voices.ListVoices(ctx)
	if err != nil {
		return VoiceChoice{}, fmt.Errorf("list voices: %w", err)
	}
	out.Voices = voices
	if v, ok := narration.SelectVoice(voices, out.Locales); ok {
		out.Selected = &v
	}
	return out, nil
}

func (s *lessonService) Wait() { s.wg.Wait() }
