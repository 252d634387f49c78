package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/http/response"
	"github.com/yungbote/blackboard-backend/internal/lesson/narration"
	"github.com/yungbote/blackboard-backend/internal/lesson/playback"
	"github.com/yungbote/blackboard-backend/internal/services"
)

type stubLessons struct {
	services.LessonService

	submitted struct {
		board, prompt string
		lang          domain.Language
	}
	reqID    uuid.UUID
	snap     playback.Snapshot
	replay   error
	autoplay bool
	lessons  map[uuid.UUID]*domain.LessonRecord
	limit    int
	setCalls int
	forgot   string
}

func (s *stubLessons) Submit(_ context.Context, boardID, prompt string, lang domain.Language) (uuid.UUID, error) {
	if strings.TrimSpace(prompt) == "" {
		return uuid.Nil, fmt.Errorf("%w: prompt required", services.ErrInvalidArgument)
	}
	s.submitted.board, s.submitted.prompt, s.submitted.lang = boardID, prompt, lang
	return s.reqID, nil
}

func (s *stubLessons) State(context.Context, string) (playback.Snapshot, error) { return s.snap, nil }
func (s *stubLessons) Clear(context.Context, string) error                      { return nil }
func (s *stubLessons) Replay(context.Context, string) error                     { return s.replay }

func (s *stubLessons) ToggleAutoplay(context.Context, string) (bool, error) {
	s.autoplay = !s.autoplay
	return s.autoplay, nil
}

func (s *stubLessons) SetAutoplay(_ context.Context, _ string, on bool) (bool, error) {
	s.setCalls++
	s.autoplay = on
	return on, nil
}

func (s *stubLessons) ForgetLessons(_ context.Context, boardID string) error {
	s.forgot = boardID
	return nil
}

func (s *stubLessons) GetLesson(_ context.Context, id uuid.UUID) (*domain.LessonRecord, error) {
	if rec, ok := s.lessons[id]; ok {
		return rec, nil
	}
	return nil, services.ErrNotFound
}

func (s *stubLessons) ListBoardLessons(_ context.Context, boardID string, limit int) ([]*domain.LessonRecord, error) {
	s.limit = limit
	out := []*domain.LessonRecord{}
	for _, rec := range s.lessons {
		if rec.BoardID == boardID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubLessons) LoadLesson(ctx context.Context, boardID string, id uuid.UUID) (*domain.LessonRecord, error) {
	rec, err := s.GetLesson(ctx, id)
	if err != nil || rec.BoardID != boardID {
		return nil, services.ErrNotFound
	}
	return rec, nil
}

func (s *stubLessons) Voices(_ context.Context, lang domain.Language) (services.VoiceChoice, error) {
	v := narration.Voice{ID: "v1", Lang: "hi-IN"}
	return services.VoiceChoice{Language: lang, Voices: []narration.Voice{v}, Selected: &v}, nil
}

func newTestEngine(t *testing.T, svc services.LessonService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	b := NewBoardHandler(svc)
	l := NewLessonHandler(svc)
	r.GET("/api/boards/:id", b.GetBoard)
	r.POST("/api/boards/:id/lessons", b.SubmitLesson)
	r.GET("/api/boards/:id/lessons", b.ListLessons)
	r.DELETE("/api/boards/:id/lessons", b.ForgetLessons)
	r.POST("/api/boards/:id/lessons/:lessonId/load", b.LoadLesson)
	r.POST("/api/boards/:id/clear", b.Clear)
	r.POST("/api/boards/:id/autoplay", b.ToggleAutoplay)
	r.POST("/api/boards/:id/replay", b.Replay)
	r.GET("/api/lessons/:id", l.GetLesson)
	r.GET("/api/voices", l.ListVoices)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.APIError {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v body=%s", err, rec.Body.String())
	}
	return env.Error
}

func TestSubmitLessonAccepted(t *testing.T) {
	svc := &stubLessons{reqID: uuid.New()}
	r := newTestEngine(t, svc)

	rec := do(r, http.MethodPost, "/api/boards/b1/lessons", `{"prompt":"photosynthesis","language":"hindi"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusAccepted, rec.Code, rec.Body.String())
	}
	var out struct {
		RequestID uuid.UUID `json:"request_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.RequestID != svc.reqID {
		t.Fatalf("request id: want=%v got=%v err=%v", svc.reqID, out.RequestID, err)
	}
	if svc.submitted.board != "b1" || svc.submitted.lang != domain.LanguageHindi {
		t.Fatalf("submitted: got=%+v", svc.submitted)
	}
}

func TestSubmitLessonErrors(t *testing.T) {
	r := newTestEngine(t, &stubLessons{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"prompt":`},
		{"blank prompt", `{"prompt":"  "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(r, http.MethodPost, "/api/boards/b1/lessons", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: want=400 got=%d", rec.Code)
			}
			if e := decodeError(t, rec); e.Code != "invalid_argument" {
				t.Fatalf("code: want=invalid_argument got=%q", e.Code)
			}
		})
	}
}

func TestBoardCommandsMapErrors(t *testing.T) {
	svc := &stubLessons{replay: playback.ErrNoLesson, snap: playback.Snapshot{Phase: playback.PhasePaused, StepCount: 3}}
	r := newTestEngine(t, svc)

	rec := do(r, http.MethodPost, "/api/boards/b1/replay", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("replay: want=409 got=%d", rec.Code)
	}

	rec = do(r, http.MethodPost, "/api/boards/b1/autoplay", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"auto_play":true`) {
		t.Fatalf("autoplay: code=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodPost, "/api/boards/b1/clear", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear: want=204 got=%d", rec.Code)
	}

	rec = do(r, http.MethodGet, "/api/boards/b1", "")
	var out struct {
		Board playback.Snapshot `json:"board"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.Board.Phase != playback.PhasePaused || out.Board.StepCount != 3 {
		t.Fatalf("board: got=%+v err=%v", out.Board, err)
	}
}

func TestAutoplaySetsExplicitValue(t *testing.T) {
	svc := &stubLessons{autoplay: true}
	r := newTestEngine(t, svc)

	for i := 0; i < 2; i++ {
		rec := do(r, http.MethodPost, "/api/boards/b1/autoplay", `{"auto_play":false}`)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"auto_play":false`) {
			t.Fatalf("set %d: code=%d body=%s", i, rec.Code, rec.Body.String())
		}
	}
	if svc.setCalls != 2 || svc.autoplay {
		t.Fatalf("set calls: want=2 got=%d autoplay=%v", svc.setCalls, svc.autoplay)
	}
	if rec := do(r, http.MethodPost, "/api/boards/b1/autoplay", `{"auto_play":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed: want=400 got=%d", rec.Code)
	}
}

func TestForgetLessons(t *testing.T) {
	svc := &stubLessons{}
	r := newTestEngine(t, svc)
	rec := do(r, http.MethodDelete, "/api/boards/b1/lessons", "")
	if rec.Code != http.StatusNoContent || svc.forgot != "b1" {
		t.Fatalf("forget: code=%d board=%q", rec.Code, svc.forgot)
	}
}

func TestLessonHistoryAndLoad(t *testing.T) {
	id := uuid.New()
	svc := &stubLessons{lessons: map[uuid.UUID]*domain.LessonRecord{
		id: {ID: id, BoardID: "b1", Prompt: "cells", Language: "English", Steps: []byte(`[{"content":"<h1>x</h1>","spoken":"Hi.","visual_type":"markup"}]`), StepCount: 1},
	}}
	r := newTestEngine(t, svc)

	rec := do(r, http.MethodGet, "/api/boards/b1/lessons?limit=5", "")
	if rec.Code != http.StatusOK || svc.limit != 5 || !strings.Contains(rec.Body.String(), id.String()) {
		t.Fatalf("history: code=%d limit=%d body=%s", rec.Code, svc.limit, rec.Body.String())
	}
	if rec := do(r, http.MethodGet, "/api/boards/b1/lessons?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: want=400 got=%d", rec.Code)
	}

	rec = do(r, http.MethodPost, "/api/boards/b1/lessons/"+id.String()+"/load", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("load: want=200 got=%d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/boards/b2/lessons/"+id.String()+"/load", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("load other board: want=404 got=%d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/boards/b1/lessons/nope/load", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("load bad id: want=400 got=%d", rec.Code)
	}

	rec = do(r, http.MethodGet, "/api/lessons/"+id.String(), "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"spoken":"Hi."`) {
		t.Fatalf("get lesson: code=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(r, http.MethodGet, "/api/lessons/"+uuid.New().String(), "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != "not_found" {
		t.Fatalf("missing lesson: code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestListVoices(t *testing.T) {
	r := newTestEngine(t, &stubLessons{})
	rec := do(r, http.MethodGet, "/api/voices?language=Hindi", "")
	var out services.VoiceChoice
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Language != domain.LanguageHindi || out.Selected == nil || out.Selected.ID != "v1" {
		t.Fatalf("voices: got=%+v", out)
	}
}
