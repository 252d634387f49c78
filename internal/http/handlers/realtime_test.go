package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/blackboard-backend/internal/lesson/playback"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
	"github.com/yungbote/blackboard-backend/internal/realtime"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

// readEvents returns the "event:" names seen on the stream until n are read.
func readEvents(t *testing.T, sc *bufio.Scanner, n int) []string {
	t.Helper()
	var out []string
	for len(out) < n && sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			out = append(out, strings.TrimPrefix(line, "event: "))
		}
	}
	if len(out) < n {
		t.Fatalf("stream ended after %v, want %d events (err=%v)", out, n, sc.Err())
	}
	return out
}

func TestBoardEventsStreamsSnapshotThenBroadcasts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewSSEHub(newTestLogger(t))
	h := NewRealtimeHandler(newTestLogger(t), hub, &stubLessons{snap: playback.Snapshot{Phase: playback.PhaseIdle}})

	r := gin.New()
	r.GET("/api/boards/:id/events", h.BoardEvents)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/boards/b7/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: want=text/event-stream got=%q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	if got := readEvents(t, sc, 1); got[0] != string(realtime.SSEEventBoardPhase) {
		t.Fatalf("first event: want=%s got=%s", realtime.SSEEventBoardPhase, got[0])
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("b7") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Broadcast(realtime.SSEMessage{Channel: "b7", Event: realtime.SSEEventLessonReady})
	hub.Broadcast(realtime.SSEMessage{Channel: "other", Event: realtime.SSEEventBoardReset})
	hub.Broadcast(realtime.SSEMessage{Channel: "b7", Event: realtime.SSEEventBoardProgress})

	got := readEvents(t, sc, 2)
	if got[0] != string(realtime.SSEEventLessonReady) || got[1] != string(realtime.SSEEventBoardProgress) {
		t.Fatalf("events: got=%v", got)
	}

	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Subscribers("b7") != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := hub.Subscribers("b7"); n != 0 {
		t.Fatalf("subscribers after disconnect: want=0 got=%d", n)
	}
}
