package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Config)) Client {
	t.Helper()
	log, _ := logger.New("test")
	temp := 0.7
	cfg := Config{
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Model:       "gpt-test",
		ImageModel:  "gpt-image-1",
		SpeechModel: "tts-test",
		SpeechVoice: "alloy",
		Timeout:     5 * time.Second,
		MaxRetries:  1,
		Temperature: &temp,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(log, cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeOutputText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"output": []any{map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "output_text",
				"text": text,
			}},
		}},
		"usage": map[string]any{"input_tokens": 10, "output_tokens": 20},
	})
}

func TestGenerateStructuredTextReturnsRawOutput(t *testing.T) {
	var gotReq responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path: want=/v1/responses got=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header: got=%q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		writeOutputText(w, "```json\n{\"steps\": []}\n```")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	text, err := c.GenerateStructuredText(context.Background(), "be a teacher", "photosynthesis", "lesson", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateStructuredText: %v", err)
	}
	if !strings.Contains(text, "```json") {
		t.Fatalf("raw text should be returned untouched, got=%q", text)
	}
	if gotReq.Model != "gpt-test" {
		t.Fatalf("model: want=gpt-test got=%s", gotReq.Model)
	}
	if gotReq.Text.Format["type"] != "json_schema" || gotReq.Text.Format["name"] != "lesson" {
		t.Fatalf("format: got=%v", gotReq.Text.Format)
	}
	if len(gotReq.Input) != 2 || gotReq.Input[0].Role != "system" {
		t.Fatalf("input: got=%v", gotReq.Input)
	}
}

func TestTemperatureRejectedRetriesWithout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		hasTemp := strings.Contains(string(body), "temperature")
		if n == 1 {
			if !hasTemp {
				t.Errorf("first call should carry temperature")
			}
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`))
			return
		}
		if hasTemp {
			t.Errorf("retry should omit temperature")
		}
		writeOutputText(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	obj, err := c.GenerateJSON(context.Background(), "sys", "user", "x", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["ok"] != true {
		t.Fatalf("decoded: got=%v", obj)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls: want=2 got=%d", got)
	}
}

func TestRetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeOutputText(w, `{"steps":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	if _, err := c.GenerateStructuredText(context.Background(), "s", "u", "lesson", map[string]any{}); err != nil {
		t.Fatalf("GenerateStructuredText: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls: want=2 got=%d", got)
	}
}

func TestGenerateImageDecodesAndMapsAspect(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var gotReq imagesGenerationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{map[string]any{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	img, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "a leaf", AspectRatio: "4:3"})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(img.Bytes) != string(png) || img.MimeType != "image/png" {
		t.Fatalf("image: got bytes=%v mime=%s", img.Bytes, img.MimeType)
	}
	if gotReq.Size != "1536x1024" {
		t.Fatalf("size: want=1536x1024 got=%s", gotReq.Size)
	}
	if gotReq.ResponseFormat != "" {
		t.Fatalf("gpt-image models should not send response_format, got=%q", gotReq.ResponseFormat)
	}
}

func TestGenerateImageWithoutDataIsErrNoImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "a leaf"})
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("err: want=ErrNoImage got=%v", err)
	}
}

func TestSynthesizeSpeech(t *testing.T) {
	var gotReq speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path: got=%s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	sp, err := c.SynthesizeSpeech(context.Background(), SpeechRequest{Text: "Hello there.", Speed: 9})
	if err != nil {
		t.Fatalf("SynthesizeSpeech: %v", err)
	}
	if string(sp.Bytes) != "ID3-audio" || sp.MimeType != "audio/mpeg" {
		t.Fatalf("speech: got=%q mime=%s", sp.Bytes, sp.MimeType)
	}
	if gotReq.Voice != "alloy" || gotReq.Speed != 0 || gotReq.ResponseFormat != "mp3" {
		t.Fatalf("request: got=%+v", gotReq)
	}
}

func TestSizeForAspect(t *testing.T) {
	cases := map[string]string{"4:3": "1536x1024", "9:16": "1024x1536", "1:1": "1024x1024", "": "1024x1024"}
	for in, want := range cases {
		if got := SizeForAspect(in); got != want {
			t.Fatalf("SizeForAspect(%q): want=%s got=%s", in, want, got)
		}
	}
}
