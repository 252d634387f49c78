package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type SpeechRequest struct {
	Text  string
	Voice string
	// 0.25..4.0; zero means provider default.
	Speed float64
	// mp3 (default), opus, aac, flac, wav, pcm.
	Format string
}

type Speech struct {
	Bytes    []byte
	MimeType string
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
}

var speechMimeTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/ogg",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"pcm":  "audio/pcm",
}

func (c *client) SynthesizeSpeech(ctx context.Context, in SpeechRequest) (Speech, error) {
	var out Speech
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return out, errors.New("speech text required")
	}
	if c.speechModel == "" {
		return out, errors.New("missing OPENAI_SPEECH_MODEL")
	}
	voice := strings.TrimSpace(in.Voice)
	if voice == "" {
		voice = c.speechVoice
	}
	format := strings.ToLower(strings.TrimSpace(in.Format))
	if _, ok := speechMimeTypes[format]; !ok {
		format = "mp3"
	}
	speed := in.Speed
	if speed != 0 && (speed < 0.25 || speed > 4) {
		speed = 0
	}

	req := speechRequest{
		Model:          c.speechModel,
		Input:          text,
		Voice:          voice,
		Speed:          speed,
		ResponseFormat: format,
	}
	resp, raw, err := c.doRaw(ctx, c.httpClient, http.MethodPost, "/v1/audio/speech", req.Model, req)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, errors.New("empty speech response")
	}
	out.Bytes = raw
	out.MimeType = speechMimeTypes[format]
	if ct := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]); strings.HasPrefix(ct, "audio/") {
		out.MimeType = ct
	}
	return out, nil
}
