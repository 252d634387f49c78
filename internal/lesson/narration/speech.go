package narration

import (
	"context"
	"fmt"

	"github.com/yungbote/blackboard-backend/internal/lesson/pipeline"
	"github.com/yungbote/blackboard-backend/internal/platform/openai"
)

type speechProvider interface {
	SynthesizeSpeech(ctx context.Context, req openai.SpeechRequest) (openai.Speech, error)
}

// OpenAISpeech synthesizes narration with the OpenAI speech endpoint and stores
// the audio in the lesson media store.
type OpenAISpeech struct {
	client speechProvider
	store  pipeline.MediaStore
}

func NewOpenAISpeech(client speechProvider, store pipeline.MediaStore) *OpenAISpeech {
	if store == nil {
		store = pipeline.InlineStore{}
	}
	return &OpenAISpeech{client: client, store: store}
}

func (s *OpenAISpeech) Synthesize(ctx context.Context, u Utterance) (Audio, error) {
	speech, err := s.client.SynthesizeSpeech(ctx, openai.SpeechRequest{
		Text:   u.Text,
		Voice:  u.Voice.ID,
		Speed:  u.Rate,
		Format: "wav",
	})
	if err != nil {
		return Audio{}, fmt.Errorf("synthesize speech: %w", err)
	}
	ref, err := s.store.Put(ctx, pipeline.Media{Bytes: speech.Bytes, MimeType: speech.MimeType}, pipeline.MediaKindAudio)
	if err != nil {
		return Audio{}, fmt.Errorf("store speech: %w", err)
	}
	return Audio{URL: ref, MimeType: speech.MimeType, Duration: AudioDuration(speech.Bytes, speech.MimeType)}, nil
}
