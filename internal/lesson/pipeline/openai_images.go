package pipeline

import (
	"context"
	"errors"

	"github.com/yungbote/blackboard-backend/internal/platform/openai"
)

type imageProvider interface {
	GenerateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageGeneration, error)
}

// OpenAIImages adapts the OpenAI images endpoint to ImageGenerator.
type OpenAIImages struct {
	client imageProvider
}

func NewOpenAIImages(client imageProvider) *OpenAIImages {
	return &OpenAIImages{client: client}
}

func (o *OpenAIImages) GenerateImage(ctx context.Context, req ImageRequest) (Image, error) {
	gen, err := o.client.GenerateImage(ctx, openai.ImageRequest{Prompt: req.Prompt, AspectRatio: req.AspectRatio})
	if errors.Is(err, openai.ErrNoImage) {
		return Image{}, ErrNoImage
	}
	if err != nil {
		return Image{}, err
	}
	return Image{Bytes: gen.Bytes, MimeType: gen.MimeType}, nil
}
