package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrNoImage means the provider answered but returned no usable image data.
var ErrNoImage = errors.New("no image returned")

type ImageRequest struct {
	Prompt string
	// "4:3", "16:9", "1:1", ... Ignored when OPENAI_IMAGE_SIZE pins a size.
	AspectRatio string
}

type ImageGeneration struct {
	Bytes         []byte
	MimeType      string
	RevisedPrompt string
}

type imagesGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"` // b64_json|url
}

type imagesGenerationResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// SizeForAspect maps an aspect ratio onto the sizes the images endpoint accepts.
func SizeForAspect(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "4:3", "3:2", "16:9":
		return "1536x1024"
	case "3:4", "2:3", "9:16":
		return "1024x1536"
	default:
		return "1024x1024"
	}
}

func (c *client) GenerateImage(ctx context.Context, in ImageRequest) (ImageGeneration, error) {
	var out ImageGeneration
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return out, errors.New("image prompt required")
	}
	if c.imageModel == "" {
		return out, errors.New("missing OPENAI_IMAGE_MODEL")
	}

	size := c.imageSize
	if size == "" {
		size = SizeForAspect(in.AspectRatio)
	}
	responseFormat := "b64_json"
	if strings.HasPrefix(strings.ToLower(c.imageModel), "gpt-image-") {
		responseFormat = ""
	}
	req := imagesGenerationRequest{
		Model:          c.imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           size,
		ResponseFormat: responseFormat,
	}

	var resp imagesGenerationResponse
	err := c.doJSON(ctx, c.httpClient, "/v1/images/generations", req.Model, req, &resp)
	if err != nil && isUnsupportedParam(err, "response_format") {
		req.ResponseFormat = ""
		err = c.doJSON(ctx, c.httpClient, "/v1/images/generations", req.Model, req, &resp)
	}
	if err != nil {
		return out, err
	}
	if len(resp.Data) == 0 {
		return out, ErrNoImage
	}
	item := resp.Data[0]
	out.RevisedPrompt = strings.TrimSpace(item.RevisedPrompt)
	if b64 := strings.TrimSpace(item.B64JSON); b64 != "" {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return out, fmt.Errorf("decode image base64: %w", err)
		}
		if len(raw) == 0 {
			return out, ErrNoImage
		}
		out.Bytes = raw
		out.MimeType = "image/png"
		return out, nil
	}
	u := strings.TrimSpace(item.URL)
	if u == "" {
		return out, ErrNoImage
	}
	b, ct, err := c.downloadBytes(ctx, u)
	if err != nil {
		return out, fmt.Errorf("download generated image: %w", err)
	}
	if len(b) == 0 {
		return out, ErrNoImage
	}
	out.Bytes = b
	out.MimeType = strings.TrimSpace(strings.Split(ct, ";")[0])
	if out.MimeType == "" {
		out.MimeType = "image/png"
	}
	return out, nil
}
