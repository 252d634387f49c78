// Package pipeline turns a generation response into a playback-ready lesson plan:
// it parses the raw steps and resolves image steps into image references.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/prompts"
	"github.com/yungbote/blackboard-backend/internal/observability"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

const (
	FallbackImageUnavailable = "<h1>[Image Unavailable]</h1><p>Visual could not be generated.</p>"
	FallbackImageError       = "<h1>[Image Error]</h1>"

	imageAspectRatio = "4:3"
)

// ErrNoImage means the image service answered without usable image data.
var ErrNoImage = errors.New("image service returned no image data")

type ImageRequest struct {
	Prompt      string
	AspectRatio string
}

type Image struct {
	Bytes    []byte
	MimeType string
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (Image, error)
}

type Config struct {
	// MaxInflight bounds concurrent image calls across every Resolve sharing this Pipeline.
	MaxInflight int64
}

type Pipeline struct {
	log       *logger.Logger
	images    ImageGenerator
	store     MediaStore
	catalogue *prompts.Catalogue
	sem       *semaphore.Weighted
	now       func() time.Time
}

func New(log *logger.Logger, images ImageGenerator, store MediaStore, catalogue *prompts.Catalogue, cfg Config) *Pipeline {
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 1
	}
	if store == nil {
		store = InlineStore{}
	}
	if catalogue == nil {
		catalogue = prompts.Builtin()
	}
	return &Pipeline{
		log:       log.With("service", "LessonPipeline"),
		images:    images,
		store:     store,
		catalogue: catalogue,
		sem:       semaphore.NewWeighted(cfg.MaxInflight),
		now:       time.Now,
	}
}

// ResolveResponse parses raw and resolves the result. A response that cannot be
// parsed yields the one-step fallback plan for lang instead of an error; only
// context cancellation is returned as an error.
func (p *Pipeline) ResolveResponse(ctx context.Context, raw string, lang domain.Language) (domain.LessonPlan, error) {
	steps, err := Parse(raw)
	if err != nil {
		p.log.Warn("lesson response could not be parsed; using fallback plan",
			"language", lang,
			"raw_bytes", len(raw),
			"error", err,
		)
		plan := p.ParseFailurePlan(lang)
		observability.Current().IncLessonPlan("parse_fallback", string(lang), len(plan.Steps))
		return plan, nil
	}
	plan, err := p.Resolve(ctx, steps)
	if err != nil {
		return domain.LessonPlan{}, err
	}
	plan.Language = lang
	outcome := "ok"
	if plan.Empty() {
		outcome = "empty"
	}
	observability.Current().IncLessonPlan(outcome, string(lang), len(plan.Steps))
	return plan, nil
}

// Resolve converts raw steps into lesson steps, one at a time and in order.
// Image failures degrade to a markup placeholder for that step; the loop only
// stops early when ctx is done.
func (p *Pipeline) Resolve(ctx context.Context, steps []domain.RawStep) (domain.LessonPlan, error) {
	out := make([]domain.LessonStep, 0, len(steps))
	for i, raw := range steps {
		if err := ctx.Err(); err != nil {
			return domain.LessonPlan{}, err
		}
		if raw.VisualType != domain.VisualImage {
			out = append(out, domain.LessonStep{
				Content:    raw.Content,
				Spoken:     raw.Spoken,
				VisualType: domain.VisualMarkup,
			})
			continue
		}
		step, err := p.resolveImage(ctx, i, raw)
		if err != nil {
			return domain.LessonPlan{}, err
		}
		out = append(out, step)
	}
	return p.newPlan(out, false), nil
}

func (p *Pipeline) resolveImage(ctx context.Context, index int, raw domain.RawStep) (domain.LessonStep, error) {
	ctx, span := observability.Tracer().Start(ctx, "lesson.pipeline.image")
	defer span.End()
	span.SetAttributes(attribute.Int("lesson.step_index", index))

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return domain.LessonStep{}, err
	}
	start := time.Now()
	ref, err := p.generateAndStore(ctx, raw.Content)
	p.sem.Release(1)
	dur := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		observability.Current().ObserveImageGeneration("canceled", dur)
		return domain.LessonStep{}, ctxErr
	}

	switch {
	case err == nil:
		observability.Current().ObserveImageGeneration("ok", dur)
		return domain.LessonStep{Content: ref, Spoken: raw.Spoken, VisualType: domain.VisualImage}, nil
	case errors.Is(err, ErrNoImage):
		observability.Current().ObserveImageGeneration("unavailable", dur)
		span.SetAttributes(attribute.String("lesson.image_outcome", "unavailable"))
		p.log.Warn("image step has no image data; using placeholder", "step_index", index)
		return domain.LessonStep{Content: FallbackImageUnavailable, Spoken: raw.Spoken, VisualType: domain.VisualMarkup}, nil
	default:
		observability.Current().ObserveImageGeneration("error", dur)
		span.RecordError(err)
		span.SetStatus(codes.Error, "image generation")
		p.log.Warn("image step failed; using placeholder", "step_index", index, "error", err)
		return domain.LessonStep{Content: FallbackImageError, Spoken: raw.Spoken, VisualType: domain.VisualMarkup}, nil
	}
}

func (p *Pipeline) generateAndStore(ctx context.Context, description string) (string, error) {
	if p.images == nil {
		return "", errors.New("image service not configured")
	}
	img, err := p.images.GenerateImage(ctx, ImageRequest{
		Prompt:      p.catalogue.ImagePrompt(description),
		AspectRatio: imageAspectRatio,
	})
	if err != nil {
		return "", err
	}
	if len(img.Bytes) == 0 {
		return "", ErrNoImage
	}
	if strings.TrimSpace(img.MimeType) == "" {
		img.MimeType = "image/png"
	}
	return p.store.Put(ctx, Media{Bytes: img.Bytes, MimeType: img.MimeType}, MediaKindImage)
}

// ParseFailurePlan is the single-step plan shown when the response is unreadable.
func (p *Pipeline) ParseFailurePlan(lang domain.Language) domain.LessonPlan {
	persona := p.catalogue.Persona(lang)
	plan := p.newPlan([]domain.LessonStep{{
		Content:    persona.ParseFailureBoard,
		Spoken:     persona.ParseFailureSpoken,
		VisualType: domain.VisualMarkup,
	}}, true)
	plan.Language = lang
	return plan
}

// GenerationFailurePlan is the single-step plan shown when the generation call failed.
func (p *Pipeline) GenerationFailurePlan(lang domain.Language) domain.LessonPlan {
	persona := p.catalogue.Persona(lang)
	plan := p.newPlan([]domain.LessonStep{{
		Content:    persona.GenerationFailureBoard,
		Spoken:     persona.GenerationFailureSpoken,
		VisualType: domain.VisualMarkup,
	}}, true)
	plan.Language = lang
	observability.Current().IncLessonPlan("generation_fallback", string(lang), 1)
	return plan
}

func (p *Pipeline) newPlan(steps []domain.LessonStep, fallback bool) domain.LessonPlan {
	return domain.LessonPlan{
		ID:        uuid.New(),
		Steps:     steps,
		Fallback:  fallback,
		CreatedAt: p.now().UTC(),
	}
}
