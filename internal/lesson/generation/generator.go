// Package generation asks the text-generation service for a raw lesson.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/prompts"
	"github.com/yungbote/blackboard-backend/internal/observability"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

const schemaName = "blackboard_lesson"

// TextGenerator is the structured-output call the generator needs; openai.Client satisfies it.
type TextGenerator interface {
	GenerateStructuredText(ctx context.Context, system, user, schemaName string, schema map[string]any) (string, error)
}

type Config struct {
	MinSteps int
	MaxSteps int
}

type Generator struct {
	log       *logger.Logger
	llm       TextGenerator
	catalogue *prompts.Catalogue
	cfg       Config
}

func New(log *logger.Logger, llm TextGenerator, catalogue *prompts.Catalogue, cfg Config) *Generator {
	if cfg.MinSteps <= 0 {
		cfg.MinSteps = 8
	}
	if cfg.MaxSteps < cfg.MinSteps {
		cfg.MaxSteps = cfg.MinSteps
	}
	if catalogue == nil {
		catalogue = prompts.Builtin()
	}
	return &Generator{
		log:       log.With("service", "LessonGenerator"),
		llm:       llm,
		catalogue: catalogue,
		cfg:       cfg,
	}
}

// Generate returns the service's raw output text, unparsed. Parse failures are
// the content pipeline's concern; an error here means the call itself failed.
func (g *Generator) Generate(ctx context.Context, prompt string, lang domain.Language) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt required")
	}
	if g.llm == nil {
		return "", errors.New("text generation service not configured")
	}

	ctx, span := observability.Tracer().Start(ctx, "lesson.generate")
	defer span.End()
	span.SetAttributes(attribute.String("lesson.language", string(lang)))

	system, err := g.catalogue.TeacherSystem(prompts.SystemInput{
		Persona:  g.catalogue.Persona(lang),
		MinSteps: g.cfg.MinSteps,
		MaxSteps: g.cfg.MaxSteps,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render prompt")
		return "", err
	}

	start := time.Now()
	raw, err := g.llm.GenerateStructuredText(ctx, system, prompt, schemaName, LessonSchema())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return "", fmt.Errorf("generate lesson: %w", err)
	}
	g.log.Debug("lesson generated",
		"language", lang,
		"raw_bytes", len(raw),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return raw, nil
}

// LessonSchema is the strict JSON schema sent with the generation request.
func LessonSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"steps"},
		"properties": map[string]any{
			"steps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"visualType", "board", "spoken"},
					"properties": map[string]any{
						"visualType": map[string]any{
							"type":        "string",
							"enum":        []string{"html", "image"},
							"description": "Use 'image' for realistic photos OR chalk diagrams. Use 'html' for text explanations.",
						},
						"board": map[string]any{
							"type":        "string",
							"description": "If 'html': HTML content in ENGLISH. If 'image': a prompt description (e.g., 'A chalk diagram of...').",
						},
						"spoken": map[string]any{
							"type":        "string",
							"description": "Explanation in the requested spoken language. PLAIN TEXT ONLY. NO HTML TAGS.",
						},
					},
				},
			},
		},
	}
}
