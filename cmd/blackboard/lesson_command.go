package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/generation"
	"github.com/yungbote/blackboard-backend/internal/lesson/pipeline"
	"github.com/yungbote/blackboard-backend/internal/lesson/prompts"
	"github.com/yungbote/blackboard-backend/internal/platform/openai"
)

func newLessonCommand(ctx *commandContext) *cobra.Command {
	var language string
	var withImages bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "lesson <prompt>",
		Short: "Generate a lesson plan once and print its steps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return errors.New("prompt is required")
			}
			cfg, log, err := ctx.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			client, err := openai.NewClient(log, cfg.OpenAI)
			if err != nil {
				return err
			}
			catalogue := prompts.Load(log)
			lang := domain.ParseLanguage(language)

			var images pipeline.ImageGenerator
			if withImages {
				images = pipeline.NewOpenAIImages(client)
			}
			gen := generation.New(log, client, catalogue, cfg.Generation)
			pipe := pipeline.New(log, images, pipeline.InlineStore{}, catalogue, cfg.Pipeline)

			raw, err := gen.Generate(cmd.Context(), prompt, lang)
			var plan domain.LessonPlan
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "generation failed: %v\n", err)
				plan = pipe.GenerationFailurePlan(lang)
			} else if plan, err = pipe.ResolveResponse(cmd.Context(), raw, lang); err != nil {
				return err
			}
			plan.Prompt = prompt

			if asJSON {
				return writeJSON(cmd, plan)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPlan(plan))
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", string(domain.LanguageEnglish), "Lesson language (English, Hindi, Tamil)")
	cmd.Flags().BoolVar(&withImages, "images", false, "Generate images for image steps")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

func renderPlan(plan domain.LessonPlan) string {
	rows := make([][]string, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(step.VisualType),
			truncate(step.Spoken, 60),
			truncate(step.Content, 40),
		})
	}
	out := renderTable(
		[]string{"#", "Visual", "Spoken", "Content"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	)
	if plan.Fallback {
		out += "\n(fallback plan)"
	}
	return out
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
