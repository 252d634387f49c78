package app

import (
	"fmt"

	"github.com/yungbote/blackboard-backend/internal/domain"
	"github.com/yungbote/blackboard-backend/internal/lesson/generation"
	"github.com/yungbote/blackboard-backend/internal/lesson/narration"
	"github.com/yungbote/blackboard-backend/internal/lesson/pipeline"
	"github.com/yungbote/blackboard-backend/internal/lesson/prompts"
	"github.com/yungbote/blackboard-backend/internal/platform/clock"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
	"github.com/yungbote/blackboard-backend/internal/realtime"
	"github.com/yungbote/blackboard-backend/internal/services"
)

type Services struct {
	Catalogue *prompts.Catalogue
	Pipeline  *pipeline.Pipeline
	Notifier  *services.Notifier
	Boards    *services.BoardRegistry
	Lesson    services.LessonService
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, repos Repos, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	catalogue := prompts.Load(log)
	voices := narration.VoicesFromCatalogue(catalogue.Voices)
	voiceLocales := func(lang domain.Language) []string {
		return catalogue.Persona(lang).VoiceLocales
	}

	gen := generation.New(log, clients.OpenAI, catalogue, cfg.Generation)
	pipe := pipeline.New(log, pipeline.NewOpenAIImages(clients.OpenAI), clients.MediaStore, catalogue, cfg.Pipeline)

	var emit services.SSEEmitter = &services.HubEmitter{Hub: hub}
	if clients.Bus != nil {
		emit = &services.BusEmitter{Bus: clients.Bus, Log: log}
	}
	notifier := services.NewBoardNotifier(log, emit)

	var synth narration.Synthesizer
	if cfg.Synthesize {
		synth = narration.NewOpenAISpeech(clients.OpenAI, clients.MediaStore)
	}
	clk := clock.Real()
	playbackCfg := cfg.Playback
	playbackCfg.VoiceLocales = voiceLocales

	boards := services.NewBoardRegistry(log, clk, notifier, services.RegistryConfig{
		IdleTTL:  cfg.BoardIdleTTL,
		Playback: playbackCfg,
		NewNarrator: func() narration.Service {
			return narration.NewPaced(log, clk, voices, synth, cfg.Narration)
		},
	})

	lessonSvc, err := services.NewLessonService(log, services.LessonServiceDeps{
		Generator:    gen,
		Resolver:     pipe,
		Boards:       boards,
		Notifier:     notifier,
		Lessons:      repos.LessonPlan,
		Voices:       narration.NewPaced(log, clk, voices, nil, cfg.Narration),
		VoiceLocales: voiceLocales,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init lesson service: %w", err)
	}

	return Services{
		Catalogue: catalogue,
		Pipeline:  pipe,
		Notifier:  notifier,
		Boards:    boards,
		Lesson:    lessonSvc,
	}, nil
}
