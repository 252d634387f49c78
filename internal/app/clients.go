package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/blackboard-backend/internal/lesson/pipeline"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
	"github.com/yungbote/blackboard-backend/internal/platform/openai"
	"github.com/yungbote/blackboard-backend/internal/realtime/bus"
)

type Clients struct {
	OpenAI     openai.Client
	Bus        bus.Bus
	MediaStore pipeline.MediaStore
	closeMedia func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	var b bus.Bus
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rb, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis board bus: %w", err)
		}
		b = rb
	} else {
		log.Info("REDIS_ADDR not set; board events stay in this process")
		b = bus.NewLocalBus()
	}

	// Openai
	oa, err := openai.NewClient(log, cfg.OpenAI)
	if err != nil {
		_ = b.Close()
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	// Gcs
	store, closeMedia, err := resolveMediaStore(ctx, log, cfg.Storage)
	if err != nil {
		_ = b.Close()
		return Clients{}, err
	}

	return Clients{
		OpenAI:     oa,
		Bus:        b,
		MediaStore: store,
		closeMedia: closeMedia,
	}, nil
}

func (c Clients) Close() {
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.closeMedia != nil {
		_ = c.closeMedia()
	}
}
