package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/blackboard-backend/internal/data/db"
	apphttp "github.com/yungbote/blackboard-backend/internal/http"
	"github.com/yungbote/blackboard-backend/internal/observability"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
	"github.com/yungbote/blackboard-backend/internal/realtime"
	"github.com/yungbote/blackboard-backend/internal/realtime/bus"
)

// Version is stamped at build time.
var Version = "dev"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Handlers Handlers
	SSEHub   *realtime.SSEHub
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     Version,
	})

	dbs, err := db.Open(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbs.AutoMigrateAll(); err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := dbs.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}

	ssehub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(log, cfg, clients, reposet, ssehub)
	if err != nil {
		clients.Close()
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset, ssehub)
	server := apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		AllowedOrigins:  cfg.CORSOrigins,
		Metrics:         metrics,
		BoardHandler:    handlerset.Board,
		LessonHandler:   handlerset.Lesson,
		RealtimeHandler: handlerset.Realtime,
		HealthHandler:   handlerset.Health,
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Handlers:     handlerset,
		SSEHub:       ssehub,
		Server:       server,
		Metrics:      metrics,
		dbService:    dbs,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP and the background loops until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}

	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	if rdb := bus.Client(a.Clients.Bus); rdb != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, rdb)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(gctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start board bus forwarder: %w", err)
		}
	}
	g.Go(func() error { return a.Services.Notifier.Run(gctx) })
	g.Go(func() error { return a.Services.Boards.Run(gctx) })
	g.Go(func() error {
		return a.Server.Run(gctx, net.JoinHostPort("", a.Cfg.Port))
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Lesson != nil {
		a.Services.Lesson.Wait()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
