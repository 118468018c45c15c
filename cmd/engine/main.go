package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-engine/internal/api/http"
	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/engine"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/policy"
	"github.com/spec-kit/sla-engine/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketSLARepository(pool)
	policyRepo := repository.NewPolicyRepository(pool)
	escalationRepo := repository.NewEscalationEventRepository(pool)
	ruleRepo := repository.NewRuleRepository(pool)
	calendarRepo := repository.NewCalendarRepository(pool)

	seedCalendars(ctx, cfg.Calendar.SeedDir, calendarRepo, logger)

	metrics := observability.NewMetrics()
	resolver := policy.NewResolver(policyRepo, redis.Client, logger)
	calendarEngine := calendar.NewEngine(calendarRepo)
	collaborator := engine.NewLoggingCollaborator(logger)
	actionDispatcher := engine.NewDispatcher(collaborator, collaborator, cfg.Dispatch, logger)

	pipeline := engine.NewPipeline(engine.PipelineDependencies{
		TicketRepo:     ticketRepo,
		PolicyRepo:     policyRepo,
		EscalationRepo: escalationRepo,
		RuleRepo:       ruleRepo,
		Resolver:       resolver,
		Calendar:       calendarEngine,
		Dispatcher:     actionDispatcher,
		Logger:         logger,
	})

	eventBus := events.NewInMemoryDispatcher()
	engineService := engine.NewService(ticketRepo, pipeline, resolver, eventBus, logger)
	engineService.RegisterHandlers()

	sweeper := engine.NewSweeper(ticketRepo, pipeline, redis.Client, cfg.Sweep, metrics, logger)
	go sweeper.Start(ctx)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		SLA:    handlers.NewSLAHandler(ticketRepo, escalationRepo),
		Events: handlers.NewEventsHandler(eventBus),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

// seedCalendars loads YAML calendar definitions and upserts them so a fresh
// deployment has working calendars before any policy references one.
func seedCalendars(ctx context.Context, dir string, repo repository.CalendarRepository, logger *zap.Logger) {
	seeds, err := calendar.LoadSeedDir(dir)
	if err != nil {
		logger.Fatal("failed to load calendar seeds", zap.String("dir", dir), zap.Error(err))
	}
	for i := range seeds {
		if err := repo.Upsert(ctx, &seeds[i]); err != nil {
			logger.Fatal("failed to seed calendar", zap.String("calendar_id", seeds[i].ID), zap.Error(err))
		}
	}
	if len(seeds) > 0 {
		logger.Info("calendar seeds applied", zap.Int("count", len(seeds)))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
