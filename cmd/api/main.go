package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/devarena/devarena-api/internal/config"
	"github.com/devarena/devarena-api/internal/database"
	"github.com/devarena/devarena-api/internal/handler"
	"github.com/devarena/devarena-api/internal/middleware"
	"github.com/devarena/devarena-api/internal/models"
	"github.com/devarena/devarena-api/internal/observability"
	"github.com/devarena/devarena-api/internal/repository"
	"github.com/devarena/devarena-api/internal/router"
	"github.com/devarena/devarena-api/internal/service"
	"github.com/devarena/devarena-api/pkg/judge"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Question{}, &models.Submission{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// NATS is optional; the service degrades to not publishing events.
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, lifecycle events disabled")
		} else {
			defer natsConn.Close()
		}
	}

	dispatcher, cleanup := buildDispatcher(cfg, logger)
	defer cleanup()

	validate := validator.New(validator.WithRequiredStructEnabled())

	questionRepo := repository.NewQuestionRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	submissionService := service.NewSubmissionService(questionRepo, submissionRepo, dispatcher, redisClient, natsConn, validate, logger, service.SubmissionServiceConfig{
		CacheTTL: cfg.SubmissionCacheTTL,
	})

	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	app.Get("/metrics", observability.MetricsHandler())
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: submissionHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, submissionService)
}

// buildDispatcher assembles the execution backends in fallback order: remote
// judge first, local sandbox second.
func buildDispatcher(cfg config.Config, logger zerolog.Logger) (*judge.Dispatcher, func()) {
	backends := make([]judge.Backend, 0, 2)
	cleanup := func() {}

	backends = append(backends, judge.NewJudge0Client(judge.Judge0Config{
		BaseURL:         cfg.Judge0URL,
		APIKey:          cfg.Judge0APIKey,
		APIHost:         cfg.Judge0APIHost,
		PollInterval:    cfg.Judge0PollInterval,
		MaxPollAttempts: cfg.Judge0MaxPollAttempts,
		TestCaseDelay:   cfg.Judge0TestCaseDelay,
		Logger:          logger,
	}))

	runner, err := judge.NewDockerRunner(judge.DockerConfig{
		Host:          cfg.DockerHost,
		Timeout:       cfg.TestCaseTimeout,
		MemoryLimitMB: int64(cfg.SandboxMemoryMB),
		CPUShares:     int64(cfg.SandboxCPUShares),
		Logger:        logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("docker unavailable, local sandbox disabled")
	} else {
		backends = append(backends, judge.NewSandbox(runner, judge.SandboxConfig{
			Image:           cfg.SandboxImage,
			TestCaseTimeout: cfg.TestCaseTimeout,
			MemoryLimitMB:   int64(cfg.SandboxMemoryMB),
			CPUShares:       int64(cfg.SandboxCPUShares),
			Logger:          logger,
		}))
		cleanup = func() {
			if err := runner.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close docker client")
			}
		}
	}

	return judge.NewDispatcher(logger, backends...), cleanup
}

func waitForShutdown(app *fiber.App, submissions service.SubmissionService) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	// Let in-flight judging tasks finalize before the process exits.
	submissions.Wait()

	log.Println("server stopped")
}
