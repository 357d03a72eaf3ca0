package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codemeet-api/internal/config"
	"github.com/noah-isme/codemeet-api/internal/database"
	"github.com/noah-isme/codemeet-api/internal/handler"
	"github.com/noah-isme/codemeet-api/internal/middleware"
	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/repository"
	"github.com/noah-isme/codemeet-api/internal/router"
	"github.com/noah-isme/codemeet-api/internal/service"
	"github.com/noah-isme/codemeet-api/pkg/coderunner"
	"github.com/noah-isme/codemeet-api/pkg/docker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	runner, sandbox, err := buildRunner(cfg.Runner, logger)
	if err != nil {
		log.Fatalf("failed to start code runner: %v", err)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close code runner")
		}
		if sandbox != nil {
			_ = sandbox.Close()
		}
	}()

	validate := validator.New(validator.WithRequiredStructEnabled())

	accountRepo := repository.NewAccountRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	dashboardService := service.NewDashboardService(accountRepo, questionRepo, roomRepo, redisClient, cfg.DashboardCacheTTL, logger)
	events := service.NewRunEventPublisher(redisClient, cfg.EventsChannel, natsConn, logger, func(event service.RunEvent) {
		if event.Type == service.EventQuestionSolved {
			dashboardService.Invalidate(context.Background())
		}
	})

	accountService := service.NewAccountService(accountRepo, validate, logger)
	roomService := service.NewRoomService(roomRepo, validate, logger)
	commentService := service.NewCommentService(commentRepo, roomRepo, validate, logger)
	questionService := service.NewQuestionService(questionRepo, accountRepo, events, redisClient, cfg.QuestionsCacheTTL, validate, logger)
	codeRunService := service.NewCodeRunService(runner, questionService, events, validate, logger, service.CodeRunConfig{
		MaxTimeout: cfg.Runner.MaxTimeout,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSOrigins,
		StackTraces:  !cfg.Production(),
	})
	router.Register(app, cfg, router.Dependencies{
		AccountHandler:   handler.NewAccountHandler(accountService, logger),
		RoomHandler:      handler.NewRoomHandler(roomService, commentService, logger),
		QuestionHandler:  handler.NewQuestionHandler(questionService, logger),
		DashboardHandler: handler.NewDashboardHandler(dashboardService, logger),
		CodeRunHandler:   handler.NewCodeRunHandler(codeRunService, logger),
		JWTMiddleware: middleware.JWTProtected(middleware.JWTConfig{
			Secret:   cfg.IdentitySecret,
			Issuer:   cfg.IdentityIssuer,
			Audience: cfg.IdentityAudience,
		}),
		RoleMiddleware: middleware.ResolveRole(accountService.Role),
		RunLimiter:     middleware.RateLimit("code_runs", cfg.Runner.RateLimitPerMin, cfg.Runner.RateLimitDuration),
	})

	eventsCtx, stopEvents := context.WithCancel(context.Background())
	defer stopEvents()
	events.Start(eventsCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

// buildRunner wires one backend per language for the configured runner mode.
// The returned sandbox is nil for the process backend.
func buildRunner(cfg config.RunnerConfig, logger zerolog.Logger) (*coderunner.Runner, *docker.ContainerSandbox, error) {
	backends := make(map[coderunner.Language]coderunner.Backend, 2)
	var sandbox *docker.ContainerSandbox

	switch cfg.Backend {
	case config.RunnerBackendDocker:
		sb, err := docker.NewSandbox(docker.Config{
			Host:          cfg.DockerHost,
			MemoryLimitMB: int64(cfg.MemoryMB),
			CPUShares:     int64(cfg.CPUShares),
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sb.Ping(pingCtx); err != nil {
			_ = sb.Close()
			return nil, nil, fmt.Errorf("docker daemon unreachable: %w", err)
		}
		sandbox = sb

		images := map[coderunner.Language]string{
			coderunner.LanguageJavaScript: cfg.JSImage,
			coderunner.LanguagePython:     cfg.PythonImage,
		}
		for lang, image := range images {
			backend, err := coderunner.NewContainerBackend(coderunner.ContainerConfig{
				Language:      lang,
				Sandbox:       sb,
				Image:         image,
				WorkingDir:    sb.WorkingDir(),
				WorkspaceRoot: cfg.WorkspaceRoot,
				MemoryLimitMB: int64(cfg.MemoryMB),
				CPUShares:     int64(cfg.CPUShares),
				Logger:        logger,
			})
			if err != nil {
				_ = sb.Close()
				return nil, nil, err
			}
			backends[lang] = backend
		}

	default:
		node, err := coderunner.NewProcessBackend(coderunner.ProcessConfig{
			Language:      coderunner.LanguageJavaScript,
			Command:       []string{cfg.NodeBin},
			MemoryLimitMB: cfg.MemoryMB,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, err
		}
		backends[coderunner.LanguageJavaScript] = node

		pool, err := coderunner.NewPoolBackend(coderunner.PoolConfig{
			Process: coderunner.ProcessConfig{
				Language:      coderunner.LanguagePython,
				Command:       []string{cfg.PythonBin, "-u"},
				MemoryLimitMB: cfg.MemoryMB,
				Logger:        logger,
			},
			Size:    cfg.PythonPoolSize,
			MaxRuns: cfg.PythonMaxRuns,
		})
		if err != nil {
			_ = node.Close()
			return nil, nil, err
		}
		warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pool.Warm(warmCtx); err != nil {
			logger.Warn().Err(err).Msg("python pool warm-up failed; workers will start on demand")
		}
		backends[coderunner.LanguagePython] = pool
	}

	runner := coderunner.NewRunner(coderunner.Config{
		Backends: backends,
		Timeouts: map[coderunner.Language]time.Duration{
			coderunner.LanguageJavaScript: cfg.JSTimeout,
			coderunner.LanguagePython:     cfg.PythonTimeout,
		},
		Logger: logger,
	})
	return runner, sandbox, nil
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
