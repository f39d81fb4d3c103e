package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/huduma/answer-service/internal/config"
	"github.com/huduma/answer-service/internal/infrastructure"
	"github.com/huduma/answer-service/internal/interfaces"
	httpapi "github.com/huduma/answer-service/internal/interfaces/http"
	"github.com/huduma/answer-service/internal/logger"
	"github.com/huduma/answer-service/internal/repository"
	"github.com/huduma/answer-service/internal/usecases"
)

const limiterCleanupInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet.
		fallback, _ := logger.New("info", "json")
		fallback.WithError(err).Error("failed to load configuration", nil)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("answer service stopped with error", nil)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	persona, err := config.LoadPersona(cfg.Rules.File)
	if err != nil {
		return err
	}
	rules := usecases.NewRuleMatcher(persona.Greetings, persona.Facts)

	prompts := usecases.Prompts{
		Grounded:      persona.GroundedPrompt,
		Ungrounded:    persona.UngroundedPrompt,
		NoInformation: persona.NoInformation,
		HighTraffic:   persona.HighTraffic,
	}
	if cfg.Generator.UngroundedWithFacts {
		prompts.Facts = persona.FactsText()
	}

	if cfg.Retriever.URL == "" {
		log.Warn("retriever URL not set, every non-rule question goes to the ungrounded prompt", nil)
	}
	retriever := infrastructure.NewRetrieverClient(cfg.Retriever)
	generator := infrastructure.NewGeneratorClient(cfg.Generator)

	orchestrator := usecases.NewOrchestrator(usecases.OrchestratorConfig{
		RequestDeadline:   cfg.Deadline.Request,
		SafetyMargin:      cfg.Deadline.SafetyMargin,
		MinCall:           cfg.Deadline.MinCall,
		RetrieveTimeout:   cfg.Retriever.Timeout,
		RetrieveFraction:  cfg.Deadline.RetrieveFraction,
		HealthCheck:       cfg.Retriever.HealthCheck,
		HealthTimeout:     cfg.Retriever.HealthTimeout,
		GroundedTimeout:   cfg.Generator.GroundedTimeout,
		UngroundedTimeout: cfg.Generator.UngroundedTimeout,
		MaxHistoryTurns:   cfg.Generator.MaxHistoryTurns,
		Retry: usecases.RetryPolicy{
			MaxAttempts:   cfg.Generator.MaxAttempts,
			BackoffBase:   cfg.Generator.BackoffBase,
			EstimatedCall: cfg.Generator.EstimatedCall,
		},
	}, rules, retriever, generator, prompts, log)

	var (
		usageRecorder interfaces.UsageRecorder
		usageReader   interfaces.UsageReader
	)
	if cfg.Database.URL != "" {
		pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pgClient.Close()

		usageRepo := repository.NewUsageRepository(pgClient.Pool)
		if err := usageRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		usageRecorder = usageRepo
		usageReader = usageRepo
		log.Info("usage tracking enabled", nil)
	}

	chatService := usecases.NewChatService(orchestrator, usageRecorder, cfg.Database.RecordTimeout, log)

	clientLimiter := infrastructure.NewMessageRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
	senderLimiter := infrastructure.NewMessageRateLimiter(cfg.WhatsApp.SenderPerMinute, cfg.WhatsApp.SenderBurst)
	go clientLimiter.Run(ctx, limiterCleanupInterval)
	go senderLimiter.Run(ctx, limiterCleanupInterval)

	middleware := httpapi.NewMiddleware(cfg.Admin.JWTSecret, clientLimiter, cfg.Server.AllowedOrigin, log)
	deps := httpapi.Deps{
		Chat:         chatService,
		Middleware:   middleware,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       log,
	}

	if cfg.WhatsApp.Enabled() {
		messenger := infrastructure.NewWhatsAppBusinessClient(cfg.WhatsApp)
		deps.WhatsApp = httpapi.NewWhatsAppHandler(chatService, messenger, senderLimiter, cfg.WhatsApp.VerifyToken, cfg.WhatsApp.DisplayNumber, cfg.Deadline.Request, log)
		log.Info("whatsapp webhook enabled", nil)
	}

	if cfg.Admin.Enabled() {
		users := repository.NewUserRepository(cfg.Admin.Username, cfg.Admin.PasswordHash)
		auth := usecases.NewAuthUsecase(users, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
		deps.Admin = httpapi.NewAdminHandler(auth, usageReader, persona, map[string]httpapi.RateLimiter{
			"client": clientLimiter,
			"sender": senderLimiter,
		}, log)
		log.Info("admin api enabled", nil)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.SetupRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var telegramDone chan struct{}
	if cfg.Telegram.BotToken != "" {
		tg, err := infrastructure.NewTelegramClient(cfg.Telegram.BotToken, chatService, senderLimiter, persona.Welcome, log)
		if err != nil {
			log.WithError(err).Warn("telegram disabled", nil)
		} else {
			telegramDone = make(chan struct{})
			go func() {
				defer close(telegramDone)
				tg.Run(ctx)
			}()
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("answer service listening", map[string]interface{}{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown", nil)
	}
	if telegramDone != nil {
		<-telegramDone
	}
	chatService.Wait()
	return nil
}
