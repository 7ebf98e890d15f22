package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/api"
	"github.com/liliang-cn/helpdesk/internal/api/middleware"
	"github.com/liliang-cn/helpdesk/internal/api/operator"
	"github.com/liliang-cn/helpdesk/internal/api/widget"
	"github.com/liliang-cn/helpdesk/internal/auth"
	"github.com/liliang-cn/helpdesk/internal/clarify"
	"github.com/liliang-cn/helpdesk/internal/config"
	"github.com/liliang-cn/helpdesk/internal/engine"
	"github.com/liliang-cn/helpdesk/internal/events"
	"github.com/liliang-cn/helpdesk/internal/logging"
	"github.com/liliang-cn/helpdesk/internal/metrics"
	"github.com/liliang-cn/helpdesk/internal/notify"
	"github.com/liliang-cn/helpdesk/internal/repository"
	"github.com/liliang-cn/helpdesk/internal/service"
)

const shutdownTimeout = 10 * time.Second

func serveCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	// Initialize database (sessions, tickets, feedback, operators)
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	sessionRepo := repository.NewSessionRepository(db)
	escalationRepo := repository.NewEscalationRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	operatorRepo := repository.NewOperatorRepository(db)

	// Knowledge base; the server stays up without it and reports degraded health
	var answerer *engine.Answerer
	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize knowledge base, chat is unavailable", zap.Error(err))
	} else {
		defer backend.Close()
		answerer = engine.NewAnswerer(backend, engine.Options{
			TopK:                cfg.RAG.TopK,
			MinRelevance:        cfg.RAG.MinRelevance,
			ConfidenceThreshold: cfg.RAG.ConfidenceThreshold,
		}, logger.Named("engine"))
	}

	store, closeStore, err := newClarifyStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramEnabled() {
		notifier = notify.NewTelegram(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger.Named("telegram"))
	} else {
		logger.Info("Telegram notifications disabled")
	}

	broadcaster := events.NewBroadcaster(logger)
	defer broadcaster.Close()

	tokens := auth.NewJWTManager([]byte(cfg.Operator.JWTSecret), cfg.Operator.TokenTTL)

	chatService := service.NewChatService(sessionRepo, answerer, store, logger.Named("chat"))
	escalationService := service.NewEscalationService(escalationRepo, notifier, broadcaster, logger.Named("escalation"))
	feedbackService := service.NewFeedbackService(feedbackRepo, cfg.Feedback.QueueSize, logger.Named("feedback"))
	operatorService := service.NewOperatorService(operatorRepo, tokens, logger.Named("operator"))
	healthService := service.NewHealthService(answerer, version, logger)

	if cfg.Operator.BootstrapUsername != "" {
		created, err := operatorService.Bootstrap(ctx,
			cfg.Operator.BootstrapUsername,
			cfg.Operator.BootstrapPassword,
			cfg.Operator.BootstrapDisplayName)
		if err != nil {
			return err
		}
		if created {
			logger.Info("Created bootstrap operator", zap.String("username", cfg.Operator.BootstrapUsername))
		}
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, logger.Named("ratelimit"))
		defer limiter.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(api.Services{
		Widget:   widget.NewHandler(chatService, escalationService, feedbackService, logger),
		Operator: operator.NewHandler(escalationService, operatorService, broadcaster, logger),
		Auth:     operatorService,
		Health:   healthService,
	}, api.RouterConfig{
		AllowOrigins:   cfg.Server.AllowOrigins,
		CORSMaxAge:     cfg.Server.CORSMaxAge,
		MetricsEnabled: cfg.Metrics.Enabled,
		RateLimiter:    limiter,
	}, logger.Named("http"))

	// WriteTimeout stays 0 so operator event streams are not cut off;
	// chat turns are bounded by the engine's own timeouts
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting helpdesk server",
			zap.String("address", cfg.Address()),
			zap.String("base_url", cfg.Server.BaseURL),
			zap.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// open event streams hold their handlers until the broadcaster closes
	broadcaster.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	feedbackService.Close()
	escalationService.Wait()

	logger.Info("Server exited")
	return nil
}

func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (engine.Backend, error) {
	rago, err := engine.NewRagoBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.LLM.Provider == "openai" {
		gen := engine.NewOpenAIGenerator(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.LLMModel,
			cfg.LLM.Temperature, cfg.LLM.MaxTokens, logger.Named("openai"))
		return engine.WithGenerator(rago, gen), nil
	}
	return rago, nil
}

func newClarifyStore(ctx context.Context, cfg *config.Config) (clarify.Store, func(), error) {
	if cfg.Clarify.Backend == "redis" {
		store, err := clarify.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Clarify.TTL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	store := clarify.NewMemoryStore(cfg.Clarify.TTL)
	return store, store.Close, nil
}
