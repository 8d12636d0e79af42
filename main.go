package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kube-rca/bugsys/internal/async"
	"github.com/kube-rca/bugsys/internal/classifier"
	"github.com/kube-rca/bugsys/internal/client"
	"github.com/kube-rca/bugsys/internal/config"
	"github.com/kube-rca/bugsys/internal/db"
	"github.com/kube-rca/bugsys/internal/handler"
	"github.com/kube-rca/bugsys/internal/interceptor"
	"github.com/kube-rca/bugsys/internal/model"
	"github.com/kube-rca/bugsys/internal/resilience"
	"github.com/kube-rca/bugsys/internal/service"
	"github.com/kube-rca/bugsys/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

// @title bugsys API
// @version 1.0
// @description Failure capture, self-healing and reliability analytics API.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// .env는 로컬 개발용. 없으면 환경변수만 사용
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}
	cfg := config.Load()

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB 연결 (bugsys는 DB 없이 동작하지 않음)
	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect postgres: %v", err)
	}
	defer pool.Close()
	pg := &db.Postgres{Pool: pool}
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	if err := telemetry.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	// 분류 규칙: 기본 규칙 + CLASSIFIER_RULES_FILE(YAML) 추가 규칙
	var extraRules []classifier.Rule
	if cfg.Capture.RulesFile != "" {
		extraRules, err = classifier.LoadRules(cfg.Capture.RulesFile)
		if err != nil {
			log.Fatalf("Failed to load classifier rules: %v", err)
		}
	}
	cls := classifier.New(extraRules...)

	runner := async.NewRunner(logger, 0)

	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		Threshold:          cfg.Resilience.BreakerThreshold,
		Cooldown:           cfg.Resilience.BreakerCooldown,
		CooldownMultiplier: cfg.Resilience.CooldownMultiplier,
		MaxCooldown:        cfg.Resilience.MaxCooldown,
	})
	breakers.OnTransition(func(key string, from, to model.CircuitState) {
		telemetry.SetBreakerState(key, to)
		logger.Info("Circuit state changed", "operation", key, "from", from, "to", to, model.SelfOriginAttr, true)
	})

	recordHealing := func(a model.HealingAction) {
		runner.Go("healing_action", func(ctx context.Context) error {
			return pg.InsertHealingAction(ctx, a)
		})
	}
	observeRetry := func(key string, _ int, _ error) {
		telemetry.ObserveRetry(key)
	}
	policy := cfg.Resilience.RetryPolicy()

	// 인프라 호출(알림 채널, AI, 패턴 조회)용. 실패를 다시 캡처하지 않음
	infraHealer := resilience.NewHealer(breakers, policy,
		resilience.WithRecorder(recordHealing),
		resilience.WithRetryHook(observeRetry),
	)

	frontendURL := cfg.Server.FrontendURL
	alertService := service.NewAlertService(pg, infraHealer, cfg.Alert, logger,
		client.NewSlackClient(cfg.Slack, frontendURL),
		client.NewDiscordClient(cfg.Discord, frontendURL),
		client.NewTelegramClient(cfg.Telegram),
		client.NewCustomWebhookClient(pg, frontendURL),
	)

	// 분석기 순서: Gemini → Agent → 로컬 분석
	var analyzers []service.Analyzer
	var embeddingService *service.EmbeddingService
	genaiClient, err := client.NewGenAIClient(ctx, cfg.Embedding)
	if err != nil {
		logger.Warn("Failed to init genai client, AI analysis falls back to agent/local", "error", err, model.SelfOriginAttr, true)
	} else {
		analyzers = append(analyzers, genaiClient)
		embeddingService = service.NewEmbeddingService(pg, genaiClient)
	}
	analyzers = append(analyzers, client.NewAgentClient(cfg.Agent))
	suggestionService := service.NewSuggestionService(pg, infraHealer, logger, analyzers...)
	if embeddingService != nil {
		suggestionService.WithSimilarity(embeddingService)
	}

	tracker, err := client.NewSentryTracker(cfg.Sentry)
	if err != nil {
		log.Fatalf("Failed to init sentry: %v", err)
	}

	errorHandler := service.NewErrorHandler(pg, cls, runner, logger).
		WithAlerts(alertService).
		WithSuggestions(suggestionService)
	if tracker.IsConfigured() {
		errorHandler.WithTracker(tracker)
	}

	// 애플리케이션 조회용. 최종 실패는 ErrorHandler로 보고
	appHealer := resilience.NewHealer(breakers, policy,
		resilience.WithReporter(errorHandler),
		resilience.WithRecorder(recordHealing),
		resilience.WithRetryHook(observeRetry),
	)
	reliabilityService := service.NewReliabilityService(pg, appHealer, logger)
	webhookService := service.NewWebhookService(pg)

	// 전역 interceptor (slog 기본 로거, http.DefaultTransport)
	installer := interceptor.NewInstaller(errorHandler, cfg.Capture.WarnPatterns)
	installer.Install()
	defer installer.Uninstall()

	predictive := service.NewPredictiveService(cfg.Predictive, pg, pg.Ping, logger).
		WithAlerts(alertService).
		WithCounters(errorHandler, installer.Transport()).
		WithHealer(infraHealer)
	if cfg.Predictive.Enabled {
		predictive.Start(ctx)
	}

	router := newRouter(cfg, errorHandler, routes{
		failures:    handler.NewFailureHandler(errorHandler, suggestionService),
		reliability: handler.NewReliabilityHandler(reliabilityService),
		system:      handler.NewSystemHandler(predictive, breakers, alertService),
		webhooks:    handler.NewWebhookSettingsHandler(webhookService),
		embeddings:  embeddingService,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting bugsys server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down bugsys server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "error", err, model.SelfOriginAttr, true)
	}
	predictive.Stop()
	if err := runner.Close(shutdownCtx); err != nil {
		logger.Warn("Failed to drain background jobs", "error", err, model.SelfOriginAttr, true)
	}
	if tracker.IsConfigured() {
		tracker.Flush(5 * time.Second)
	}
}

type routes struct {
	failures    *handler.FailureHandler
	reliability *handler.ReliabilityHandler
	system      *handler.SystemHandler
	webhooks    *handler.WebhookSettingsHandler
	embeddings  *service.EmbeddingService
}

func newRouter(cfg config.Config, sink interceptor.Capturer, r routes) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		interceptor.Recovery(sink),
		interceptor.LongTask(sink, cfg.Capture.LongTaskThreshold, cfg.Capture.LongTaskHigh),
		handler.CORSMiddleware(cfg.Server.AllowedOrigins, false),
	)

	// 공개 엔드포인트
	router.GET("/ping", handler.Ping)
	router.GET("/", handler.Root)
	router.GET("/openapi.json", handler.OpenAPIDoc)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/api/v1/errors", r.failures.ReportFailure)

	// 프론트엔드 정적 파일. 로드 실패(4xx/5xx)는 ResourceLoadError로 캡처
	if cfg.Server.StaticDir != "" {
		router.Group("/assets", interceptor.ResourceWatch(sink)).Static("/", cfg.Server.StaticDir)
	}

	api := router.Group("/api/v1", handler.AuthMiddleware(cfg.Auth.JWTSecret))
	{
		api.GET("/errors/:id/suggestions", r.failures.GetSuggestions)

		api.GET("/bugs", r.reliability.ListBugs)
		api.PATCH("/bugs/:id/status", r.reliability.UpdateBugStatus)
		api.POST("/bugs/:id/resolve", r.reliability.ResolveBug)

		api.GET("/reliability/mttr", r.reliability.GetMTTR)
		api.GET("/reliability/trends", r.reliability.GetTrends)
		api.GET("/reliability/sla", r.reliability.GetSLA)

		api.GET("/predictions/latest", r.system.GetLatestPrediction)
		api.GET("/breakers", r.system.ListBreakers)
		api.POST("/alerts/test", r.system.SendTestAlert)

		api.GET("/settings/webhooks", r.webhooks.ListWebhookConfigs)
		api.GET("/settings/webhooks/:id", r.webhooks.GetWebhookConfig)
		api.POST("/settings/webhooks", r.webhooks.CreateWebhookConfig)
		api.PUT("/settings/webhooks/:id", r.webhooks.UpdateWebhookConfig)
		api.DELETE("/settings/webhooks/:id", r.webhooks.DeleteWebhookConfig)

		// AI_API_KEY가 없으면 임베딩 엔드포인트 미등록
		if r.embeddings != nil {
			api.POST("/embeddings", handler.NewEmbeddingHandler(r.embeddings).CreateEmbedding)
		}
	}
	return router
}

// newLogger - LOG_FORMAT(json|text), LOG_LEVEL(debug|info|warn|error)
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
