package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kube-rca/bugsys/internal/model"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Postgres   PostgresConfig
	Sentry     SentryConfig
	Alert      AlertConfig
	Slack      SlackConfig
	Discord    DiscordConfig
	Telegram   TelegramConfig
	Agent      AgentConfig
	Embedding  EmbeddingConfig
	Auth       AuthConfig
	Resilience ResilienceConfig
	Predictive PredictiveConfig
	Capture    CaptureConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	FrontendURL    string
	StaticDir      string
}

type LogConfig struct {
	Level  string
	Format string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// AlertConfig - 알림 게이트와 활성 채널 목록
// Channels가 비어 있으면 설정값이 채워진 채널은 모두 사용
type AlertConfig struct {
	MinSeverity model.Severity
	Channels    []string
}

// SlackConfig - WebhookURL이 있으면 incoming webhook, 없으면 bot token 방식
type SlackConfig struct {
	WebhookURL string
	BotToken   string
	ChannelID  string
}

type DiscordConfig struct {
	WebhookURL string
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

type AgentConfig struct {
	BaseURL string
}

type EmbeddingConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
}

// AuthConfig - 관리 API용 HS256 JWT 시크릿. 비어 있으면 인증 비활성화
type AuthConfig struct {
	JWTSecret string
}

type ResilienceConfig struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	Jitter             bool
	BreakerThreshold   int
	BreakerCooldown    time.Duration
	CooldownMultiplier float64
	MaxCooldown        time.Duration
}

// PredictiveConfig - 예측 분석 주기와 임계값
type PredictiveConfig struct {
	Enabled            bool
	Interval           time.Duration
	Window             int
	MemoryLimitBytes   int64
	MemoryWarning      float64
	MemoryCritical     float64
	LatencyWarningMs   float64
	LatencyCriticalMs  float64
	ErrorRateThreshold float64
	PatternMinOccurs   int
	PatternWindowHours int
}

// CaptureConfig - interceptor 설정
// WarnPatterns가 비어 있으면 interceptor 기본 allow-list 사용
type CaptureConfig struct {
	RulesFile         string
	LongTaskThreshold time.Duration
	LongTaskHigh      time.Duration
	WarnPatterns      []string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:           getenv("PORT", "8080"),
			AllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),
			FrontendURL:    os.Getenv("FRONTEND_URL"),
			StaticDir:      os.Getenv("STATIC_DIR"),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Sentry: SentryConfig{
			DSN:         os.Getenv("SENTRY_DSN"),
			Environment: getenv("SENTRY_ENVIRONMENT", "development"),
			Release:     os.Getenv("SENTRY_RELEASE"),
		},
		Alert: AlertConfig{
			MinSeverity: getenvSeverity("ALERT_MIN_SEVERITY", model.SeverityHigh),
			Channels:    splitList(os.Getenv("ALERT_CHANNELS")),
		},
		Slack: SlackConfig{
			WebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
			BotToken:   os.Getenv("SLACK_BOT_TOKEN"),
			ChannelID:  os.Getenv("SLACK_CHANNEL_ID"),
		},
		Discord: DiscordConfig{
			WebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		},
		Agent: AgentConfig{
			BaseURL: os.Getenv("AGENT_URL"),
		},
		Embedding: EmbeddingConfig{
			APIKey:         os.Getenv("AI_API_KEY"),
			Model:          getenv("AI_MODEL", "gemini-2.0-flash"),
			EmbeddingModel: getenv("EMBEDDING_MODEL", "text-embedding-004"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("API_JWT_SECRET"),
		},
		Resilience: ResilienceConfig{
			MaxRetries:         getenvInt("RETRY_MAX_RETRIES", 3),
			BaseDelay:          getenvDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:           getenvDuration("RETRY_MAX_DELAY", 30*time.Second),
			Jitter:             getenvBool("RETRY_JITTER", true),
			BreakerThreshold:   getenvInt("BREAKER_THRESHOLD", 5),
			BreakerCooldown:    getenvDuration("BREAKER_COOLDOWN", time.Minute),
			CooldownMultiplier: getenvFloat("BREAKER_COOLDOWN_MULTIPLIER", 2),
			MaxCooldown:        getenvDuration("BREAKER_MAX_COOLDOWN", 10*time.Minute),
		},
		Predictive: PredictiveConfig{
			Enabled:            getenvBool("PREDICT_ENABLED", true),
			Interval:           getenvDuration("PREDICT_INTERVAL", 30*time.Second),
			Window:             getenvInt("PREDICT_WINDOW", 60),
			MemoryLimitBytes:   int64(getenvInt("PREDICT_MEMORY_LIMIT_BYTES", 0)),
			MemoryWarning:      getenvFloat("PREDICT_MEMORY_WARNING", 80),
			MemoryCritical:     getenvFloat("PREDICT_MEMORY_CRITICAL", 90),
			LatencyWarningMs:   getenvFloat("PREDICT_LATENCY_WARNING_MS", 2000),
			LatencyCriticalMs:  getenvFloat("PREDICT_LATENCY_CRITICAL_MS", 5000),
			ErrorRateThreshold: getenvFloat("ERROR_RATE_THRESHOLD", 5),
			PatternMinOccurs:   getenvInt("PATTERN_MIN_OCCURRENCES", 3),
			PatternWindowHours: getenvInt("PATTERN_WINDOW_HOURS", 24),
		},
		Capture: CaptureConfig{
			RulesFile:         os.Getenv("CLASSIFIER_RULES_FILE"),
			LongTaskThreshold: getenvDuration("LONG_TASK_THRESHOLD", 100*time.Millisecond),
			LongTaskHigh:      getenvDuration("LONG_TASK_HIGH", 500*time.Millisecond),
			WarnPatterns:      splitList(os.Getenv("CAPTURE_WARN_PATTERNS")),
		},
	}
}

// RetryPolicy - Resilience 설정을 model.RetryPolicy로 변환
func (c ResilienceConfig) RetryPolicy() model.RetryPolicy {
	return model.RetryPolicy{
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.BaseDelay,
		MaxDelay:   c.MaxDelay,
		Jitter:     c.Jitter,
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return val
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if val, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return val
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return val
	}
	return fallback
}

// getenvDuration - "30s" 같은 duration 문자열 또는 밀리초 정수
func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getenvSeverity(key string, fallback model.Severity) model.Severity {
	if sev, ok := model.ParseSeverity(os.Getenv(key)); ok {
		return sev
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
