package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the helpdesk server
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RAG       RAGConfig       `mapstructure:"rag"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Clarify   ClarifyConfig   `mapstructure:"clarify"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Operator  OperatorConfig  `mapstructure:"operator"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	CORSMaxAge   time.Duration `mapstructure:"cors_max_age"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RAGConfig holds retrieval configuration
type RAGConfig struct {
	DBPath              string  `mapstructure:"db_path"`
	IndexType           string  `mapstructure:"index_type"`
	ChunkSize           int     `mapstructure:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap"`
	TopK                int     `mapstructure:"top_k"`
	MinRelevance        float64 `mapstructure:"min_relevance"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider       string  `mapstructure:"provider"` // agent, openai
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	LLMModel       string  `mapstructure:"llm_model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
}

// ClarifyConfig selects where pending clarification contexts live
type ClarifyConfig struct {
	Backend string        `mapstructure:"backend"` // memory, redis
	TTL     time.Duration `mapstructure:"ttl"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// OperatorConfig holds operator authentication configuration
type OperatorConfig struct {
	JWTSecret            string        `mapstructure:"jwt_secret"`
	TokenTTL             time.Duration `mapstructure:"token_ttl"`
	BootstrapUsername    string        `mapstructure:"bootstrap_username"`
	BootstrapPassword    string        `mapstructure:"bootstrap_password"`
	BootstrapDisplayName string        `mapstructure:"bootstrap_display_name"`
}

// TelegramConfig holds the operator notification channel
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIURL   string `mapstructure:"api_url"`
}

// FeedbackConfig holds feedback dispatch configuration
type FeedbackConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

// MetricsConfig toggles the prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("HELPDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.cors_max_age", 12*time.Hour)
	v.SetDefault("server.read_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.path", "./data/support.db")

	v.SetDefault("rag.db_path", "./data/rag.db")
	v.SetDefault("rag.index_type", "hnsw")
	v.SetDefault("rag.chunk_size", 800)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.min_relevance", 0.3)
	v.SetDefault("rag.confidence_threshold", 0.3)

	v.SetDefault("llm.provider", "agent")
	v.SetDefault("llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.embedding_model", "nomic-embed-text")
	v.SetDefault("llm.llm_model", "qwen2.5:7b")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2000)

	v.SetDefault("clarify.backend", "memory")
	v.SetDefault("clarify.ttl", 15*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("operator.jwt_secret", "")
	v.SetDefault("operator.token_ttl", 12*time.Hour)
	v.SetDefault("operator.bootstrap_username", "")
	v.SetDefault("operator.bootstrap_password", "")
	v.SetDefault("operator.bootstrap_display_name", "Support Operator")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_url", "https://api.telegram.org")

	v.SetDefault("feedback.queue_size", 256)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 60)

	v.SetDefault("metrics.enabled", true)
}

// Validate checks values that cannot be corrected by defaults
func (c *Config) Validate() error {
	var errs []error

	if c.RAG.ConfidenceThreshold < 0 || c.RAG.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("rag.confidence_threshold must be within [0,1], got %v", c.RAG.ConfidenceThreshold))
	}
	if c.RAG.MinRelevance < 0 || c.RAG.MinRelevance > 1 {
		errs = append(errs, fmt.Errorf("rag.min_relevance must be within [0,1], got %v", c.RAG.MinRelevance))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK))
	}
	switch c.LLM.Provider {
	case "agent", "openai":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be agent or openai, got %q", c.LLM.Provider))
	}
	switch c.Clarify.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("clarify.backend must be memory or redis, got %q", c.Clarify.Backend))
	}
	if c.Operator.JWTSecret == "" {
		errs = append(errs, errors.New("operator.jwt_secret is required"))
	}
	if c.Operator.TokenTTL <= 0 {
		errs = append(errs, errors.New("operator.token_ttl must be positive"))
	}

	return errors.Join(errs...)
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TelegramEnabled reports whether operator notifications are configured
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
