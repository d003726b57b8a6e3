package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full service configuration. Values come from an optional
// YAML file plus environment overrides; environment always wins.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pinecone  PineconeConfig  `mapstructure:"pinecone"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

type PineconeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Index  string `mapstructure:"index"`
	Host   string `mapstructure:"host"`
}

// Configured reports whether the vector index can be reached at all.
func (p PineconeConfig) Configured() bool {
	return p.APIKey != "" && p.Host != ""
}

type EmbeddingConfig struct {
	ServiceURL string        `mapstructure:"service_url"`
	Model      string        `mapstructure:"model"`
	Dimension  int           `mapstructure:"dimension"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheSize  int           `mapstructure:"cache_size"`
}

type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type RetrievalConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxHops             int     `mapstructure:"max_hops"`
	ConversationWindow  int     `mapstructure:"conversation_window"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Defaults returns the baseline configuration used when neither file nor
// environment provides a value.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MetricsPort:     9090,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    10,
			RateLimitBurst:  20,
		},
		Embedding: EmbeddingConfig{
			Model:     "multilingual-e5-large",
			Dimension: 1024,
			Timeout:   10 * time.Second,
			CacheSize: 100,
		},
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "hopline.db",
		},
		Redis: RedisConfig{
			TTL: time.Hour,
		},
		Retrieval: RetrievalConfig{
			SimilarityThreshold: 0.5,
			MaxHops:             1,
			ConversationWindow:  6,
		},
		Tracing: TracingConfig{
			ServiceName:  "hopline",
			SamplingRate: 1.0,
		},
	}
}

// Load reads configuration from the given file path (optional, "" skips the
// file) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("read config %s: %w", path, err)
				}
			}
		} else if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", c.Embedding.Dimension)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1], got %f", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.MaxHops < 0 {
		return fmt.Errorf("max hops must be >= 0, got %d", c.Retrieval.MaxHops)
	}
	if c.Retrieval.ConversationWindow <= 0 {
		return fmt.Errorf("conversation window must be > 0, got %d", c.Retrieval.ConversationWindow)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideInt("PORT", &cfg.Server.Port)
	overrideInt("METRICS_PORT", &cfg.Server.MetricsPort)
	overrideFloat("RATE_LIMIT_RPS", &cfg.Server.RateLimitRPS)
	overrideInt("RATE_LIMIT_BURST", &cfg.Server.RateLimitBurst)

	overrideString("PINECONE_API_KEY", &cfg.Pinecone.APIKey)
	overrideString("PINECONE_INDEX", &cfg.Pinecone.Index)
	overrideString("PINECONE_HOST", &cfg.Pinecone.Host)

	overrideString("EMBEDDING_SERVICE_URL", &cfg.Embedding.ServiceURL)
	overrideString("EMBEDDING_MODEL", &cfg.Embedding.Model)
	overrideInt("EMBEDDING_DIMENSION", &cfg.Embedding.Dimension)

	overrideString("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	overrideString("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	overrideString("OPENAI_MODEL", &cfg.OpenAI.Model)

	overrideString("DATABASE_DRIVER", &cfg.Database.Driver)
	overrideString("DATABASE_DSN", &cfg.Database.DSN)
	overrideString("REDIS_ADDR", &cfg.Redis.Addr)

	overrideFloat("RAG_SIMILARITY_THRESHOLD", &cfg.Retrieval.SimilarityThreshold)
	overrideInt("MAX_HOPS", &cfg.Retrieval.MaxHops)
	overrideInt("CONVERSATION_WINDOW", &cfg.Retrieval.ConversationWindow)

	overrideString("OTEL_ENDPOINT", &cfg.Tracing.OTLPEndpoint)
	if cfg.Tracing.OTLPEndpoint != "" {
		cfg.Tracing.Enabled = true
	}
}

func overrideString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func overrideInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		var parsed int
		if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
			*dst = parsed
		}
	}
}

func overrideFloat(key string, dst *float64) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		var parsed float64
		if _, err := fmt.Sscanf(v, "%f", &parsed); err == nil {
			*dst = parsed
		}
	}
}
