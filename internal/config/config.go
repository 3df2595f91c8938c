// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (runtime override)
//  2. Config file (~/.newshound/config.yaml or ./config.yaml)
//  3. Defaults (sensible for local docker-compose)
//
// Categories:
//   - AI: provider, generation model, embedder model
//   - Storage: PostgreSQL connection (see storage.go)
//   - Telegram: public preview endpoint, rate limit, posts limit
//   - RAG: retrieval depth, digest candidate pool and context budget
//   - Observability: OTLP trace exporter endpoint
//
// Sensitive values are masked in MarshalJSON/String; Validate runs fail-fast
// range checks with sentinel errors so callers can branch with errors.Is.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates an unsupported AI provider.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates an empty or malformed model name.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates an empty embedder model.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrMissingAPIKey indicates a required provider API key is absent.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidPostgresHost indicates an empty PostgreSQL host.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates an out-of-range PostgreSQL port.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates an empty database name.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates an unknown sslmode value.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidTelegramBaseURL indicates a malformed preview endpoint.
	ErrInvalidTelegramBaseURL = errors.New("invalid telegram base URL")

	// ErrInvalidPostsLimit indicates an out-of-range default posts limit.
	ErrInvalidPostsLimit = errors.New("invalid posts limit")

	// ErrInvalidRetrievalK indicates an out-of-range retrieval depth.
	ErrInvalidRetrievalK = errors.New("invalid retrieval k")

	// ErrInvalidVectorSize indicates an out-of-range embedding dimension.
	ErrInvalidVectorSize = errors.New("invalid vector size")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultGeminiEmbedderModel truncates to 768 dimensions via
	// OutputDimensionality; the pgvector schema matches (index.VectorSize).
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultPostsLimit bounds a single ingestion pass when the caller does
	// not specify a limit.
	DefaultPostsLimit = 100

	// MaxPostsLimit is the absolute per-pass cap.
	MaxPostsLimit = 5000

	// DefaultRetrievalK is the default number of context documents.
	DefaultRetrievalK = 5
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON; update it when adding
// new secrets.
type Config struct {
	// AI provider and models
	Provider      string  `mapstructure:"provider" json:"provider"`     // "gemini" (default) or "ollama"
	ModelName     string  `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "llama3.3"
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	OllamaHost    string  `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Vector index
	VectorSize int `mapstructure:"vector_size" json:"vector_size"`

	// Telegram source
	TelegramBaseURL   string  `mapstructure:"telegram_base_url" json:"telegram_base_url"`
	TelegramRateLimit float64 `mapstructure:"telegram_rate_limit" json:"telegram_rate_limit"` // requests/second
	PostsLimit        int     `mapstructure:"posts_limit" json:"posts_limit"`

	// Retrieval and digest
	RetrievalK      int `mapstructure:"retrieval_k" json:"retrieval_k"`
	SummaryPoolSize int `mapstructure:"summary_pool_size" json:"summary_pool_size"`
	SummaryMaxChars int `mapstructure:"summary_max_chars" json:"summary_max_chars"`

	// Ingestion
	IngestBatchSize int    `mapstructure:"ingest_batch_size" json:"ingest_batch_size"`
	StateDir        string `mapstructure:"state_dir" json:"state_dir"` // per-channel refresh locks

	// HTTP API
	APIAddr string `mapstructure:"api_addr" json:"api_addr"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".newshound")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "newshound")
	v.SetDefault("postgres_password", "newshound_secret")
	v.SetDefault("postgres_db_name", "newshound")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("vector_size", 768)

	v.SetDefault("telegram_base_url", "https://t.me")
	v.SetDefault("telegram_rate_limit", 1.0)
	v.SetDefault("posts_limit", DefaultPostsLimit)

	v.SetDefault("retrieval_k", DefaultRetrievalK)
	v.SetDefault("summary_pool_size", 50)
	v.SetDefault("summary_max_chars", 10000)

	v.SetDefault("ingest_batch_size", 50)
	v.SetDefault("state_dir", configDir)

	v.SetDefault("api_addr", "127.0.0.1:8000")

	v.SetDefault("otlp_endpoint", "localhost:4318")
	v.SetDefault("service_name", "newshound")
	v.SetDefault("environment", "dev")
}

// bindEnvVariables binds explicit environment overrides.
// GEMINI_API_KEY is read directly by the Genkit plugin, not via viper;
// Validate only checks its presence for the gemini provider.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: binding %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "NEWSHOUND_PROVIDER")
	mustBind("model_name", "NEWSHOUND_MODEL_NAME")
	mustBind("embedder_model", "NEWSHOUND_EMBEDDER_MODEL")
	mustBind("ollama_host", "NEWSHOUND_OLLAMA_HOST")
	mustBind("telegram_base_url", "NEWSHOUND_TELEGRAM_BASE_URL")
	mustBind("api_addr", "NEWSHOUND_API_ADDR")
	mustBind("otlp_endpoint", "NEWSHOUND_OTLP_ENDPOINT")
	mustBind("postgres_password", "NEWSHOUND_POSTGRES_PASSWORD")
}

// maskedValue uses full-width blocks so masked output can never be a
// substring of the real secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully masked;
// longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// FullModelName returns the provider-qualified model name for Genkit, e.g.
// "googleai/gemini-2.5-flash" or "ollama/llama3.3".
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	if c.Provider == ProviderOllama {
		return ProviderOllama + "/" + c.ModelName
	}
	return "googleai/" + c.ModelName
}
