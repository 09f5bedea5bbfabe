// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./nexusflow.yaml or ~/.nexusflow/config.yaml)
//  3. Default values
//
// Sensitive data (passwords) is masked in MarshalJSON and String.
// Load validates immediately and fails fast on bad values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the selected provider has no credential.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the LLM provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidDimension indicates an unsupported embedding dimension.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidConcurrency indicates the embed concurrency cap is out of range.
	ErrInvalidConcurrency = errors.New("invalid embed concurrency")

	// ErrInvalidExtensions indicates an empty indexing extension allow-list.
	ErrInvalidExtensions = errors.New("invalid extension allow-list")

	// ErrInvalidFileSize indicates a non-positive file size ceiling.
	ErrInvalidFileSize = errors.New("invalid max file size")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// LLM provider identifiers used in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON.
type Config struct {
	// LLM provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"` // "openai" (default) or "gemini"
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedding configuration
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`
	MaxEmbedChars      int    `mapstructure:"max_embed_chars" json:"max_embed_chars"`
	EmbedConcurrency   int    `mapstructure:"embed_concurrency" json:"embed_concurrency"`

	// Indexing configuration
	SupportedExtensions []string `mapstructure:"supported_extensions" json:"supported_extensions"`
	ExcludedDirs        []string `mapstructure:"excluded_dirs" json:"excluded_dirs"`
	MaxFileSizeKB       int      `mapstructure:"max_file_size_kb" json:"max_file_size_kb"`

	// Search configuration
	SnippetLength int `mapstructure:"snippet_length" json:"snippet_length"`
	DefaultTopK   int `mapstructure:"default_top_k" json:"default_top_k"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".nexusflow")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
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

	// DATABASE_URL overrides individual postgres settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("model_name", "gpt-4o-mini")
	v.SetDefault("temperature", 0.2)
	v.SetDefault("max_tokens", 4096)

	// Embedding defaults
	v.SetDefault("embedder_model", "text-embedding-3-small")
	v.SetDefault("embedding_dimension", 1536)
	v.SetDefault("max_embed_chars", 8000)
	v.SetDefault("embed_concurrency", 5)

	// Indexing defaults
	v.SetDefault("supported_extensions", []string{
		".py", ".js", ".ts", ".tsx", ".jsx",
		".java", ".go", ".rs", ".cpp", ".c", ".h",
		".md", ".txt", ".json", ".yaml", ".yml",
	})
	v.SetDefault("excluded_dirs", []string{
		"node_modules", "venv", "__pycache__", ".git",
		"dist", "build", "target", "vendor",
	})
	v.SetDefault("max_file_size_kb", 100)

	// Search defaults
	v.SetDefault("snippet_length", 500)
	v.SetDefault("default_top_k", 10)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "nexusflow")
	v.SetDefault("postgres_password", "nexusflow_dev_password")
	v.SetDefault("postgres_db_name", "nexusflow")
	v.SetDefault("postgres_ssl_mode", "disable")

	// HTTP defaults
	v.SetDefault("listen_addr", "127.0.0.1:8000")
	v.SetDefault("cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("rate_burst", 60)
	v.SetDefault("trust_proxy", false)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly.
//
// NOTE: OPENAI_API_KEY and GEMINI_API_KEY are read directly by the
// Genkit provider plugins, not via viper. Validate() only checks
// their presence for the selected provider.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "NEXUSFLOW_PROVIDER")
	mustBind("model_name", "NEXUSFLOW_MODEL_NAME")
	mustBind("temperature", "NEXUSFLOW_TEMPERATURE")
	mustBind("max_tokens", "NEXUSFLOW_MAX_TOKENS")
	mustBind("embedder_model", "NEXUSFLOW_EMBEDDER_MODEL")
	mustBind("embedding_dimension", "NEXUSFLOW_EMBEDDING_DIMENSION")
	mustBind("max_embed_chars", "NEXUSFLOW_MAX_EMBED_CHARS")
	mustBind("embed_concurrency", "NEXUSFLOW_EMBED_CONCURRENCY")
	mustBind("supported_extensions", "NEXUSFLOW_SUPPORTED_EXTENSIONS")
	mustBind("excluded_dirs", "NEXUSFLOW_EXCLUDED_DIRS")
	mustBind("max_file_size_kb", "NEXUSFLOW_MAX_FILE_SIZE_KB")
	mustBind("snippet_length", "NEXUSFLOW_SNIPPET_LENGTH")
	mustBind("default_top_k", "NEXUSFLOW_DEFAULT_TOP_K")
	mustBind("postgres_host", "NEXUSFLOW_POSTGRES_HOST")
	mustBind("postgres_port", "NEXUSFLOW_POSTGRES_PORT")
	mustBind("postgres_user", "NEXUSFLOW_POSTGRES_USER")
	mustBind("postgres_password", "NEXUSFLOW_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "NEXUSFLOW_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "NEXUSFLOW_POSTGRES_SSL_MODE")
	mustBind("listen_addr", "NEXUSFLOW_LISTEN_ADDR")
	mustBind("cors_origins", "NEXUSFLOW_CORS_ORIGINS")
	mustBind("rate_burst", "NEXUSFLOW_RATE_BURST")
	mustBind("trust_proxy", "NEXUSFLOW_TRUST_PROXY")
	mustBind("log_level", "NEXUSFLOW_LOG_LEVEL")
	mustBind("log_json", "NEXUSFLOW_LOG_JSON")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are
// fully masked; longer ones keep the first and last two characters for
// debug utility.
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

// MaxFileSizeBytes returns the indexing file size ceiling in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeKB) * 1024
}
