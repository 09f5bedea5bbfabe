package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// validSSLModes are the sslmode values accepted by pgx.
var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// supportedDimensions are the vector dimensions the known embedding
// providers produce. Never mixed within one deployment.
var supportedDimensions = []int{768, 1536}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Provider and credential. API keys are read by the Genkit plugins
	// directly from the environment; fail fast here rather than
	// returning zero vectors at the first embed call.
	switch c.Provider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderOpenAI, ProviderGemini)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidProvider)
	}

	// Temperature range: 0.0 (deterministic) to 2.0
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 131072 {
		return fmt.Errorf("%w: must be between 1 and 131,072, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// Embedding configuration
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidDimension)
	}
	if !slices.Contains(supportedDimensions, c.EmbeddingDimension) {
		return fmt.Errorf("%w: %d (supported: %v)", ErrInvalidDimension, c.EmbeddingDimension, supportedDimensions)
	}
	if c.MaxEmbedChars < 1 {
		return fmt.Errorf("%w: max_embed_chars must be positive, got %d", ErrInvalidDimension, c.MaxEmbedChars)
	}
	if c.EmbedConcurrency < 1 || c.EmbedConcurrency > 32 {
		return fmt.Errorf("%w: must be between 1 and 32, got %d", ErrInvalidConcurrency, c.EmbedConcurrency)
	}

	// Indexing configuration
	if len(c.SupportedExtensions) == 0 {
		return fmt.Errorf("%w: supported_extensions cannot be empty", ErrInvalidExtensions)
	}
	for _, ext := range c.SupportedExtensions {
		if len(ext) < 2 || ext[0] != '.' {
			return fmt.Errorf("%w: %q must start with a dot", ErrInvalidExtensions, ext)
		}
	}
	if c.MaxFileSizeKB < 1 {
		return fmt.Errorf("%w: max_file_size_kb must be positive, got %d", ErrInvalidFileSize, c.MaxFileSizeKB)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q (valid: %v)", ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.PostgresPassword == "nexusflow_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}

	return nil
}
