package config

import (
	"fmt"
	"net/url"
	"os"
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate runs fail-fast checks over the whole configuration.
// All errors wrap the package sentinels so callers can use errors.Is.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		// The Genkit googlegenai plugin reads the key from the environment.
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: set GEMINI_API_KEY for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if _, err := url.ParseRequestURI(c.OllamaHost); err != nil {
			return fmt.Errorf("%w: ollama_host %q: %v", ErrInvalidProvider, c.OllamaHost, err)
		}
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidEmbedderModel)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %v out of range [0, 2]", ErrInvalidModelName, c.Temperature)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d out of range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: postgres_db_name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.VectorSize < 1 || c.VectorSize > 4096 {
		return fmt.Errorf("%w: %d out of range [1, 4096]", ErrInvalidVectorSize, c.VectorSize)
	}

	if _, err := url.ParseRequestURI(c.TelegramBaseURL); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTelegramBaseURL, c.TelegramBaseURL, err)
	}
	if c.PostsLimit < 1 || c.PostsLimit > MaxPostsLimit {
		return fmt.Errorf("%w: %d out of range [1, %d]", ErrInvalidPostsLimit, c.PostsLimit, MaxPostsLimit)
	}

	if c.RetrievalK < 1 || c.RetrievalK > 100 {
		return fmt.Errorf("%w: %d out of range [1, 100]", ErrInvalidRetrievalK, c.RetrievalK)
	}
	if c.SummaryPoolSize < 1 || c.SummaryPoolSize > 1000 {
		return fmt.Errorf("%w: summary_pool_size %d out of range [1, 1000]", ErrInvalidRetrievalK, c.SummaryPoolSize)
	}
	if c.SummaryMaxChars < 100 {
		return fmt.Errorf("%w: summary_max_chars %d below minimum 100", ErrInvalidRetrievalK, c.SummaryMaxChars)
	}
	if c.IngestBatchSize < 1 || c.IngestBatchSize > 1000 {
		return fmt.Errorf("%w: ingest_batch_size %d out of range [1, 1000]", ErrInvalidPostsLimit, c.IngestBatchSize)
	}

	return nil
}
