package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	embeddingProviders   = map[string]bool{"none": true, "ollama": true}
	categorizerProviders = map[string]bool{"heuristic": true, "llm": true}
	summarizerProviders  = map[string]bool{"heuristic": true, "llm": true}
	composerProviders    = map[string]bool{"none": true, "llm": true}
)

// Validate checks the whole config and returns every violation found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if !embeddingProviders[c.Providers.Embedding] {
		errors = append(errors, ValidationError{
			Field:   "providers.embedding",
			Message: "must be none or ollama",
		})
	}
	if !categorizerProviders[c.Providers.Categorizer] {
		errors = append(errors, ValidationError{
			Field:   "providers.categorizer",
			Message: "must be heuristic or llm",
		})
	}
	if !summarizerProviders[c.Providers.Summarizer] {
		errors = append(errors, ValidationError{
			Field:   "providers.summarizer",
			Message: "must be heuristic or llm",
		})
	}
	if !composerProviders[c.Providers.Composer] {
		errors = append(errors, ValidationError{
			Field:   "providers.composer",
			Message: "must be none or llm",
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Providers.Embedding != "none" && c.Qdrant.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "qdrant.url",
			Message: "required when an embedding provider is configured",
		})
	}

	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	if c.Chunking.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunking.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "chunking.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	return errors
}
