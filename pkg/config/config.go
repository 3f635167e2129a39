// Package config loads the service configuration from YAML, merges
// environment overrides on top, and fills defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Providers ProvidersConfig `yaml:"providers"`
	Database  DatabaseConfig  `yaml:"database"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	EmbedModel  string  `yaml:"embed_model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// ProvidersConfig selects the implementation behind each enrichment
// capability. "none" or "heuristic" disables the external provider and the
// pipeline falls back to its built-in behavior.
type ProvidersConfig struct {
	Embedding   string `yaml:"embedding"`   // none | ollama
	Categorizer string `yaml:"categorizer"` // heuristic | llm
	Summarizer  string `yaml:"summarizer"`  // heuristic | llm
	Composer    string `yaml:"composer"`    // none | llm
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	VectorDim int    `yaml:"vector_dim"`
}

type QdrantConfig struct {
	URL             string        `yaml:"url"`
	APIKey          string        `yaml:"api_key"`
	ChunkCollection string        `yaml:"chunk_collection"`
	DocCollection   string        `yaml:"doc_collection"`
	Distance        string        `yaml:"distance"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ScraperConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	MaxPages          int      `yaml:"max_pages"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// Load reads the config at path. With an empty path the default locations
// are tried; when none exists, defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/lattice/config.yaml"),
			"/etc/lattice/config.yaml",
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}

	if config.Providers.Embedding == "" {
		config.Providers.Embedding = "none"
	}
	if config.Providers.Categorizer == "" {
		config.Providers.Categorizer = "heuristic"
	}
	if config.Providers.Summarizer == "" {
		config.Providers.Summarizer = "heuristic"
	}
	if config.Providers.Composer == "" {
		config.Providers.Composer = "none"
	}

	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Qdrant.ChunkCollection == "" {
		config.Qdrant.ChunkCollection = "lattice_chunks"
	}
	if config.Qdrant.DocCollection == "" {
		config.Qdrant.DocCollection = "lattice_docs"
	}
	if config.Qdrant.Distance == "" {
		config.Qdrant.Distance = "Cosine"
	}
	if config.Qdrant.Timeout == 0 {
		config.Qdrant.Timeout = 15 * time.Second
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 100
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Chunking.ChunkSize == 0 {
		config.Chunking.ChunkSize = 1000
	}
	if config.Chunking.ChunkOverlap == 0 {
		config.Chunking.ChunkOverlap = 200
	}
}

func mergeWithEnv(config *Config) {
	if addr := os.Getenv("LATTICE_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if qdrantURL := os.Getenv("QDRANT_URL"); qdrantURL != "" {
		config.Qdrant.URL = qdrantURL
	}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		config.Qdrant.APIKey = apiKey
	}
}
