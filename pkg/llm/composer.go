package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const composerSystemTemplate = "You answer questions using only the numbered context blocks provided. " +
	"Cite the blocks you used with inline markers like [1]. " +
	"If the context does not contain the answer, say so."

// ComposerConfig configures the answer-generation adapter.
type ComposerConfig struct {
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Composer generates grounded answers over retrieved context. A nil
// *Composer means answers fall back to the local summarizer.
type Composer struct {
	config ComposerConfig
	llm    llms.Model
}

// NewComposer creates an answer-generation adapter backed by Ollama.
func NewComposer(config ComposerConfig) (*Composer, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Temperature <= 0 || config.Temperature > 1 {
		config.Temperature = 0.7
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	model, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize composer: %w", err)
	}

	return &Composer{config: config, llm: model}, nil
}

// Compose asks the model for an answer grounded in the numbered context
// blocks.
func (c *Composer) Compose(ctx context.Context, query string, contexts []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var prompt strings.Builder
	for i, block := range contexts {
		fmt.Fprintf(&prompt, "[%d] %s\n\n", i+1, block)
	}
	fmt.Fprintf(&prompt, "Question: %s", query)

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, composerSystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt.String()),
	}

	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(c.config.MaxTokens),
		llms.WithTemperature(c.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("compose failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fmt.Errorf("compose returned no content")
	}
	return resp.Choices[0].Content, nil
}
