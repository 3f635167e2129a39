package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/latticekb/lattice/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const summarizerSystemTemplate = "Summarize the text. First a short plain " +
	"paragraph, then each key point on its own line starting with \"- \". " +
	"Nothing else."

// SummarizerConfig configures the external summarizer.
type SummarizerConfig struct {
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Summarizer builds document digests via an LLM. A nil *Summarizer (or any
// call failure) falls back to the local heuristic.
type Summarizer struct {
	config SummarizerConfig
	llm    llms.Model
}

// NewSummarizer creates the summarizer adapter backed by Ollama.
func NewSummarizer(config SummarizerConfig) (*Summarizer, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	model, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
	}

	return &Summarizer{config: config, llm: model}, nil
}

// Summarize asks the model for a digest and parses the paragraph/bullet
// layout back into a Summary.
func (s *Summarizer) Summarize(ctx context.Context, text string, sentences, bullets int) (*models.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if len(text) > 6000 {
		text = text[:6000]
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summarizerSystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	resp, err := s.llm.GenerateContent(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("summarize failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return nil, fmt.Errorf("summarize returned no content")
	}

	sum := &models.Summary{}
	for _, line := range strings.Split(resp.Choices[0].Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "- ") {
			if len(sum.Bullets) < bullets {
				sum.Bullets = append(sum.Bullets, strings.TrimPrefix(line, "- "))
			}
			continue
		}
		if sum.Short == "" {
			sum.Short = line
		} else {
			sum.Short += " " + line
		}
	}
	if sum.Short == "" {
		return nil, fmt.Errorf("summarize returned no summary paragraph")
	}
	return sum, nil
}
