package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/pkg/topics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const categorizerSystemTemplate = "You label text for a knowledge base. " +
	"Reply with one line: a primary topic slug path (like tech/ai), " +
	"optionally followed by up to three comma-separated secondary slugs. " +
	"Prefer slugs from the known list when one fits. No prose."

// CategorizerConfig configures the external topic classifier.
type CategorizerConfig struct {
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Categorizer assigns topics via an LLM. A nil *Categorizer (or any call
// failure) falls back to the keyword classifier; categorization never fails
// an ingest.
type Categorizer struct {
	config CategorizerConfig
	llm    llms.Model
}

// NewCategorizer creates the classifier adapter backed by Ollama.
func NewCategorizer(config CategorizerConfig) (*Categorizer, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}

	model, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize categorizer: %w", err)
	}

	return &Categorizer{config: config, llm: model}, nil
}

// Categorize labels text, steering the model toward slugs already in use.
func (c *Categorizer) Categorize(ctx context.Context, text string, known []string) (*models.Topics, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	prompt := text
	if len(prompt) > 2000 {
		prompt = prompt[:2000]
	}
	if len(known) > 0 {
		prompt = fmt.Sprintf("Known slugs: %s\n\n%s", strings.Join(known, ", "), prompt)
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, categorizerSystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := c.llm.GenerateContent(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("categorize failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("categorize returned no content")
	}

	return parseTopicLine(resp.Choices[0].Content)
}

// parseTopicLine turns "tech/ai, tech/data" into scored labels, first slug
// primary.
func parseTopicLine(line string) (*models.Topics, error) {
	line = strings.TrimSpace(strings.SplitN(line, "\n", 2)[0])
	if line == "" {
		return nil, fmt.Errorf("empty topic line")
	}

	var labels []models.TopicLabel
	for i, part := range strings.Split(line, ",") {
		slug := topics.Slugify(part)
		if slug == "" {
			continue
		}
		labels = append(labels, models.TopicLabel{
			Name:  slug,
			Score: 1.0 / float64(i+1),
		})
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no usable slugs in %q", line)
	}

	return &models.Topics{Primary: labels[0].Name, Labels: labels}, nil
}
