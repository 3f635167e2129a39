package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopicLine(t *testing.T) {
	got, err := parseTopicLine("tech/ai, tech/data, Business")
	require.NoError(t, err)
	assert.Equal(t, "tech/ai", got.Primary)
	require.Len(t, got.Labels, 3)
	assert.Equal(t, "business", got.Labels[2].Name)
	assert.Greater(t, got.Labels[0].Score, got.Labels[1].Score)
}

func TestParseTopicLineIgnoresTrailingProse(t *testing.T) {
	got, err := parseTopicLine("tech/web\nThe text is about crawling.")
	require.NoError(t, err)
	assert.Equal(t, "tech/web", got.Primary)
	assert.Len(t, got.Labels, 1)
}

func TestParseTopicLineEmpty(t *testing.T) {
	_, err := parseTopicLine("   ")
	assert.Error(t, err)
}

func TestNewAdaptersApplyDefaults(t *testing.T) {
	emb, err := NewEmbedder(EmbedderConfig{})
	require.NoError(t, err)
	assert.Equal(t, 768, emb.Dimension())

	_, err = NewComposer(ComposerConfig{})
	assert.NoError(t, err)

	_, err = NewCategorizer(CategorizerConfig{})
	assert.NoError(t, err)

	_, err = NewSummarizer(SummarizerConfig{})
	assert.NoError(t, err)
}
