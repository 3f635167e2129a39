package topics_test

import (
	"testing"

	"github.com/latticekb/lattice/pkg/topics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Machine Learning", "machine-learning"},
		{"tech/AI", "tech/ai"},
		{"  Hello, World!  ", "hello-world"},
		{"already-slugged", "already-slugged"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, topics.Slugify(tt.in))
	}
}

func TestClassify(t *testing.T) {
	got := topics.Classify("The model training used a new dataset and an embedding layer.")
	require.NotNil(t, got)
	assert.Equal(t, "tech/ai", got.Primary)
	assert.NotEmpty(t, got.Labels)
	assert.Equal(t, got.Primary, got.Labels[0].Name)
}

func TestClassifyMultipleLabels(t *testing.T) {
	got := topics.Classify("postgres query planning for the api code in the repository")
	require.NotNil(t, got)
	assert.Equal(t, "tech/programming", got.Primary)

	names := make([]string, 0, len(got.Labels))
	for _, l := range got.Labels {
		names = append(names, l.Name)
	}
	assert.Contains(t, names, "tech/data")
}

func TestClassifyNoMatch(t *testing.T) {
	assert.Nil(t, topics.Classify("lorem ipsum dolor sit amet"))
	assert.Nil(t, topics.Classify(""))
}
