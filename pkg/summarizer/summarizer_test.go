package summarizer_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/latticekb/lattice/pkg/summarizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeShortAndBullets(t *testing.T) {
	text := "Paris is the capital of France. It sits on the Seine. " +
		"The city hosts the Louvre. Millions visit every year."

	sum := summarizer.Summarize(text, 2, 3)
	require.NotNil(t, sum)
	assert.Equal(t, "Paris is the capital of France. It sits on the Seine.", sum.Short)
	// no bullet lines in the source, so trailing sentences are promoted
	require.Len(t, sum.Bullets, 3)
	assert.Equal(t, "It sits on the Seine.", sum.Bullets[0])
}

func TestSummarizePrefersExistingBulletLines(t *testing.T) {
	text := "Release notes follow.\n- fixed ingest retry\n* faster rollups\n3 known issues remain\nplain trailing line"

	sum := summarizer.Summarize(text, 1, 10)
	require.Len(t, sum.Bullets, 3)
	assert.Equal(t, "- fixed ingest retry", sum.Bullets[0])
	assert.Equal(t, "* faster rollups", sum.Bullets[1])
	assert.Equal(t, "3 known issues remain", sum.Bullets[2])
}

func TestSummarizeBulletTruncation(t *testing.T) {
	long := "- " + strings.Repeat("x", 400)
	sum := summarizer.Summarize("Intro sentence. \n"+long, 1, 5)
	require.NotEmpty(t, sum.Bullets)
	assert.Len(t, sum.Bullets[0], 220)
}

func TestSummarizeBulletTruncationKeepsRunesWhole(t *testing.T) {
	// 3-byte runes sized so the byte cut lands inside one
	sum := summarizer.Summarize("Intro sentence. \n- "+strings.Repeat("→", 100), 1, 5)
	require.NotEmpty(t, sum.Bullets)
	assert.True(t, utf8.ValidString(sum.Bullets[0]))
	assert.Less(t, len(sum.Bullets[0]), 220)
}

func TestSummarizeNoSentenceBoundary(t *testing.T) {
	text := strings.Repeat("word ", 200) // no terminator anywhere
	sum := summarizer.Summarize(text, 3, 3)
	assert.NotEmpty(t, sum.Short)
	assert.LessOrEqual(t, len(sum.Short), 280)
}

func TestKeyPointsRankedByFrequency(t *testing.T) {
	text := "ingest ingest ingest rollup rollup search chunk the and for"
	sum := summarizer.Summarize(text, 1, 1)
	require.NotEmpty(t, sum.KeyPoints)
	assert.Equal(t, "ingest", sum.KeyPoints[0])
	assert.Equal(t, "rollup", sum.KeyPoints[1])
	// stopwords and short words never rank
	assert.NotContains(t, sum.KeyPoints, "the")
	assert.NotContains(t, sum.KeyPoints, "and")
	assert.LessOrEqual(t, len(sum.KeyPoints), 5)
}

func TestKeyPointsTieBreakByFirstOccurrence(t *testing.T) {
	text := "zebra apple zebra apple banana"
	sum := summarizer.Summarize(text, 1, 1)
	require.GreaterOrEqual(t, len(sum.KeyPoints), 2)
	assert.Equal(t, "zebra", sum.KeyPoints[0])
	assert.Equal(t, "apple", sum.KeyPoints[1])
}

func TestSplitSentences(t *testing.T) {
	got := summarizer.SplitSentences("One. Two! Three? Four")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "Four"}, got)

	assert.Empty(t, summarizer.SplitSentences(""))
}
