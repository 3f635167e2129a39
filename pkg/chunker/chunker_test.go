package chunker_test

import (
	"strings"
	"testing"

	"github.com/latticekb/lattice/internal/errs"
	"github.com/latticekb/lattice/pkg/chunker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCountMatchesFormula(t *testing.T) {
	tests := []struct {
		length  int
		size    int
		overlap int
	}{
		{100, 40, 10},
		{1000, 1000, 200},
		{2500, 1000, 200},
		{10, 4, 1},
		{1, 4, 1},
	}

	for _, tt := range tests {
		text := strings.Repeat("a", tt.length)
		spans, err := chunker.Split(text, chunker.Params{ChunkSize: tt.size, ChunkOverlap: tt.overlap})
		require.NoError(t, err)

		stride := tt.size - tt.overlap
		want := (tt.length - tt.overlap + stride - 1) / stride
		if want < 1 {
			want = 1
		}
		assert.Len(t, spans, want, "length=%d size=%d overlap=%d", tt.length, tt.size, tt.overlap)
	}
}

func TestSplitOverlapAndOffsets(t *testing.T) {
	text := "abcdefghij" // 10 chars
	spans, err := chunker.Split(text, chunker.Params{ChunkSize: 4, ChunkOverlap: 1})
	require.NoError(t, err)
	require.Len(t, spans, 3)

	assert.Equal(t, "abcd", spans[0].Text)
	assert.Equal(t, "defg", spans[1].Text)
	assert.Equal(t, "ghij", spans[2].Text)

	for i, s := range spans {
		assert.Equal(t, text[s.Start:s.End], s.Text, "span %d offsets", i)
	}
	// trailing char of each window repeats as the head of the next
	assert.Equal(t, spans[0].Text[3:], spans[1].Text[:1])
}

func TestSplitRejectsDegenerateParams(t *testing.T) {
	_, err := chunker.Split("text", chunker.Params{ChunkSize: 100, ChunkOverlap: 100})
	assert.True(t, errs.IsValidation(err))

	_, err = chunker.Split("text", chunker.Params{ChunkSize: 100, ChunkOverlap: 150})
	assert.True(t, errs.IsValidation(err))

	_, err = chunker.Split("text", chunker.Params{ChunkSize: 0, ChunkOverlap: 0})
	assert.True(t, errs.IsValidation(err))
}

func TestSplitEmptyText(t *testing.T) {
	spans, err := chunker.Split("", chunker.Params{ChunkSize: 10, ChunkOverlap: 2})
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestResolve(t *testing.T) {
	p := chunker.Resolve(0, nil)
	assert.Equal(t, chunker.DefaultChunkSize, p.ChunkSize)
	assert.Equal(t, chunker.DefaultChunkOverlap, p.ChunkOverlap)

	small := chunker.Resolve(50, nil)
	assert.Equal(t, 50, small.ChunkSize)
	assert.Equal(t, 0, small.ChunkOverlap)

	// an explicit zero is a request for disjoint windows, not "unset"
	zero := 0
	explicit := chunker.Resolve(1000, &zero)
	assert.Equal(t, 0, explicit.ChunkOverlap)

	forty := 40
	custom := chunker.Resolve(500, &forty)
	assert.Equal(t, 40, custom.ChunkOverlap)
}

func TestSplitExplicitZeroOverlap(t *testing.T) {
	text := strings.Repeat("a", 2900)
	zero := 0
	spans, err := chunker.Split(text, chunker.Resolve(1000, &zero))
	require.NoError(t, err)
	require.Len(t, spans, 3)
	assert.Equal(t, 1000, spans[1].Start)
	assert.Equal(t, 2000, spans[2].Start)
}
