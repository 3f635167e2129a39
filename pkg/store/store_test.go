package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/pkg/identity"
	"github.com/latticekb/lattice/pkg/store"
)

// newTestStore connects to the database named by TEST_DATABASE_URL. The
// suite is skipped when the variable is unset so unit runs stay hermetic.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := store.New(context.Background(), store.Config{ConnString: url, VectorDim: 4})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testDoc(text string) *models.Document {
	now := time.Now().UTC()
	return &models.Document{
		SourceURL:   "https://example.com/page",
		Title:       "Test Page",
		CleanedText: text,
		TokenCount:  identity.TokenCount(text),
		ContentHash: identity.Hash(text),
		CapturedAt:  now,
		DayBucket:   identity.DayBucket(now),
		Topics:      &models.Topics{Primary: "tech/testing"},
	}
}

func TestInsertDocumentDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDoc(fmt.Sprintf("unique content %d", time.Now().UnixNano()))
	id, duplicate, err := s.InsertDocument(ctx, doc)
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.NotZero(t, id)

	again, duplicate, err := s.InsertDocument(ctx, testDoc(doc.CleanedText))
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, id, again)

	loaded, err := s.GetDocument(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, doc.ContentHash, loaded.ContentHash)
	assert.Equal(t, "tech/testing", loaded.Topics.Primary)
}

func TestChunkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDoc(fmt.Sprintf("chunked content %d", time.Now().UnixNano()))
	id, _, err := s.InsertDocument(ctx, doc)
	require.NoError(t, err)

	chunks := []models.Chunk{
		{DocID: id, Idx: 0, Text: "first", CharStart: 0, CharEnd: 5, CapturedAt: doc.CapturedAt, DayBucket: doc.DayBucket},
		{DocID: id, Idx: 1, Text: "second", CharStart: 3, CharEnd: 9, CapturedAt: doc.CapturedAt, DayBucket: doc.DayBucket},
	}
	ids, err := s.InsertChunks(ctx, chunks)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	count, err := s.CountChunks(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	listed, err := s.ListChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 0, listed[0].Idx)
	assert.Equal(t, "second", listed[1].Text)

	removed, err := s.DeleteChunks(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestRollupUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	date := identity.DayBucket(time.Now().UTC())
	r := &models.DailyRollup{
		Date:      date,
		Summary:   "first build",
		Bullets:   []string{"a", "b"},
		TopTopics: []models.TopicCount{{Topic: "tech/testing", Count: 2}},
	}
	require.NoError(t, s.UpsertRollup(ctx, r))

	r.Summary = "rebuilt"
	require.NoError(t, s.UpsertRollup(ctx, r))

	loaded, err := s.GetRollup(ctx, date)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "rebuilt", loaded.Summary)
	assert.Equal(t, []string{"a", "b"}, loaded.Bullets)
}

func TestSearchLexicalFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	marker := fmt.Sprintf("xylophone%d", time.Now().UnixNano())
	doc := testDoc("a document mentioning " + marker + " somewhere")
	_, _, err := s.InsertDocument(ctx, doc)
	require.NoError(t, err)

	found, err := s.SearchLexical(ctx, marker, nil, "", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	day := doc.DayBucket
	found, err = s.SearchLexical(ctx, marker, &day, "tech/testing", 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	otherDay := day.AddDate(0, 0, -1)
	found, err = s.SearchLexical(ctx, marker, &otherDay, "", 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCaptures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	capture := &models.Capture{Text: "raw note", Metadata: map[string]any{"kind": "test"}}
	id, err := s.InsertCapture(ctx, capture)
	require.NoError(t, err)
	assert.NotZero(t, id)

	now := time.Now().UTC()
	captures, err := s.CapturesBetween(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.NotEmpty(t, captures)

	last := captures[len(captures)-1]
	assert.Equal(t, "raw note", last.Text)
	assert.Equal(t, "test", last.Metadata["kind"])
}
