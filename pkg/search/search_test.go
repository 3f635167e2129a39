package search_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/latticekb/lattice/internal/errs"
	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/internal/types"
	"github.com/latticekb/lattice/pkg/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	docs         map[int64]*models.Document
	lexicalCalls int
	lastDay      *time.Time
	lastTopic    string
}

func (s *fakeStore) SearchLexical(_ context.Context, query string, day *time.Time, topic string, limit int) ([]models.Document, error) {
	s.lexicalCalls++
	s.lastDay = day
	s.lastTopic = topic

	var out []models.Document
	for _, doc := range s.docs {
		text := strings.ToLower(doc.CleanedText + " " + doc.Title)
		if strings.Contains(text, strings.ToLower(query)) {
			out = append(out, *doc)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) GetDocumentsByIDs(_ context.Context, ids []int64) (map[int64]*models.Document, error) {
	out := make(map[int64]*models.Document)
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

type fakeIndex struct {
	ready     error
	chunkHits []types.IndexHit
	docHits   []types.IndexHit
	lastFlt   types.IndexFilter
}

func (i *fakeIndex) Ready(context.Context) error { return i.ready }

func (i *fakeIndex) UpsertChunks(context.Context, []models.Chunk) error { return nil }

func (i *fakeIndex) UpsertDocument(context.Context, *models.Document) error { return nil }

func (i *fakeIndex) DeleteDocument(context.Context, int64) error { return nil }

func (i *fakeIndex) SearchChunks(_ context.Context, _ []float32, _ int, f types.IndexFilter) ([]types.IndexHit, error) {
	i.lastFlt = f
	return i.chunkHits, nil
}

func (i *fakeIndex) SearchDocs(_ context.Context, _ []float32, _ int, f types.IndexFilter) ([]types.IndexHit, error) {
	i.lastFlt = f
	return i.docHits, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{0.5, 0.5}}, nil
}
func (fakeEmbedder) Dimension() int { return 2 }

type fakeComposer struct {
	err  error
	last []string
}

func (c *fakeComposer) Compose(_ context.Context, query string, contexts []string) (string, error) {
	c.last = contexts
	if c.err != nil {
		return "", c.err
	}
	return fmt.Sprintf("Composed answer to %q from %d sources.", query, len(contexts)), nil
}

func firecrawlStore() *fakeStore {
	return &fakeStore{docs: map[int64]*models.Document{
		1: {
			ID:          1,
			Title:       "Firecrawl",
			SourceURL:   "https://example.com/firecrawl",
			CleanedText: "Firecrawl turns websites into LLM-ready markdown. It crawls and scrapes pages.",
			Topics:      &models.Topics{Primary: "tech/web"},
			CapturedAt:  time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		},
	}}
}

func TestSearchFallsBackWithoutEmbedder(t *testing.T) {
	store := firecrawlStore()
	c := search.New(store, &fakeIndex{}, nil, nil, nil)

	res, err := c.Search(context.Background(), search.Query{Text: "firecrawl"})
	require.NoError(t, err)

	assert.Equal(t, search.ModeFallback, res.Mode)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "document", res.Items[0].Type)
	assert.Equal(t, "Firecrawl", res.Items[0].Title)
	assert.Contains(t, res.Items[0].Snippet, "Firecrawl")
	assert.Nil(t, res.Items[0].Score)
	assert.Equal(t, 1, store.lexicalCalls)
}

func TestSearchFallsBackWhenIndexNotReady(t *testing.T) {
	store := firecrawlStore()
	idx := &fakeIndex{ready: fmt.Errorf("connection refused")}
	c := search.New(store, idx, fakeEmbedder{}, nil, nil)

	res, err := c.Search(context.Background(), search.Query{Text: "firecrawl"})
	require.NoError(t, err)
	assert.Equal(t, search.ModeFallback, res.Mode)
}

func TestSearchVectorChunks(t *testing.T) {
	store := firecrawlStore()
	idx := &fakeIndex{chunkHits: []types.IndexHit{
		{DocID: 1, ChunkID: 10, Idx: 0, Text: "Firecrawl turns websites into markdown", Score: 0.87,
			CapturedAt: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)},
	}}
	c := search.New(store, idx, fakeEmbedder{}, nil, nil)

	day := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	res, err := c.Search(context.Background(), search.Query{Text: "crawling", Day: &day})
	require.NoError(t, err)

	assert.Equal(t, search.ModeVector, res.Mode)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, "chunk", item.Type)
	assert.Equal(t, int64(10), item.ID)
	assert.Equal(t, int64(1), item.DocID)
	assert.Equal(t, "Firecrawl", item.Title, "parent document fills in title")
	assert.Equal(t, "tech/web", item.Topic)
	require.NotNil(t, item.Score)
	assert.Equal(t, float32(0.87), *item.Score)
	assert.Equal(t, "2024-03-05", idx.lastFlt.DayBucket)
	assert.Empty(t, idx.lastFlt.Topic, "chunk payloads carry no topic")
}

func TestSearchVectorDocsScope(t *testing.T) {
	store := firecrawlStore()
	idx := &fakeIndex{docHits: []types.IndexHit{
		{DocID: 1, Score: 0.7},
		{DocID: 404, Score: 0.6},
	}}
	c := search.New(store, idx, fakeEmbedder{}, nil, nil)

	res, err := c.Search(context.Background(),
		search.Query{Text: "crawling", Scope: "docs", Topic: "tech/web"})
	require.NoError(t, err)

	require.Len(t, res.Items, 1, "hits without a stored document are dropped")
	assert.Equal(t, "document", res.Items[0].Type)
	assert.Equal(t, "tech/web", idx.lastFlt.Topic)
}

func TestSearchSnippetKeepsRunesWhole(t *testing.T) {
	// both documents force the snippet cut to land inside a 3-byte rune:
	// one at the trailing clip, one at the centering offset before the match
	store := &fakeStore{docs: map[int64]*models.Document{
		1: {ID: 1, Title: "Arrows", CleanedText: "firecrawl " + strings.Repeat("→", 120)},
		2: {ID: 2, Title: "Checks", CleanedText: strings.Repeat("→", 40) + "firecrawl " + strings.Repeat("✓", 100)},
	}}
	c := search.New(store, nil, nil, nil, nil)

	res, err := c.Search(context.Background(), search.Query{Text: "firecrawl"})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	for _, item := range res.Items {
		assert.True(t, utf8.ValidString(item.Snippet), "snippet for %q", item.Title)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	c := search.New(&fakeStore{}, nil, nil, nil, nil)
	_, err := c.Search(context.Background(), search.Query{Text: "  "})
	assert.True(t, errs.IsValidation(err))
}

func TestSearchRejectsUnknownScope(t *testing.T) {
	c := search.New(&fakeStore{}, nil, nil, nil, nil)
	_, err := c.Search(context.Background(), search.Query{Text: "x", Scope: "paragraphs"})
	assert.True(t, errs.IsValidation(err))
}

func TestAskWithComposer(t *testing.T) {
	store := firecrawlStore()
	comp := &fakeComposer{}
	c := search.New(store, nil, nil, comp, nil)

	ans, err := c.Ask(context.Background(), search.Query{Text: "firecrawl"})
	require.NoError(t, err)

	assert.Equal(t, search.ModeLLM, ans.Mode)
	assert.Contains(t, ans.Answer, "Composed answer")
	require.Len(t, ans.Sources, 1)
	require.Len(t, comp.last, 1)
	assert.LessOrEqual(t, len(comp.last[0]), 900)
}

func TestAskSummaryFallbackWhenComposerFails(t *testing.T) {
	store := firecrawlStore()
	comp := &fakeComposer{err: fmt.Errorf("model overloaded")}
	c := search.New(store, nil, nil, comp, nil)

	ans, err := c.Ask(context.Background(), search.Query{Text: "firecrawl"})
	require.NoError(t, err)
	assert.Equal(t, search.ModeSummary, ans.Mode)
	assert.NotEmpty(t, ans.Answer)
	assert.Len(t, ans.Sources, 1)
}

func TestAskNoMatches(t *testing.T) {
	c := search.New(&fakeStore{docs: map[int64]*models.Document{}}, nil, nil, &fakeComposer{}, nil)

	ans, err := c.Ask(context.Background(), search.Query{Text: "quantum basket weaving"})
	require.NoError(t, err)
	assert.Equal(t, search.ModeSummary, ans.Mode)
	assert.Empty(t, ans.Sources)
	assert.NotEmpty(t, ans.Answer)
}
