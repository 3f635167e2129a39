// Package search implements the two-tier retrieval cascade. The vector tier
// needs both an embedder and a reachable index; anything short of that drops
// the query to the lexical tier against Postgres. Responses are tagged with
// the tier that produced them so callers can tell degraded answers apart.
package search

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/latticekb/lattice/internal/errs"
	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/internal/types"
	"github.com/latticekb/lattice/pkg/summarizer"
)

const (
	// ModeVector tags results served from the vector index.
	ModeVector = "qdrant"
	// ModeFallback tags results served by the lexical tier.
	ModeFallback = "fallback"
	// ModeLLM tags answers written by the external composer.
	ModeLLM = "llm"
	// ModeSummary tags answers assembled by the heuristic summarizer.
	ModeSummary = "summary"

	defaultTopK   = 5
	maxTopK       = 50
	snippetLen    = 200
	contextLen    = 900
	answerSources = 5
)

// Store is the slice of the document store the cascade needs.
type Store interface {
	SearchLexical(ctx context.Context, query string, day *time.Time, topic string, limit int) ([]models.Document, error)
	GetDocumentsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Document, error)
}

// Query is one search request. Scope selects chunk-level or document-level
// retrieval; the zero value means chunks.
type Query struct {
	Text  string
	TopK  int
	Scope string
	Day   *time.Time
	Topic string
}

// Result carries the ranked items plus the tier that produced them.
type Result struct {
	Items []models.SearchItem `json:"items"`
	Total int                 `json:"total"`
	Mode  string              `json:"mode"`
}

// Answer is a composed response with the retrieval trail that grounded it.
type Answer struct {
	Answer  string              `json:"answer"`
	Mode    string              `json:"mode"`
	Sources []models.SearchItem `json:"sources"`
}

// Cascade routes queries across the vector and lexical tiers.
type Cascade struct {
	store    Store
	index    types.VectorIndex
	embedder types.Embedder
	composer types.Composer
	log      *zap.Logger
}

// New builds a cascade. Index, embedder and composer may each be nil.
func New(store Store, index types.VectorIndex, embedder types.Embedder,
	composer types.Composer, log *zap.Logger) *Cascade {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cascade{store: store, index: index, embedder: embedder, composer: composer, log: log}
}

// Search runs one query through the cascade.
func (c *Cascade) Search(ctx context.Context, q Query) (*Result, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, errs.Validation("query", "must not be empty")
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	if q.Scope == "" {
		q.Scope = "chunks"
	}
	if q.Scope != "chunks" && q.Scope != "docs" {
		return nil, errs.Validation("scope", "must be chunks or docs")
	}

	if c.vectorReady(ctx) {
		items, err := c.vectorSearch(ctx, q)
		if err == nil {
			return &Result{Items: items, Total: len(items), Mode: ModeVector}, nil
		}
		c.log.Warn("vector tier failed, dropping to lexical", zap.Error(err))
	}

	items, err := c.lexicalSearch(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Result{Items: items, Total: len(items), Mode: ModeFallback}, nil
}

// Ask retrieves context for the query and composes an answer over it.
func (c *Cascade) Ask(ctx context.Context, q Query) (*Answer, error) {
	res, err := c.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	sources := res.Items
	if len(sources) > answerSources {
		sources = sources[:answerSources]
	}
	if len(sources) == 0 {
		return &Answer{
			Answer:  "No captured content matches this question.",
			Mode:    ModeSummary,
			Sources: []models.SearchItem{},
		}, nil
	}

	contexts := make([]string, 0, len(sources))
	for _, item := range sources {
		block := item.Snippet
		if item.Title != "" {
			block = item.Title + "\n" + block
		}
		block = cutAt(block, contextLen)
		contexts = append(contexts, block)
	}

	if c.composer != nil {
		text, err := c.composer.Compose(ctx, q.Text, contexts)
		if err == nil {
			return &Answer{Answer: text, Mode: ModeLLM, Sources: sources}, nil
		}
		c.log.Warn("composer failed, using extractive answer", zap.Error(err))
	}

	sum := summarizer.Summarize(strings.Join(contexts, "\n\n"),
		summarizer.DefaultSentences, summarizer.DefaultBullets)
	return &Answer{Answer: sum.Short, Mode: ModeSummary, Sources: sources}, nil
}

func (c *Cascade) vectorReady(ctx context.Context) bool {
	if c.embedder == nil || c.index == nil {
		return false
	}
	if err := c.index.Ready(ctx); err != nil {
		c.log.Warn("index not ready", zap.Error(err))
		return false
	}
	return true
}

func (c *Cascade) vectorSearch(ctx context.Context, q Query) ([]models.SearchItem, error) {
	vectors, err := c.embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		return nil, errs.Upstream("embedder", err)
	}

	filter := types.IndexFilter{Topic: q.Topic}
	if q.Day != nil {
		filter.DayBucket = q.Day.UTC().Format("2006-01-02")
	}

	if q.Scope == "docs" {
		hits, err := c.index.SearchDocs(ctx, vectors[0], q.TopK, filter)
		if err != nil {
			return nil, errs.Upstream("qdrant", err)
		}
		return c.docItems(ctx, hits)
	}

	// chunk payloads carry no topic; apply it after the fact via the parent
	// document when requested
	filter.Topic = ""
	hits, err := c.index.SearchChunks(ctx, vectors[0], q.TopK, filter)
	if err != nil {
		return nil, errs.Upstream("qdrant", err)
	}
	return c.chunkItems(ctx, hits, q.Topic)
}

func (c *Cascade) chunkItems(ctx context.Context, hits []types.IndexHit, topic string) ([]models.SearchItem, error) {
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.DocID)
	}
	docs, err := c.store.GetDocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, errs.Store("search", err)
	}

	items := make([]models.SearchItem, 0, len(hits))
	for _, h := range hits {
		score := h.Score
		item := models.SearchItem{
			ID:         h.ChunkID,
			Type:       "chunk",
			DocID:      h.DocID,
			Snippet:    clip(h.Text, snippetLen),
			CapturedAt: h.CapturedAt,
			Score:      &score,
		}
		if doc := docs[h.DocID]; doc != nil {
			item.Title = doc.Title
			item.SourceURL = doc.SourceURL
			if doc.Topics != nil {
				item.Topic = doc.Topics.Primary
			}
		}
		if topic != "" && item.Topic != topic {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Cascade) docItems(ctx context.Context, hits []types.IndexHit) ([]models.SearchItem, error) {
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.DocID)
	}
	docs, err := c.store.GetDocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, errs.Store("search", err)
	}

	items := make([]models.SearchItem, 0, len(hits))
	for _, h := range hits {
		doc := docs[h.DocID]
		if doc == nil {
			// index lag: the vector outlived the row
			continue
		}
		score := h.Score
		item := models.SearchItem{
			ID:         doc.ID,
			Type:       "document",
			DocID:      doc.ID,
			Title:      doc.Title,
			Snippet:    docSnippet(doc),
			SourceURL:  doc.SourceURL,
			CapturedAt: doc.CapturedAt,
			Score:      &score,
		}
		if doc.Topics != nil {
			item.Topic = doc.Topics.Primary
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Cascade) lexicalSearch(ctx context.Context, q Query) ([]models.SearchItem, error) {
	docs, err := c.store.SearchLexical(ctx, q.Text, q.Day, q.Topic, q.TopK)
	if err != nil {
		return nil, errs.Store("search", err)
	}

	items := make([]models.SearchItem, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		item := models.SearchItem{
			ID:         doc.ID,
			Type:       "document",
			DocID:      doc.ID,
			Title:      doc.Title,
			Snippet:    matchSnippet(doc.CleanedText, q.Text),
			SourceURL:  doc.SourceURL,
			CapturedAt: doc.CapturedAt,
		}
		if doc.Topics != nil {
			item.Topic = doc.Topics.Primary
		}
		items = append(items, item)
	}
	return items, nil
}

func docSnippet(doc *models.Document) string {
	if doc.Summary != nil && doc.Summary.Short != "" {
		return clip(doc.Summary.Short, snippetLen)
	}
	return clip(doc.CleanedText, snippetLen)
}

// matchSnippet centers the snippet on the first occurrence of the query so
// lexical hits show why they matched.
func matchSnippet(text, query string) string {
	pos := strings.Index(strings.ToLower(text), strings.ToLower(query))
	if pos < 0 {
		return clip(text, snippetLen)
	}
	start := pos - snippetLen/4
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	return clip(text[start:], snippetLen)
}

func clip(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > n {
		return cutAt(text, n) + "…"
	}
	return text
}

// cutAt returns the longest prefix of s within n bytes that ends on a rune
// boundary.
func cutAt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
