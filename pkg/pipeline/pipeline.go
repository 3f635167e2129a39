// Package pipeline orchestrates ingestion: clean, chunk, embed, summarize,
// categorize, persist. Stages run strictly in order over a shared state
// record; enrichment failures are isolated and never abort an ingest, while
// validation and store failures surface immediately.
package pipeline

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/latticekb/lattice/internal/errs"
	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/internal/types"
	"github.com/latticekb/lattice/pkg/chunker"
	"github.com/latticekb/lattice/pkg/identity"
	"github.com/latticekb/lattice/pkg/summarizer"
	"github.com/latticekb/lattice/pkg/topics"
)

// docEmbedLimit caps the text sent for the document-level vector.
const docEmbedLimit = 2000

// Store is the slice of the document store ingestion needs.
type Store interface {
	InsertDocument(ctx context.Context, doc *models.Document) (int64, bool, error)
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	InsertChunks(ctx context.Context, chunks []models.Chunk) ([]int64, error)
	DeleteChunks(ctx context.Context, docID int64) (int, error)
	CountChunks(ctx context.Context, docID int64) (int, error)
	TopicsHistogram(ctx context.Context, query string, limit int) ([]models.TopicCount, error)
}

// Pipeline wires the store with the optional enrichment adapters. Any of
// Embedder, Categorizer, Summarizer or Index may be nil.
type Pipeline struct {
	store       Store
	index       types.VectorIndex
	embedder    types.Embedder
	categorizer types.Categorizer
	summarizer  types.Summarizer
	log         *zap.Logger
}

// New builds a pipeline. Nil adapters select the documented fallbacks.
func New(store Store, index types.VectorIndex, embedder types.Embedder,
	categorizer types.Categorizer, sum types.Summarizer, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		store:       store,
		index:       index,
		embedder:    embedder,
		categorizer: categorizer,
		summarizer:  sum,
		log:         log,
	}
}

// IngestInput carries one document's raw text and capture metadata.
type IngestInput struct {
	Text         string
	SourceURL    string
	CanonicalURL string
	Title        string
	ContentType  string
	Language     string
	Tags         []string
	CapturedAt   time.Time
	PublishedAt  *time.Time
	SessionID    string
	AgentRunID   string
	Metadata     map[string]any
	TokenCount   int
	ChunkSize    int
	// ChunkOverlap nil means the default geometry; zero disables overlap.
	ChunkOverlap *int
}

// IngestResult reports where the content ended up. Duplicate means the text
// hashed to an existing document; the ids then refer to that document.
type IngestResult struct {
	DocumentID int64   `json:"id"`
	Duplicate  bool    `json:"duplicate"`
	ChunkCount int     `json:"chunk_count"`
	ChunkIDs   []int64 `json:"chunk_ids,omitempty"`
}

type ingestState struct {
	in     IngestInput
	params chunker.Params
	doc    *models.Document
	chunks []models.Chunk
	result IngestResult
}

type stage struct {
	name string
	run  func(ctx context.Context, st *ingestState) error
}

// Ingest runs the full stage sequence for one piece of text.
func (p *Pipeline) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	st := &ingestState{in: in}
	stages := []stage{
		{"clean", p.stageClean},
		{"chunk", p.stageChunk},
		{"embed", p.stageEmbed},
		{"summarize", p.stageSummarize},
		{"categorize", p.stageCategorize},
		{"persist", p.stagePersist},
	}
	for _, sg := range stages {
		if err := sg.run(ctx, st); err != nil {
			return nil, err
		}
	}
	return &st.result, nil
}

func (p *Pipeline) stageClean(_ context.Context, st *ingestState) error {
	text := strings.TrimSpace(st.in.Text)
	if text == "" {
		return errs.Validation("text", "must not be empty")
	}

	capturedAt := st.in.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	capturedAt = capturedAt.UTC()

	tokenCount := st.in.TokenCount
	if tokenCount == 0 {
		tokenCount = identity.TokenCount(text)
	}

	canonical := st.in.CanonicalURL
	if canonical == "" {
		canonical = st.in.SourceURL
	}

	st.params = chunker.Resolve(st.in.ChunkSize, st.in.ChunkOverlap)

	st.doc = &models.Document{
		SourceURL:    st.in.SourceURL,
		CanonicalURL: canonical,
		Domain:       identity.Domain(canonical),
		Title:        st.in.Title,
		ContentType:  st.in.ContentType,
		Language:     st.in.Language,
		CleanedText:  text,
		TokenCount:   tokenCount,
		ContentHash:  identity.Hash(text),
		Tags:         st.in.Tags,
		CapturedAt:   capturedAt,
		CapturedHour: identity.CapturedHour(capturedAt),
		DayBucket:    identity.DayBucket(capturedAt),
		PublishedAt:  st.in.PublishedAt,
		SessionID:    st.in.SessionID,
		AgentRunID:   st.in.AgentRunID,
		Metadata:     st.in.Metadata,
	}
	return nil
}

func (p *Pipeline) stageChunk(_ context.Context, st *ingestState) error {
	spans, err := chunker.Split(st.doc.CleanedText, st.params)
	if err != nil {
		return err
	}
	st.chunks = p.buildChunks(st.doc, spans)
	return nil
}

func (p *Pipeline) buildChunks(doc *models.Document, spans []chunker.Span) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(spans))
	for i, span := range spans {
		chunks = append(chunks, models.Chunk{
			Idx:          i,
			Text:         span.Text,
			TokenCount:   identity.TokenCount(span.Text),
			CharStart:    span.Start,
			CharEnd:      span.End,
			PointID:      uuid.NewString(),
			CapturedAt:   doc.CapturedAt,
			CapturedHour: doc.CapturedHour,
			DayBucket:    doc.DayBucket,
		})
	}
	return chunks
}

func (p *Pipeline) stageEmbed(ctx context.Context, st *ingestState) error {
	p.embedChunks(ctx, st.chunks)
	if p.embedder == nil {
		return nil
	}

	text := st.doc.CleanedText
	if len(text) > docEmbedLimit {
		cut := docEmbedLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	vectors, err := p.embedder.Embed(ctx, []string{text})
	if err != nil {
		p.log.Warn("document embedding failed", zap.Error(err))
		return nil
	}
	st.doc.Embedding = vectors[0]
	return nil
}

// embedChunks fills in chunk vectors sequentially so idx order is preserved
// no matter how the provider behaves. A failed chunk keeps a nil embedding.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []models.Chunk) {
	if p.embedder == nil {
		return
	}
	for i := range chunks {
		vectors, err := p.embedder.Embed(ctx, []string{chunks[i].Text})
		if err != nil {
			p.log.Warn("chunk embedding failed",
				zap.Int("idx", chunks[i].Idx), zap.Error(err))
			continue
		}
		chunks[i].Embedding = vectors[0]
	}
}

func (p *Pipeline) stageSummarize(ctx context.Context, st *ingestState) error {
	if p.summarizer != nil {
		sum, err := p.summarizer.Summarize(ctx, st.doc.CleanedText,
			summarizer.DefaultSentences, summarizer.DefaultBullets)
		if err == nil {
			st.doc.Summary = sum
			return nil
		}
		p.log.Warn("external summarizer failed, using heuristic", zap.Error(err))
	}
	st.doc.Summary = summarizer.Summarize(st.doc.CleanedText,
		summarizer.DefaultSentences, summarizer.DefaultBullets)
	return nil
}

func (p *Pipeline) stageCategorize(ctx context.Context, st *ingestState) error {
	if p.categorizer != nil {
		known := p.knownTopics(ctx)
		t, err := p.categorizer.Categorize(ctx, st.doc.CleanedText, known)
		if err == nil && t != nil {
			st.doc.Topics = t
			return nil
		}
		if err != nil {
			p.log.Warn("categorizer failed, using heuristic", zap.Error(err))
		}
	}
	// nil topics are acceptable; a categorization miss never fails ingest
	st.doc.Topics = topics.Classify(st.doc.CleanedText)
	return nil
}

func (p *Pipeline) knownTopics(ctx context.Context) []string {
	histogram, err := p.store.TopicsHistogram(ctx, "", 30)
	if err != nil {
		return nil
	}
	slugs := make([]string, 0, len(histogram))
	for _, tc := range histogram {
		slugs = append(slugs, tc.Topic)
	}
	return slugs
}

func (p *Pipeline) stagePersist(ctx context.Context, st *ingestState) error {
	now := time.Now().UTC()
	st.doc.ProcessedAt = &now

	id, duplicate, err := p.store.InsertDocument(ctx, st.doc)
	if err != nil {
		return errs.Store("persist", err)
	}
	st.result.DocumentID = id
	st.result.Duplicate = duplicate

	if duplicate {
		// identical content already ingested: report the existing state
		// and leave its chunk set untouched
		count, err := p.store.CountChunks(ctx, id)
		if err != nil {
			return errs.Store("persist", err)
		}
		st.result.ChunkCount = count
		return nil
	}

	for i := range st.chunks {
		st.chunks[i].DocID = id
	}
	ids, err := p.store.InsertChunks(ctx, st.chunks)
	if err != nil {
		return errs.Store("persist", err)
	}
	for i := range st.chunks {
		st.chunks[i].ID = ids[i]
	}
	st.result.ChunkCount = len(ids)
	st.result.ChunkIDs = ids

	p.syncIndex(ctx, st.doc, st.chunks)
	return nil
}

// syncIndex pushes vectors best effort; the index is eventually consistent
// with the store and its failures are never surfaced to the caller.
func (p *Pipeline) syncIndex(ctx context.Context, doc *models.Document, chunks []models.Chunk) {
	if p.index == nil {
		return
	}
	if err := p.index.UpsertChunks(ctx, chunks); err != nil {
		p.log.Warn("chunk index sync failed", zap.Int64("doc_id", doc.ID), zap.Error(err))
	}
	if err := p.index.UpsertDocument(ctx, doc); err != nil {
		p.log.Warn("document index sync failed", zap.Int64("doc_id", doc.ID), zap.Error(err))
	}
}
