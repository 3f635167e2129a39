// Package types holds the capability interfaces shared across the pipeline,
// search cascade and server. External providers are optional: a nil value
// means the capability is absent and callers branch to their documented
// fallback instead of calling it.
package types

import (
	"context"
	"time"

	"github.com/latticekb/lattice/internal/models"
)

// Embedder turns text into vectors. Batched; one vector per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Categorizer assigns topic labels to a piece of text. known carries the
// topic slugs already present in the store so labels stay consistent.
type Categorizer interface {
	Categorize(ctx context.Context, text string, known []string) (*models.Topics, error)
}

// Summarizer produces the short/bullets/key-points digest for a document.
type Summarizer interface {
	Summarize(ctx context.Context, text string, sentences, bullets int) (*models.Summary, error)
}

// Composer writes a grounded answer from a query and numbered context blocks.
type Composer interface {
	Compose(ctx context.Context, query string, contexts []string) (string, error)
}

// IndexFilter narrows a nearest-neighbor query. Zero values mean no filter.
type IndexFilter struct {
	DayBucket string
	Topic     string
}

// IndexHit is one nearest-neighbor result. Chunk hits are self-contained;
// document hits only carry DocID and require a store lookup.
type IndexHit struct {
	DocID      int64
	ChunkID    int64
	Idx        int
	Text       string
	SourceURL  string
	Topic      string
	CapturedAt time.Time
	Score      float32
}

// VectorIndex is the nearest-neighbor service. All writes are best effort:
// ingest swallows index failures and the store stays authoritative.
type VectorIndex interface {
	Ready(ctx context.Context) error
	UpsertChunks(ctx context.Context, chunks []models.Chunk) error
	UpsertDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, docID int64) error
	SearchChunks(ctx context.Context, vector []float32, topK int, f IndexFilter) ([]IndexHit, error)
	SearchDocs(ctx context.Context, vector []float32, topK int, f IndexFilter) ([]IndexHit, error)
}
