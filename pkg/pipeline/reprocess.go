package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/latticekb/lattice/internal/errs"
	"github.com/latticekb/lattice/pkg/chunker"
)

// ReprocessResult reports the chunk churn of one reprocess call.
type ReprocessResult struct {
	Replaced int `json:"replaced"`
	Inserted int `json:"inserted"`
}

// Reprocess re-runs the chunk and embed stages against a document's stored
// cleaned text. With replace true the existing chunk set (and its index
// vectors) is removed first; this is the only path that mutates a
// document's chunks in place. Without replace, chunks are only inserted
// when the document has none yet.
func (p *Pipeline) Reprocess(ctx context.Context, docID int64, size int, overlap *int, replace bool) (*ReprocessResult, error) {
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, errs.Store("reprocess", err)
	}
	if doc == nil {
		return nil, errs.Validation("doc_id", "document not found")
	}

	spans, err := chunker.Split(doc.CleanedText, chunker.Resolve(size, overlap))
	if err != nil {
		return nil, err
	}

	chunks := p.buildChunks(doc, spans)
	for i := range chunks {
		chunks[i].DocID = doc.ID
	}
	p.embedChunks(ctx, chunks)

	result := &ReprocessResult{}
	if replace {
		removed, err := p.store.DeleteChunks(ctx, doc.ID)
		if err != nil {
			return nil, errs.Store("reprocess", err)
		}
		result.Replaced = removed
		if p.index != nil {
			if err := p.index.DeleteDocument(ctx, doc.ID); err != nil {
				p.log.Warn("index chunk cleanup failed",
					zap.Int64("doc_id", doc.ID), zap.Error(err))
			}
		}
	} else {
		existing, err := p.store.CountChunks(ctx, doc.ID)
		if err != nil {
			return nil, errs.Store("reprocess", err)
		}
		if existing > 0 {
			// keep the current set; reprocess without replace only fills
			// in documents that have no chunks at all
			return result, nil
		}
	}

	ids, err := p.store.InsertChunks(ctx, chunks)
	if err != nil {
		return nil, errs.Store("reprocess", err)
	}
	for i := range chunks {
		chunks[i].ID = ids[i]
	}
	result.Inserted = len(ids)

	p.syncIndex(ctx, doc, chunks)
	return result, nil
}
