package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/latticekb/lattice/pkg/pipeline"
	"github.com/latticekb/lattice/pkg/scraper"
)

var errNotConfigured = errors.New("not configured")

// crawlIngester feeds crawled pages into the pipeline. Duplicate pages are
// expected on re-crawls and not treated as failures.
func (s *Server) crawlIngester(sessionID, agentRunID string) scraper.PageHandler {
	return func(ctx context.Context, page *scraper.Page) error {
		result, err := s.pipeline.Ingest(ctx, pipeline.IngestInput{
			Text:        page.Content,
			SourceURL:   page.URL,
			Title:       page.Title,
			ContentType: page.ContentType,
			SessionID:   sessionID,
			AgentRunID:  agentRunID,
		})
		if err != nil {
			return err
		}
		s.log.Debug("crawled page ingested",
			zap.String("url", page.URL),
			zap.Int64("doc_id", result.DocumentID),
			zap.Bool("duplicate", result.Duplicate))
		return nil
	}
}
