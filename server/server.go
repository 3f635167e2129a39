// Package server exposes the capture, search and rollup operations over
// HTTP/JSON, plus a websocket for interactive questions.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/pkg/pipeline"
	"github.com/latticekb/lattice/pkg/rollup"
	"github.com/latticekb/lattice/pkg/scraper"
	"github.com/latticekb/lattice/pkg/search"
)

// Store is the slice of the document store the handlers use directly; the
// rest goes through the pipeline, cascade and rollup builder.
type Store interface {
	Ping(ctx context.Context) error
	TopicsHistogram(ctx context.Context, query string, limit int) ([]models.TopicCount, error)
	RenameTopic(ctx context.Context, from, to string) (matched, modified int64, err error)
	InsertCapture(ctx context.Context, c *models.Capture) (int64, error)
}

// Server holds the wired components behind the HTTP surface.
type Server struct {
	store    Store
	pipeline *pipeline.Pipeline
	search   *search.Cascade
	rollup   *rollup.Builder
	scraper  *scraper.Scraper
	log      *zap.Logger
}

// New wires a server. The scraper may be nil; the URL and crawl endpoints
// then answer 502.
func New(store Store, p *pipeline.Pipeline, s *search.Cascade,
	r *rollup.Builder, sc *scraper.Scraper, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: store, pipeline: p, search: s, rollup: r, scraper: sc, log: log}
}

// Router builds the chi router with the full endpoint surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Post("/ingest", s.handleIngest)
	r.Post("/notes", s.handleNote)

	r.Route("/agent", func(r chi.Router) {
		r.Post("/ingest-text", s.handleIngest)
		r.Post("/ingest-url", s.handleIngestURL)
		r.Post("/crawl", s.handleCrawlStart)
		r.Get("/crawl/{id}", s.handleCrawlStatus)
	})

	r.Post("/reprocess/doc/{id}", s.handleReprocess)
	r.Post("/search/semantic", s.handleSearch)
	r.Post("/answer/compose", s.handleAnswer)
	r.Post("/rollup/day", s.handleRollup)

	r.Get("/topics", s.handleTopics)
	r.Post("/topics/rename", s.handleTopicRename)

	r.Get("/ws", s.handleWS)

	return r
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
