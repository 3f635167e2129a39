package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/latticekb/lattice/internal/errs"
	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/pkg/pipeline"
	"github.com/latticekb/lattice/pkg/search"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encoding failed", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto status codes: validation is the
// caller's fault, upstream means a dependency misbehaved, everything else
// is ours.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsValidation(err):
		status = http.StatusBadRequest
	case errs.IsUpstream(err):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Validation("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func parseDay(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, errs.Validation("day", "must be formatted YYYY-MM-DD")
	}
	day = day.UTC()
	return &day, nil
}

// handleHealth reports liveness of the store; a failed ping means the
// service cannot serve anything useful.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError,
			map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	Text         string         `json:"text"`
	CleanedText  string         `json:"cleaned_text"`
	SourceURL    string         `json:"source_url"`
	CanonicalURL string         `json:"canonical_url"`
	Title        string         `json:"title"`
	ContentType  string         `json:"content_type"`
	Language     string         `json:"language"`
	Tags         []string       `json:"tags"`
	CapturedAt   *time.Time     `json:"captured_at"`
	PublishedAt  *time.Time     `json:"published_at"`
	SessionID    string         `json:"session_id"`
	AgentRunID   string         `json:"agent_run_id"`
	Metadata     map[string]any `json:"metadata"`
	ChunkSize    int            `json:"chunk_size"`
	ChunkOverlap *int           `json:"chunk_overlap"`
}

func (req *ingestRequest) toInput() pipeline.IngestInput {
	text := req.Text
	if text == "" {
		// structured-doc captures submit cleaned_text instead
		text = req.CleanedText
	}
	in := pipeline.IngestInput{
		Text:         text,
		SourceURL:    req.SourceURL,
		CanonicalURL: req.CanonicalURL,
		Title:        req.Title,
		ContentType:  req.ContentType,
		Language:     req.Language,
		Tags:         req.Tags,
		PublishedAt:  req.PublishedAt,
		SessionID:    req.SessionID,
		AgentRunID:   req.AgentRunID,
		Metadata:     req.Metadata,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	}
	if req.CapturedAt != nil {
		in.CapturedAt = *req.CapturedAt
	}
	return in
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.pipeline.Ingest(r.Context(), req.toInput())
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL          string `json:"url"`
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap *int   `json:"chunk_overlap"`
		SessionID    string `json:"session_id"`
		AgentRunID   string `json:"agent_run_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if s.scraper == nil {
		s.writeError(w, errs.Upstream("scraper", errNotConfigured))
		return
	}

	page, err := s.scraper.Fetch(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.pipeline.Ingest(r.Context(), pipeline.IngestInput{
		Text:         page.Content,
		SourceURL:    page.URL,
		Title:        page.Title,
		ContentType:  page.ContentType,
		SessionID:    req.SessionID,
		AgentRunID:   req.AgentRunID,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string         `json:"text"`
		SourceURL string         `json:"source_url"`
		Metadata  map[string]any `json:"metadata"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Text == "" {
		s.writeError(w, errs.Validation("text", "must not be empty"))
		return
	}

	capture := &models.Capture{Text: req.Text, SourceURL: req.SourceURL, Metadata: req.Metadata}
	id, err := s.store.InsertCapture(r.Context(), capture)
	if err != nil {
		s.writeError(w, errs.Store("notes", err))
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	docID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, errs.Validation("id", "must be an integer document id"))
		return
	}

	var req struct {
		ChunkSize     int  `json:"chunk_size"`
		ChunkOverlap  *int `json:"chunk_overlap"`
		ReplaceChunks bool `json:"replace_chunks"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.pipeline.Reprocess(r.Context(), docID, req.ChunkSize, req.ChunkOverlap, req.ReplaceChunks)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	Scope string `json:"scope"`
	Day   string `json:"date"`
	Topic string `json:"topic"`
}

func (req *searchRequest) toQuery() (search.Query, error) {
	day, err := parseDay(req.Day)
	if err != nil {
		return search.Query{}, err
	}
	return search.Query{
		Text:  req.Query,
		TopK:  req.TopK,
		Scope: req.Scope,
		Day:   day,
		Topic: req.Topic,
	}, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	q, err := req.toQuery()
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.search.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	q, err := req.toQuery()
	if err != nil {
		s.writeError(w, err)
		return
	}

	answer, err := s.search.Ask(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleRollup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date    string `json:"date"`
		Rebuild bool   `json:"rebuild"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		s.writeError(w, errs.Validation("date", "must be formatted YYYY-MM-DD"))
		return
	}

	result, err := s.rollup.BuildDay(r.Context(), date.UTC(), req.Rebuild)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, errs.Validation("limit", "must be an integer"))
			return
		}
		limit = parsed
	}

	topics, err := s.store.TopicsHistogram(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, errs.Store("topics", err))
		return
	}
	if topics == nil {
		topics = []models.TopicCount{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": topics})
}

func (s *Server) handleTopicRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from_topic"`
		To   string `json:"to_topic"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.From == "" || req.To == "" {
		s.writeError(w, errs.Validation("from_topic", "both from_topic and to_topic are required"))
		return
	}

	matched, modified, err := s.store.RenameTopic(r.Context(), req.From, req.To)
	if err != nil {
		s.writeError(w, errs.Store("topics", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"matched": matched, "modified": modified})
}

func (s *Server) handleCrawlStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL        string `json:"url"`
		SessionID  string `json:"session_id"`
		AgentRunID string `json:"agent_run_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if s.scraper == nil {
		s.writeError(w, errs.Upstream("scraper", errNotConfigured))
		return
	}

	id, err := s.scraper.StartCrawl(req.URL, s.crawlIngester(req.SessionID, req.AgentRunID))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	if s.scraper == nil {
		s.writeError(w, errs.Upstream("scraper", errNotConfigured))
		return
	}
	job := s.scraper.Status(chi.URLParam(r, "id"))
	if job == nil {
		s.writeError(w, errs.Validation("id", "crawl job not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}
