// Package store is the Postgres document store. The unique index on
// documents.content_hash is the only concurrency control ingestion needs:
// concurrent ingests of identical text converge on one row via
// insert-reject-then-lookup.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/latticekb/lattice/internal/models"
)

const uniqueViolation = "23505"

// Config holds the store connection settings.
type Config struct {
	ConnString string
	VectorDim  int
}

// Store wraps a pgx pool over the documents, doc_chunks, daily_rollups and
// captures collections.
type Store struct {
	config Config
	pool   *pgxpool.Pool
}

// New connects and creates the schema if it does not exist.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{config: config, pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS documents (
				id BIGSERIAL PRIMARY KEY,
				source_url TEXT NOT NULL DEFAULT '',
				canonical_url TEXT NOT NULL DEFAULT '',
				domain TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL DEFAULT '',
				content_type TEXT NOT NULL DEFAULT '',
				language TEXT NOT NULL DEFAULT '',
				cleaned_text TEXT NOT NULL,
				token_count INT NOT NULL DEFAULT 0,
				content_hash TEXT NOT NULL UNIQUE,
				summary JSONB,
				topics JSONB,
				embedding vector(%d),
				tags JSONB,
				captured_at TIMESTAMPTZ NOT NULL,
				captured_hour INT NOT NULL,
				day_bucket TIMESTAMPTZ NOT NULL,
				published_at TIMESTAMPTZ,
				processed_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				session_id TEXT NOT NULL DEFAULT '',
				agent_run_id TEXT NOT NULL DEFAULT '',
				metadata JSONB
			)`, s.config.VectorDim),
		`CREATE INDEX IF NOT EXISTS documents_day_bucket_idx ON documents (day_bucket)`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS doc_chunks (
				id BIGSERIAL PRIMARY KEY,
				doc_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				idx INT NOT NULL,
				text TEXT NOT NULL,
				token_count INT NOT NULL DEFAULT 0,
				section TEXT NOT NULL DEFAULT '',
				char_start INT NOT NULL DEFAULT 0,
				char_end INT NOT NULL DEFAULT 0,
				embedding vector(%d),
				point_id TEXT NOT NULL DEFAULT '',
				captured_at TIMESTAMPTZ NOT NULL,
				captured_hour INT NOT NULL,
				day_bucket TIMESTAMPTZ NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (doc_id, idx)
			)`, s.config.VectorDim),
		`CREATE TABLE IF NOT EXISTS daily_rollups (
			date DATE PRIMARY KEY,
			summary TEXT NOT NULL,
			bullets JSONB NOT NULL,
			top_topics JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS captures (
			id BIGSERIAL PRIMARY KEY,
			text TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Ping checks store reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertDocument attempts a unique-key insert by content_hash. When the
// insert is rejected for uniqueness it resolves to the existing row and
// reports duplicate=true; it never creates a second row for the same hash.
func (s *Store) InsertDocument(ctx context.Context, doc *models.Document) (int64, bool, error) {
	summary, err := jsonOrNil(doc.Summary, doc.Summary == nil)
	if err != nil {
		return 0, false, err
	}
	topicsJSON, err := jsonOrNil(doc.Topics, doc.Topics == nil)
	if err != nil {
		return 0, false, err
	}
	tags, err := jsonOrNil(doc.Tags, len(doc.Tags) == 0)
	if err != nil {
		return 0, false, err
	}
	metadata, err := jsonOrNil(doc.Metadata, len(doc.Metadata) == 0)
	if err != nil {
		return 0, false, err
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO documents (
			source_url, canonical_url, domain, title, content_type, language,
			cleaned_text, token_count, content_hash, summary, topics,
			embedding, tags, captured_at, captured_hour, day_bucket,
			published_at, processed_at, session_id, agent_run_id, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING id`,
		doc.SourceURL, doc.CanonicalURL, doc.Domain, doc.Title,
		doc.ContentType, doc.Language, doc.CleanedText, doc.TokenCount,
		doc.ContentHash, summary, topicsJSON, vectorOrNil(doc.Embedding),
		tags, doc.CapturedAt, doc.CapturedHour, doc.DayBucket,
		doc.PublishedAt, doc.ProcessedAt, doc.SessionID, doc.AgentRunID,
		metadata,
	).Scan(&id)
	if err == nil {
		doc.ID = id
		return id, false, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return 0, false, fmt.Errorf("failed to insert document: %w", err)
	}

	// duplicate content: resolve to the row that won the race
	err = s.pool.QueryRow(ctx,
		`SELECT id FROM documents WHERE content_hash = $1`, doc.ContentHash,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve duplicate document: %w", err)
	}
	doc.ID = id
	return id, true, nil
}

const docColumns = `id, source_url, canonical_url, domain, title,
	content_type, language, cleaned_text, token_count, content_hash,
	summary, topics, tags, captured_at, captured_hour, day_bucket,
	published_at, processed_at, created_at, updated_at, session_id,
	agent_run_id, metadata`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	var summary, topicsJSON, tags, metadata []byte

	err := row.Scan(
		&doc.ID, &doc.SourceURL, &doc.CanonicalURL, &doc.Domain, &doc.Title,
		&doc.ContentType, &doc.Language, &doc.CleanedText, &doc.TokenCount,
		&doc.ContentHash, &summary, &topicsJSON, &tags, &doc.CapturedAt,
		&doc.CapturedHour, &doc.DayBucket, &doc.PublishedAt, &doc.ProcessedAt,
		&doc.CreatedAt, &doc.UpdatedAt, &doc.SessionID, &doc.AgentRunID,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	if summary != nil {
		doc.Summary = &models.Summary{}
		if err := json.Unmarshal(summary, doc.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
	}
	if topicsJSON != nil {
		doc.Topics = &models.Topics{}
		if err := json.Unmarshal(topicsJSON, doc.Topics); err != nil {
			return nil, fmt.Errorf("failed to decode topics: %w", err)
		}
	}
	if tags != nil {
		if err := json.Unmarshal(tags, &doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	if metadata != nil {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &doc, nil
}

// GetDocument loads one document by id. Returns nil when absent.
func (s *Store) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", id, err)
	}
	return doc, nil
}

// GetDocumentsByIDs loads documents for vector-search id mapping. Missing
// ids are silently absent from the result.
func (s *Store) GetDocumentsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*models.Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out[doc.ID] = doc
	}
	return out, rows.Err()
}

// InsertChunks writes a document's chunk set in one transaction and returns
// the assigned ids in idx order.
func (s *Store) InsertChunks(ctx context.Context, chunks []models.Chunk) ([]int64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO doc_chunks (
				doc_id, idx, text, token_count, section, char_start,
				char_end, embedding, point_id, captured_at, captured_hour,
				day_bucket
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING id`,
			c.DocID, c.Idx, c.Text, c.TokenCount, c.Section, c.CharStart,
			c.CharEnd, vectorOrNil(c.Embedding), c.PointID, c.CapturedAt,
			c.CapturedHour, c.DayBucket,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", c.Idx, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return ids, nil
}

// DeleteChunks removes all chunks of a document and reports how many.
func (s *Store) DeleteChunks(ctx context.Context, docID int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM doc_chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for document %d: %w", docID, err)
	}
	return int(tag.RowsAffected()), nil
}

// CountChunks returns the chunk count of one document.
func (s *Store) CountChunks(ctx context.Context, docID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM doc_chunks WHERE doc_id = $1`, docID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// ListChunks returns a document's chunks in idx order.
func (s *Store) ListChunks(ctx context.Context, docID int64) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, doc_id, idx, text, token_count, section, char_start,
			char_end, point_id, captured_at, captured_hour, day_bucket,
			created_at
		FROM doc_chunks WHERE doc_id = $1 ORDER BY idx`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		err := rows.Scan(&c.ID, &c.DocID, &c.Idx, &c.Text, &c.TokenCount,
			&c.Section, &c.CharStart, &c.CharEnd, &c.PointID, &c.CapturedAt,
			&c.CapturedHour, &c.DayBucket, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func vectorOrNil(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func jsonOrNil(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}
	return b, nil
}
