package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/latticekb/lattice/internal/models"
)

// DocumentsForDay returns every document bucketed to the given UTC midnight,
// in insertion order.
func (s *Store) DocumentsForDay(ctx context.Context, day time.Time) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+docColumns+` FROM documents WHERE day_bucket = $1 ORDER BY id`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents for day: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// SearchLexical is the fallback search: case-insensitive substring match
// over cleaned text and title, newest captures first.
func (s *Store) SearchLexical(ctx context.Context, query string, day *time.Time, topic string, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 10
	}

	sql := `SELECT ` + docColumns + ` FROM documents
		WHERE (cleaned_text ILIKE '%' || $1 || '%' OR title ILIKE '%' || $1 || '%')`
	args := []any{query}

	if day != nil {
		args = append(args, *day)
		sql += fmt.Sprintf(" AND day_bucket = $%d", len(args))
	}
	if topic != "" {
		args = append(args, topic)
		sql += fmt.Sprintf(" AND topics->>'primary' = $%d", len(args))
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY captured_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run lexical search: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// InsertCapture stores one raw note.
func (s *Store) InsertCapture(ctx context.Context, c *models.Capture) (int64, error) {
	metadata, err := jsonOrNil(c.Metadata, len(c.Metadata) == 0)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO captures (text, source_url, metadata)
		VALUES ($1, $2, $3) RETURNING id`,
		c.Text, c.SourceURL, metadata).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert capture: %w", err)
	}
	c.ID = id
	return id, nil
}

// CapturesBetween returns raw notes created in [start, end), oldest first.
func (s *Store) CapturesBetween(ctx context.Context, start, end time.Time) ([]models.Capture, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, text, source_url, metadata, created_at
		FROM captures WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var captures []models.Capture
	for rows.Next() {
		var c models.Capture
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.Text, &c.SourceURL, &metadata, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		if metadata != nil {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode capture metadata: %w", err)
			}
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

// GetRollup loads the rollup for one day, nil when absent.
func (s *Store) GetRollup(ctx context.Context, date time.Time) (*models.DailyRollup, error) {
	var r models.DailyRollup
	var bullets, topTopics []byte

	err := s.pool.QueryRow(ctx, `
		SELECT date, summary, bullets, top_topics, updated_at
		FROM daily_rollups WHERE date = $1`, date,
	).Scan(&r.Date, &r.Summary, &bullets, &topTopics, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rollup: %w", err)
	}

	if err := json.Unmarshal(bullets, &r.Bullets); err != nil {
		return nil, fmt.Errorf("failed to decode rollup bullets: %w", err)
	}
	if err := json.Unmarshal(topTopics, &r.TopTopics); err != nil {
		return nil, fmt.Errorf("failed to decode rollup topics: %w", err)
	}
	r.Date = r.Date.UTC()
	return &r, nil
}

// UpsertRollup inserts or overwrites the rollup keyed by date, so concurrent
// rebuilds stay idempotent (last writer wins).
func (s *Store) UpsertRollup(ctx context.Context, r *models.DailyRollup) error {
	bullets, err := json.Marshal(r.Bullets)
	if err != nil {
		return fmt.Errorf("failed to encode rollup bullets: %w", err)
	}
	topTopics, err := json.Marshal(r.TopTopics)
	if err != nil {
		return fmt.Errorf("failed to encode rollup topics: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO daily_rollups (date, summary, bullets, top_topics, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (date) DO UPDATE SET
			summary = EXCLUDED.summary,
			bullets = EXCLUDED.bullets,
			top_topics = EXCLUDED.top_topics,
			updated_at = now()`,
		r.Date, r.Summary, bullets, topTopics)
	if err != nil {
		return fmt.Errorf("failed to upsert rollup: %w", err)
	}
	return nil
}

// TopicsHistogram counts documents per primary topic, optionally filtered by
// a substring match on the slug.
func (s *Store) TopicsHistogram(ctx context.Context, query string, limit int) ([]models.TopicCount, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT topics->>'primary' AS topic, count(*) AS n
		FROM documents
		WHERE topics->>'primary' IS NOT NULL
			AND ($1 = '' OR topics->>'primary' ILIKE '%' || $1 || '%')
		GROUP BY 1 ORDER BY n DESC, topic LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics histogram: %w", err)
	}
	defer rows.Close()

	var out []models.TopicCount
	for rows.Next() {
		var tc models.TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan topic count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// RenameTopic rewrites the primary slug on every matching document.
func (s *Store) RenameTopic(ctx context.Context, from, to string) (matched, modified int64, err error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET topics = jsonb_set(topics, '{primary}', to_jsonb($2::text)),
			updated_at = now()
		WHERE topics->>'primary' = $1`, from, to)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to rename topic: %w", err)
	}
	return tag.RowsAffected(), tag.RowsAffected(), nil
}
