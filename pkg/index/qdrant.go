// Package index is a minimal REST client to Qdrant, covering the two
// collections this service keeps: chunk vectors and document vectors.
// Every call is bounded by the client timeout; ingest treats failures here
// as best effort and the Postgres store stays authoritative.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/internal/types"
)

// Config holds the Qdrant connection and collection settings.
type Config struct {
	BaseURL         string
	APIKey          string
	ChunkCollection string
	DocCollection   string
	VectorDim       int
	Distance        string
	Timeout         time.Duration
}

// Client talks to one Qdrant instance.
type Client struct {
	config Config
	http   *http.Client
}

// New creates a client, applying defaults for unset config fields.
func New(config Config) *Client {
	if config.ChunkCollection == "" {
		config.ChunkCollection = "lattice_chunks"
	}
	if config.DocCollection == "" {
		config.DocCollection = "lattice_docs"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.Distance == "" {
		config.Distance = "Cosine"
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}
}

// Ready probes reachability; the search cascade calls this before choosing
// the vector path.
func (c *Client) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant not ready: %s", resp.Status)
	}
	return nil
}

// EnsureCollections creates both collections if missing. Qdrant answers 200
// for an existing collection with the same schema.
func (c *Client) EnsureCollections(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.config.VectorDim,
			"distance": c.config.Distance,
		},
	}
	for _, coll := range []string{c.config.ChunkCollection, c.config.DocCollection} {
		if err := c.putJSON(ctx, fmt.Sprintf("%s/collections/%s", c.config.BaseURL, coll), body); err != nil {
			return err
		}
	}
	return nil
}

// UpsertChunks pushes the chunks that carry embeddings; the rest are
// lexical-only and stay out of the index.
func (c *Client) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	var points []map[string]any
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 || ch.PointID == "" {
			continue
		}
		points = append(points, map[string]any{
			"id":     ch.PointID,
			"vector": ch.Embedding,
			"payload": map[string]any{
				"doc_id":      ch.DocID,
				"chunk_id":    ch.ID,
				"idx":         ch.Idx,
				"text":        ch.Text,
				"day_bucket":  ch.DayBucket.UTC().Format("2006-01-02"),
				"captured_at": ch.CapturedAt.UTC().Format(time.RFC3339),
			},
		})
	}
	if len(points) == 0 {
		return nil
	}
	return c.putJSON(ctx,
		fmt.Sprintf("%s/collections/%s/points?wait=true", c.config.BaseURL, c.config.ChunkCollection),
		map[string]any{"points": points})
}

// UpsertDocument pushes the document-level vector. The point id is derived
// from the document id so re-upserts overwrite.
func (c *Client) UpsertDocument(ctx context.Context, doc *models.Document) error {
	if len(doc.Embedding) == 0 {
		return nil
	}
	payload := map[string]any{
		"doc_id":      doc.ID,
		"day_bucket":  doc.DayBucket.UTC().Format("2006-01-02"),
		"captured_at": doc.CapturedAt.UTC().Format(time.RFC3339),
	}
	if doc.Topics != nil {
		payload["topic"] = doc.Topics.Primary
	}
	point := map[string]any{
		"id":      DocPointID(doc.ID),
		"vector":  doc.Embedding,
		"payload": payload,
	}
	return c.putJSON(ctx,
		fmt.Sprintf("%s/collections/%s/points?wait=true", c.config.BaseURL, c.config.DocCollection),
		map[string]any{"points": []map[string]any{point}})
}

// DeleteDocument drops a document's chunk vectors, used when reprocess
// replaces the chunk set. The document-level vector is left alone.
func (c *Client) DeleteDocument(ctx context.Context, docID int64) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "doc_id", "match": map[string]any{"value": docID}},
			},
		},
	}
	return c.postJSON(ctx,
		fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.config.BaseURL, c.config.ChunkCollection),
		body, nil)
}

// SearchChunks runs filtered nearest-neighbor search over chunk vectors.
func (c *Client) SearchChunks(ctx context.Context, vector []float32, topK int, f types.IndexFilter) ([]types.IndexHit, error) {
	return c.search(ctx, c.config.ChunkCollection, vector, topK, f)
}

// SearchDocs runs filtered nearest-neighbor search over document vectors.
func (c *Client) SearchDocs(ctx context.Context, vector []float32, topK int, f types.IndexFilter) ([]types.IndexHit, error) {
	return c.search(ctx, c.config.DocCollection, vector, topK, f)
}

func (c *Client) search(ctx context.Context, collection string, vector []float32, topK int, f types.IndexFilter) ([]types.IndexHit, error) {
	if topK <= 0 {
		topK = 5
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var must []map[string]any
	if f.DayBucket != "" {
		must = append(must, map[string]any{"key": "day_bucket", "match": map[string]any{"value": f.DayBucket}})
	}
	if f.Topic != "" {
		must = append(must, map[string]any{"key": "topic", "match": map[string]any{"value": f.Topic}})
	}
	if must != nil {
		req["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := c.postJSON(ctx,
		fmt.Sprintf("%s/collections/%s/points/search", c.config.BaseURL, collection),
		req, &resp)
	if err != nil {
		return nil, err
	}

	hits := make([]types.IndexHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := types.IndexHit{Score: r.Score}
		if v, ok := r.Payload["doc_id"].(float64); ok {
			hit.DocID = int64(v)
		}
		if v, ok := r.Payload["chunk_id"].(float64); ok {
			hit.ChunkID = int64(v)
		}
		if v, ok := r.Payload["idx"].(float64); ok {
			hit.Idx = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			hit.Text = v
		}
		if v, ok := r.Payload["topic"].(string); ok {
			hit.Topic = v
		}
		if v, ok := r.Payload["captured_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				hit.CapturedAt = t
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DocPointID derives the stable point id for a document-level vector.
func DocPointID(docID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("doc:%d", docID))).String()
}

func (c *Client) putJSON(ctx context.Context, url string, body any) error {
	return c.send(ctx, http.MethodPut, url, body, nil)
}

func (c *Client) postJSON(ctx context.Context, url string, body any, out any) error {
	return c.send(ctx, http.MethodPost, url, body, out)
}

func (c *Client) send(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s failed: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
