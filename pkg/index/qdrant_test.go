package index_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/internal/types"
	"github.com/latticekb/lattice/pkg/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchChunksParsesHitsAndFilter(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/lattice_chunks/points/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"doc_id":7,"chunk_id":42,"idx":1,"text":"hello","day_bucket":"2024-03-05","captured_at":"2024-03-05T12:00:00Z"}}
		]}`))
	}))
	defer server.Close()

	c := index.New(index.Config{BaseURL: server.URL})
	hits, err := c.SearchChunks(context.Background(), []float32{0.1, 0.2}, 3,
		types.IndexFilter{DayBucket: "2024-03-05"})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	assert.Equal(t, int64(7), hits[0].DocID)
	assert.Equal(t, int64(42), hits[0].ChunkID)
	assert.Equal(t, 1, hits[0].Idx)
	assert.Equal(t, "hello", hits[0].Text)
	assert.Equal(t, float32(0.91), hits[0].Score)
	assert.Equal(t, 12, hits[0].CapturedAt.UTC().Hour())

	filter, ok := gotBody["filter"].(map[string]any)
	require.True(t, ok, "day filter must be sent")
	must := filter["must"].([]any)
	require.Len(t, must, 1)
}

func TestUpsertChunksSkipsUnembedded(t *testing.T) {
	var pointCount int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []map[string]any `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		pointCount = len(body.Points)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := index.New(index.Config{BaseURL: server.URL})
	chunks := []models.Chunk{
		{DocID: 1, Idx: 0, Text: "embedded", Embedding: []float32{1, 2}, PointID: "8e62b9f0-0000-0000-0000-000000000001", CapturedAt: time.Now(), DayBucket: time.Now()},
		{DocID: 1, Idx: 1, Text: "no vector", CapturedAt: time.Now(), DayBucket: time.Now()},
	}
	require.NoError(t, c.UpsertChunks(context.Background(), chunks))
	assert.Equal(t, 1, pointCount)
}

func TestEnsureCollections(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := index.New(index.Config{BaseURL: server.URL, ChunkCollection: "ck", DocCollection: "dk"})
	require.NoError(t, c.EnsureCollections(context.Background()))
	assert.Equal(t, []string{"/collections/ck", "/collections/dk"}, paths)
}

func TestReadyFailsOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := index.New(index.Config{BaseURL: server.URL})
	assert.Error(t, c.Ready(context.Background()))
}

func TestDocPointIDStable(t *testing.T) {
	assert.Equal(t, index.DocPointID(12), index.DocPointID(12))
	assert.NotEqual(t, index.DocPointID(12), index.DocPointID(13))
}
