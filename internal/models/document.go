package models

import "time"

// Summary is the short-form digest attached to a Document.
type Summary struct {
	Short     string   `json:"short"`
	Bullets   []string `json:"bullets,omitempty"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// TopicLabel is one scored classification label.
type TopicLabel struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Topics carries the primary slug path plus the full scored label set.
type Topics struct {
	Primary string       `json:"primary"`
	Labels  []TopicLabel `json:"labels,omitempty"`
}

// Document is one deduplicated unit of captured content. ContentHash is
// globally unique; two ingests of the same cleaned text resolve to the same
// row.
type Document struct {
	ID           int64          `json:"id"`
	SourceURL    string         `json:"source_url,omitempty"`
	CanonicalURL string         `json:"canonical_url,omitempty"`
	Domain       string         `json:"domain,omitempty"`
	Title        string         `json:"title,omitempty"`
	ContentType  string         `json:"content_type,omitempty"`
	Language     string         `json:"language,omitempty"`
	CleanedText  string         `json:"cleaned_text"`
	TokenCount   int            `json:"token_count"`
	ContentHash  string         `json:"content_hash"`
	Summary      *Summary       `json:"summary,omitempty"`
	Topics       *Topics        `json:"topics,omitempty"`
	Embedding    []float32      `json:"-"`
	Tags         []string       `json:"tags,omitempty"`
	CapturedAt   time.Time      `json:"captured_at"`
	CapturedHour int            `json:"captured_hour"`
	DayBucket    time.Time      `json:"day_bucket"`
	PublishedAt  *time.Time     `json:"published_at,omitempty"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	SessionID    string         `json:"session_id,omitempty"`
	AgentRunID   string         `json:"agent_run_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Chunk is one overlapping window of a Document's cleaned text, the unit of
// vector indexing. (DocID, Idx) is unique; time-bucket fields are copied from
// the parent at creation.
type Chunk struct {
	ID           int64     `json:"id"`
	DocID        int64     `json:"doc_id"`
	Idx          int       `json:"idx"`
	Text         string    `json:"text"`
	TokenCount   int       `json:"token_count"`
	Section      string    `json:"section,omitempty"`
	CharStart    int       `json:"char_start"`
	CharEnd      int       `json:"char_end"`
	Embedding    []float32 `json:"-"`
	PointID      string    `json:"point_id,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
	CapturedHour int       `json:"captured_hour"`
	DayBucket    time.Time `json:"day_bucket"`
	CreatedAt    time.Time `json:"created_at"`
}

// Capture is a raw agent note, stored before any enrichment. The rollup
// aggregator falls back to captures for days with no documents.
type Capture struct {
	ID        int64          `json:"id"`
	Text      string         `json:"text"`
	SourceURL string         `json:"source_url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
