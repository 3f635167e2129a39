package models

import "time"

// TopicCount is one histogram entry in a rollup or the topics endpoint.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// DailyRollup is the derived digest for one UTC day, keyed by Date.
// It holds no authoritative data and may be rebuilt at any time.
type DailyRollup struct {
	Date      time.Time    `json:"date"`
	Summary   string       `json:"summary"`
	Bullets   []string     `json:"bullets"`
	TopTopics []TopicCount `json:"top_topics"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SearchItem is the uniform result shape returned by both search modes.
// Score is only set for vector-backed results.
type SearchItem struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	DocID      int64     `json:"doc_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	Snippet    string    `json:"snippet"`
	SourceURL  string    `json:"source_url,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Score      *float32  `json:"score,omitempty"`
}
