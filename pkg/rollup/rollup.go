// Package rollup builds the derived per-day digest: a short summary, one
// bullet per document, and a topic histogram. Rollups are rebuildable at
// any time and carry no authoritative data.
package rollup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/latticekb/lattice/internal/errs"
	"github.com/latticekb/lattice/internal/models"
	"github.com/latticekb/lattice/pkg/identity"
)

const (
	maxBullets   = 24
	maxTopTopics = 8
	maxExcerpts  = 20
	excerptLen   = 160
)

// Store is the slice of the document store the builder needs.
type Store interface {
	GetRollup(ctx context.Context, date time.Time) (*models.DailyRollup, error)
	UpsertRollup(ctx context.Context, r *models.DailyRollup) error
	DocumentsForDay(ctx context.Context, day time.Time) ([]models.Document, error)
	CapturesBetween(ctx context.Context, start, end time.Time) ([]models.Capture, error)
}

// Builder derives daily rollups from the store.
type Builder struct {
	store Store
	log   *zap.Logger
}

// New creates a builder. A nil logger is replaced with a no-op one.
func New(store Store, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{store: store, log: log}
}

// BuildDay returns the rollup for the given day. Without rebuild an existing
// rollup is returned as is; with rebuild it is recomputed from the day's
// documents and overwritten.
func (b *Builder) BuildDay(ctx context.Context, date time.Time, rebuild bool) (*models.DailyRollup, error) {
	day := identity.DayBucket(date)

	if !rebuild {
		existing, err := b.store.GetRollup(ctx, day)
		if err != nil {
			return nil, errs.Store("rollup", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	docs, err := b.store.DocumentsForDay(ctx, day)
	if err != nil {
		return nil, errs.Store("rollup", err)
	}

	var r *models.DailyRollup
	if len(docs) == 0 {
		r, err = b.fromCaptures(ctx, day)
		if err != nil {
			return nil, err
		}
	} else {
		r = fromDocuments(day, docs)
	}

	if err := b.store.UpsertRollup(ctx, r); err != nil {
		return nil, errs.Store("rollup", err)
	}
	b.log.Info("rollup built",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("documents", len(docs)),
		zap.Int("bullets", len(r.Bullets)))
	return r, nil
}

func fromDocuments(day time.Time, docs []models.Document) *models.DailyRollup {
	counts := make(map[string]int)
	bullets := make([]string, 0, min(len(docs), maxBullets))

	for _, doc := range docs {
		if doc.Topics != nil && doc.Topics.Primary != "" {
			counts[doc.Topics.Primary]++
		}
		if len(bullets) < maxBullets {
			bullets = append(bullets, bulletFor(&doc))
		}
	}

	summary := fmt.Sprintf("Captured %d documents.", len(docs))
	if len(bullets) > 0 {
		summary = bullets[0]
	}

	return &models.DailyRollup{
		Date:      day,
		Summary:   summary,
		Bullets:   bullets,
		TopTopics: topTopics(counts),
		UpdatedAt: time.Now().UTC(),
	}
}

// fromCaptures covers days with no processed documents; raw notes still get
// a digest so the day is not silently empty.
func (b *Builder) fromCaptures(ctx context.Context, day time.Time) (*models.DailyRollup, error) {
	captures, err := b.store.CapturesBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, errs.Store("rollup", err)
	}

	bullets := make([]string, 0, min(len(captures), maxExcerpts))
	for _, c := range captures {
		if len(bullets) == maxExcerpts {
			break
		}
		bullets = append(bullets, excerpt(c.Text))
	}

	return &models.DailyRollup{
		Date:      day,
		Summary:   fmt.Sprintf("Captured %d notes.", len(captures)),
		Bullets:   bullets,
		TopTopics: []models.TopicCount{},
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// bulletFor prefers the document's short summary, falling back to a text
// prefix; the title leads when present.
func bulletFor(doc *models.Document) string {
	body := ""
	if doc.Summary != nil && doc.Summary.Short != "" {
		body = doc.Summary.Short
	} else {
		body = excerpt(doc.CleanedText)
	}
	if doc.Title != "" {
		return doc.Title + ": " + body
	}
	return body
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= excerptLen {
		return text
	}
	n := excerptLen
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "…"
}

func topTopics(counts map[string]int) []models.TopicCount {
	out := make([]models.TopicCount, 0, len(counts))
	for topic, n := range counts {
		out = append(out, models.TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > maxTopTopics {
		out = out[:maxTopTopics]
	}
	return out
}
