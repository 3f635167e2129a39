// Package topics is the local keyword classifier used when no external
// categorizer is configured, plus the slug helpers shared with it.
package topics

import (
	"regexp"
	"sort"
	"strings"

	"github.com/latticekb/lattice/internal/models"
)

var slugCleaner = regexp.MustCompile(`[^a-z0-9/]+`)

// Slugify lowercases a label and collapses everything outside [a-z0-9/]
// into single dashes, preserving slug-path separators.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugCleaner.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}

// Classify scores text against the keyword taxonomy. Returns nil when
// nothing matches; callers treat nil topics as acceptable.
func Classify(text string) *models.Topics {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return nil
	}

	hits := make(map[string]int)
	for _, raw := range words {
		word := strings.Trim(raw, ".,;:!?\"'()[]{}")
		if slug, ok := keywordIndex[word]; ok {
			hits[slug]++
		}
	}
	if len(hits) == 0 {
		return nil
	}

	labels := make([]models.TopicLabel, 0, len(hits))
	for slug, count := range hits {
		labels = append(labels, models.TopicLabel{
			Name:  slug,
			Score: float64(count) / float64(len(words)),
		})
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Score != labels[j].Score {
			return labels[i].Score > labels[j].Score
		}
		return labels[i].Name < labels[j].Name
	})

	return &models.Topics{Primary: labels[0].Name, Labels: labels}
}

// keywordIndex maps trigger words to topic slug paths.
var keywordIndex = func() map[string]string {
	taxonomy := map[string][]string{
		"tech/programming": {
			"code", "function", "api", "library", "compiler", "golang",
			"python", "javascript", "software", "bug", "repository",
			"deploy", "framework", "debugging", "refactor",
		},
		"tech/ai": {
			"model", "llm", "embedding", "neural", "training", "inference",
			"dataset", "transformer", "prompt", "agent", "rag",
		},
		"tech/web": {
			"browser", "html", "css", "http", "frontend", "website",
			"crawler", "scraping", "dom", "url",
		},
		"tech/data": {
			"database", "sql", "query", "index", "storage", "cache",
			"postgres", "mongodb", "qdrant", "vector",
		},
		"tech/security": {
			"vulnerability", "exploit", "encryption", "authentication",
			"password", "breach", "malware", "phishing",
		},
		"business": {
			"market", "revenue", "startup", "customer", "product",
			"sales", "funding", "acquisition", "pricing",
		},
		"science": {
			"research", "study", "experiment", "physics", "biology",
			"chemistry", "climate", "genome",
		},
	}

	index := make(map[string]string)
	for slug, words := range taxonomy {
		for _, w := range words {
			index[w] = slug
		}
	}
	return index
}()
