// Package summarizer is the local, provider-free digest builder used when no
// external summarizer is configured, and as the answer composer's fallback.
package summarizer

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/latticekb/lattice/internal/models"
)

const (
	DefaultSentences = 3
	DefaultBullets   = 6

	bulletMaxLen = 220
	keyPointMax  = 5
	// prefix length used when the text has no sentence boundary at all
	shortFallbackLen = 280
)

// Summarize builds the short/bullets/key-points digest for text.
// sentenceCount and bulletCount fall back to the package defaults when
// non-positive.
func Summarize(text string, sentenceCount, bulletCount int) *models.Summary {
	if sentenceCount <= 0 {
		sentenceCount = DefaultSentences
	}
	if bulletCount <= 0 {
		bulletCount = DefaultBullets
	}

	text = strings.TrimSpace(text)
	sentences := SplitSentences(text)

	short := ""
	if len(sentences) > 0 {
		n := sentenceCount
		if n > len(sentences) {
			n = len(sentences)
		}
		short = strings.Join(sentences[:n], " ")
	} else {
		short = truncate(text, shortFallbackLen)
	}

	return &models.Summary{
		Short:     short,
		Bullets:   extractBullets(text, sentences, bulletCount),
		KeyPoints: keyPoints(text),
	}
}

// SplitSentences splits on ./!/? boundaries followed by whitespace.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		atEnd := i == len(runes)-1
		if atEnd || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' || runes[i+1] == '\r' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" && len(sentences) > 0 {
		sentences = append(sentences, s)
	}
	return sentences
}

// extractBullets prefers bullet-formatted lines already present in the
// source; otherwise it promotes the sentences after the first one.
func extractBullets(text string, sentences []string, limit int) []string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") ||
			strings.HasPrefix(line, "•") || (line[0] >= '0' && line[0] <= '9') {
			bullets = append(bullets, truncate(line, bulletMaxLen))
		}
	}

	if len(bullets) == 0 && len(sentences) > 1 {
		for _, s := range sentences[1:] {
			bullets = append(bullets, truncate(s, bulletMaxLen))
		}
	}

	if len(bullets) > limit {
		bullets = bullets[:limit]
	}
	return bullets
}

// keyPoints ranks non-stopword lowercase words of length >= 3 by frequency,
// ties broken by first occurrence.
func keyPoints(text string) []string {
	type wordStat struct {
		word  string
		count int
		first int
	}

	stats := make(map[string]*wordStat)
	for pos, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,;:!?\"'()[]{}")
		if len(word) < 3 || stopwords[word] {
			continue
		}
		if s, ok := stats[word]; ok {
			s.count++
		} else {
			stats[word] = &wordStat{word: word, count: 1, first: pos}
		}
	}

	ranked := make([]*wordStat, 0, len(stats))
	for _, s := range stats {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].first < ranked[j].first
	})

	n := keyPointMax
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, s := range ranked[:n] {
		out = append(out, s.word)
	}
	return out
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

var stopwords = func() map[string]bool {
	words := []string{
		"the", "and", "are", "for", "from", "has", "its", "that", "was",
		"were", "will", "with", "this", "these", "those", "have", "had",
		"but", "not", "you", "your", "our", "their", "they", "them", "his",
		"her", "she", "him", "can", "could", "should", "would", "into",
		"about", "over", "under", "then", "than", "when", "where", "which",
		"who", "what", "how", "why", "all", "any", "each", "more", "most",
		"other", "some", "such", "only", "own", "same", "too", "very",
		"just", "also", "been", "being", "because", "while", "there",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
