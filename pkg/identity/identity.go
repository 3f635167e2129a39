// Package identity computes the derived fields every component must agree
// on bit-for-bit: content hash, token count, day bucket, captured hour and
// source domain. All functions are pure.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Hash returns the hex sha-256 of the cleaned text, the dedup key.
func Hash(cleaned string) string {
	sum := sha256.Sum256([]byte(cleaned))
	return hex.EncodeToString(sum[:])
}

// TokenCount is the word-count heuristic used when the caller does not
// supply a real count.
func TokenCount(text string) int {
	return len(strings.Fields(text))
}

// DayBucket floors t to UTC midnight, the time-partition key.
func DayBucket(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CapturedHour is the hour-of-day in UTC.
func CapturedHour(t time.Time) int {
	return t.UTC().Hour()
}

// Domain extracts the network location of the canonical URL, or "" when the
// URL is empty or unparsable.
func Domain(canonical string) string {
	if canonical == "" {
		return ""
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return u.Host
}
