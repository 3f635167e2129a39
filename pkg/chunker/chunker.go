// Package chunker splits cleaned text into fixed-size overlapping windows.
// Window i starts at i*(size-overlap); consecutive windows repeat the last
// overlap characters so chunk boundaries never cut context completely.
package chunker

import (
	"fmt"

	"github.com/latticekb/lattice/internal/errs"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Span is one window with its offsets into the parent text.
type Span struct {
	Text  string
	Start int
	End   int
}

// Params holds the window geometry for one split.
type Params struct {
	ChunkSize    int
	ChunkOverlap int
}

// Resolve builds the split geometry from request parameters. A size of
// zero means unset. A nil overlap means unset and takes the default when
// the window is large enough to carry it; an explicit zero disables
// overlapping entirely.
func Resolve(size int, overlap *int) Params {
	p := Params{ChunkSize: size}
	if p.ChunkSize == 0 {
		p.ChunkSize = DefaultChunkSize
	}
	switch {
	case overlap != nil:
		p.ChunkOverlap = *overlap
	case p.ChunkSize > DefaultChunkOverlap:
		p.ChunkOverlap = DefaultChunkOverlap
	}
	return p
}

// Validate rejects degenerate geometry. The stride size-overlap must be
// positive or the splitter would never advance.
func (p Params) Validate() error {
	if p.ChunkSize < 1 {
		return errs.Validation("chunk_size", "must be positive")
	}
	if p.ChunkOverlap < 0 {
		return errs.Validation("chunk_overlap", "must be non-negative")
	}
	if p.ChunkSize-p.ChunkOverlap <= 0 {
		return errs.Validation("chunk_overlap",
			fmt.Sprintf("must be less than chunk_size (%d)", p.ChunkSize))
	}
	return nil
}

// Split windows text with p's geometry. For text of length L the result has
// ceil((L-overlap)/(size-overlap)) spans with contiguous indices.
func Split(text string, p Params) ([]Span, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	stride := p.ChunkSize - p.ChunkOverlap
	var spans []Span
	for start := 0; start < len(text); start += stride {
		end := start + p.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		spans = append(spans, Span{Text: text[start:end], Start: start, End: end})
		if end == len(text) {
			break
		}
	}
	return spans, nil
}
