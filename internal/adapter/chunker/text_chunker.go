package chunker

import (
	"recall/internal/adapter/analyzer"
	"recall/internal/domain"
)

// TextChunker splits document content into character-bounded chunks,
// preferring paragraph and sentence boundaries and falling back to hard
// cuts. Each chunk after the first begins with the final overlapChars
// characters of the previous chunk's text, verbatim, so the base
// segments form a contiguous cover of the content.
type TextChunker struct {
	maxChars     int
	minChars     int
	overlapChars int
	tokenizer    *analyzer.Tokenizer
}

// NewTextChunker creates a TextChunker. Bounds are rejected here, at
// the configuration boundary: minChars must not exceed maxChars and
// the overlap must be strictly smaller than maxChars.
func NewTextChunker(maxChars, minChars, overlapChars int, tokenizer *analyzer.Tokenizer) (*TextChunker, error) {
	if maxChars <= 0 {
		return nil, &domain.InvalidConfigError{Field: "chunking.max_chars", Reason: "must be positive"}
	}
	if minChars > maxChars {
		return nil, &domain.InvalidConfigError{Field: "chunking.min_chars", Reason: "exceeds max_chars"}
	}
	if overlapChars < 0 {
		return nil, &domain.InvalidConfigError{Field: "chunking.overlap_chars", Reason: "must not be negative"}
	}
	if overlapChars >= maxChars {
		return nil, &domain.InvalidConfigError{Field: "chunking.overlap_chars", Reason: "must be smaller than max_chars"}
	}
	return &TextChunker{
		maxChars:     maxChars,
		minChars:     minChars,
		overlapChars: overlapChars,
		tokenizer:    tokenizer,
	}, nil
}

// Chunk splits the document deterministically: the same content and
// bounds always yield identical chunk boundaries.
func (c *TextChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	content := []rune(doc.Content)
	if len(content) == 0 {
		return nil, nil
	}

	segments := c.segment(content)
	segments = c.mergeShort(segments)

	chunks := make([]domain.Chunk, 0, len(segments))
	for i, seg := range segments {
		text := string(seg)
		if i > 0 {
			prev := []rune(chunks[i-1].Text)
			overlap := c.overlapChars
			if overlap > len(prev) {
				overlap = len(prev)
			}
			text = string(prev[len(prev)-overlap:]) + text
		}

		chunks = append(chunks, domain.Chunk{
			ID:       domain.ChunkID(doc.ID, i),
			DocID:    doc.ID,
			Position: i,
			Text:     text,
			Tokens:   c.tokenizer.Tokenize(text),
		})
	}

	return chunks, nil
}

// segment cuts content into contiguous base segments. The first chunk
// carries no overlap prefix, so its budget is the full maxChars; every
// later chunk reserves overlapChars for the prefix.
func (c *TextChunker) segment(content []rune) [][]rune {
	var segments [][]rune
	rest := content

	for len(rest) > 0 {
		budget := c.maxChars
		if len(segments) > 0 {
			budget = c.maxChars - c.overlapChars
		}

		if len(rest) <= budget {
			segments = append(segments, rest)
			break
		}

		cut := findCut(rest, budget)
		segments = append(segments, rest[:cut])
		rest = rest[cut:]
	}

	return segments
}

// findCut picks the cut point within budget: the latest paragraph
// break, else the latest sentence end, else the latest line break, else
// the latest space, else a hard cut at the budget.
func findCut(rest []rune, budget int) int {
	paragraph := -1
	sentence := -1
	newline := -1
	space := -1

	for i := budget - 1; i >= 1; i-- {
		r := rest[i-1]
		switch {
		case r == '\n' && rest[i] == '\n':
			if paragraph < 0 {
				paragraph = i + 1
			}
		case isSentenceEnd(r) && isSpace(rest[i]):
			if sentence < 0 {
				sentence = i
			}
		case r == '\n':
			if newline < 0 {
				newline = i
			}
		case r == ' ':
			if space < 0 {
				space = i
			}
		}
	}
	// A sentence may end exactly at the budget with its trailing
	// punctuation as the last character in range.
	if isSentenceEnd(rest[budget-1]) && sentence < budget {
		sentence = budget
	}

	switch {
	case paragraph > 0:
		return paragraph
	case sentence > 0:
		return sentence
	case newline > 0:
		return newline
	case space > 0:
		return space
	}
	return budget
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}

// mergeShort folds segments shorter than minChars into their
// predecessor (or successor, for a short head), unless the segment is
// the only one.
func (c *TextChunker) mergeShort(segments [][]rune) [][]rune {
	if c.minChars <= 0 || len(segments) < 2 {
		return segments
	}

	merged := make([][]rune, 0, len(segments))
	for _, seg := range segments {
		if len(merged) > 0 && len(seg) < c.minChars {
			last := merged[len(merged)-1]
			merged[len(merged)-1] = append(append([]rune{}, last...), seg...)
			continue
		}
		merged = append(merged, seg)
	}

	if len(merged) > 1 && len(merged[0]) < c.minChars {
		head := append(append([]rune{}, merged[0]...), merged[1]...)
		merged = append([][]rune{head}, merged[2:]...)
	}

	return merged
}
