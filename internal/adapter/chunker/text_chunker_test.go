package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/internal/adapter/analyzer"
	"recall/internal/domain"
)

func newTestChunker(t *testing.T, maxChars, minChars, overlapChars int) *TextChunker {
	t.Helper()
	c, err := NewTextChunker(maxChars, minChars, overlapChars, analyzer.NewTokenizer(true))
	require.NoError(t, err)
	return c
}

func TestTextChunker_InvalidBounds(t *testing.T) {
	tok := analyzer.NewTokenizer(true)

	cases := []struct {
		name                string
		max, min, overlap   int
	}{
		{"zero max", 0, 0, 0},
		{"negative max", -5, 0, 0},
		{"min exceeds max", 100, 200, 10},
		{"negative overlap", 100, 10, -1},
		{"overlap equals max", 100, 10, 100},
		{"overlap exceeds max", 100, 10, 150},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTextChunker(tc.max, tc.min, tc.overlap, tok)
			require.Error(t, err)
			assert.True(t, domain.IsInvalidConfig(err), "want InvalidConfigError, got %v", err)
		})
	}
}

func TestTextChunker_EmptyDocument(t *testing.T) {
	c := newTestChunker(t, 100, 10, 20)

	chunks, err := c.Chunk(domain.Document{ID: "d1"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestTextChunker_SingleChunk(t *testing.T) {
	c := newTestChunker(t, 100, 10, 20)

	doc := domain.Document{ID: "d1", Content: "A short note about nothing much."}
	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "d1:0000", chunks[0].ID)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, doc.Content, chunks[0].Text)
}

func TestTextChunker_SentenceBoundaryAndOverlap(t *testing.T) {
	c := newTestChunker(t, 20, 5, 5)

	doc := domain.Document{ID: "d1", Content: "The quick brown fox. The fox jumps."}
	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "The quick brown fox.", chunks[0].Text)
	assert.Equal(t, " fox. The fox jumps.", chunks[1].Text)
	assert.Equal(t, "d1:0000", chunks[0].ID)
	assert.Equal(t, "d1:0001", chunks[1].ID)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 20)
	}
}

// Every chunk after the first starts with the last overlapChars
// characters of its predecessor, verbatim.
func TestTextChunker_OverlapIsVerbatim(t *testing.T) {
	const overlap = 10
	c := newTestChunker(t, 50, 5, overlap)

	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("Sentence number one here. Another sentence follows. ")
	}
	doc := domain.Document{ID: "d1", Content: b.String()}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		cur := []rune(chunks[i].Text)
		require.GreaterOrEqual(t, len(prev), overlap)
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(cur[:overlap]),
			"chunk %d does not start with its predecessor's tail", i)
	}
}

// Stripping the overlap prefix from every chunk after the first must
// reassemble the original content exactly: chunking loses nothing.
func TestTextChunker_Reconstruction(t *testing.T) {
	const overlap = 10
	c := newTestChunker(t, 60, 5, overlap)

	content := strings.Repeat("Meeting notes from the budget review.\n\nAction items follow here. ", 20)
	doc := domain.Document{ID: "d1", Content: content}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var b strings.Builder
	for i, chunk := range chunks {
		runes := []rune(chunk.Text)
		if i > 0 {
			runes = runes[overlap:]
		}
		b.WriteString(string(runes))
	}
	assert.Equal(t, content, b.String())
}

func TestTextChunker_MergesShortTail(t *testing.T) {
	c := newTestChunker(t, 6, 3, 0)

	doc := domain.Document{ID: "d1", Content: "aaaa bbbb cc"}
	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "aaaa ", chunks[0].Text)
	assert.Equal(t, "bbbb cc", chunks[1].Text)
}

func TestTextChunker_MergesShortHead(t *testing.T) {
	c := newTestChunker(t, 10, 6, 0)

	doc := domain.Document{ID: "d1", Content: "aaaa bbbb c"}
	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "aaaa bbbb c", chunks[0].Text)
}

func TestTextChunker_Deterministic(t *testing.T) {
	c := newTestChunker(t, 80, 20, 15)

	doc := domain.Document{ID: "d1", Content: strings.Repeat("Some repeated note text with words. ", 40)}
	first, err := c.Chunk(doc)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := c.Chunk(doc)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestTextChunker_PrefersParagraphBreak(t *testing.T) {
	c := newTestChunker(t, 40, 5, 0)

	doc := domain.Document{ID: "d1", Content: "First paragraph here.\n\nSecond paragraph with more text than fits."}
	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "First paragraph here.\n\n", chunks[0].Text)
}
