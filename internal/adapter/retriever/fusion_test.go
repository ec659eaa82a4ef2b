package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/internal/domain"
)

func scored(id string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: domain.Chunk{ID: id, DocID: "d1", Text: id}, Score: score}
}

func TestFuse_BothEmpty(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, 0.5, 10))
}

func TestFuse_LexicalOnly(t *testing.T) {
	lexical := []domain.ScoredChunk{
		scored("d1:0000", 4.0),
		scored("d1:0001", 2.0),
		scored("d1:0002", 1.0),
	}

	fused := Fuse(lexical, nil, 0.5, 10)
	require.Len(t, fused, 3)

	// Missing semantic entries contribute zero; the lexical order holds.
	assert.Equal(t, "d1:0000", fused[0].Chunk.ID)
	assert.InDelta(t, 0.5, fused[0].Fused, 1e-9)
	assert.InDelta(t, 0.0, fused[0].Semantic, 1e-9)
	assert.InDelta(t, 4.0, fused[0].Lexical, 1e-9)
	assert.InDelta(t, 0.0, fused[2].Fused, 1e-9)
}

func TestFuse_WeightExtremes(t *testing.T) {
	lexical := []domain.ScoredChunk{
		scored("d1:0000", 9.0),
		scored("d1:0001", 3.0),
	}
	semantic := []domain.ScoredChunk{
		scored("d1:0001", 0.9),
		scored("d1:0000", 0.4),
	}

	// Weight 1.0 reproduces the lexical ranking.
	fused := Fuse(lexical, semantic, 1.0, 10)
	require.Len(t, fused, 2)
	assert.Equal(t, "d1:0000", fused[0].Chunk.ID)

	// Weight 0.0 reproduces the semantic ranking.
	fused = Fuse(lexical, semantic, 0.0, 10)
	require.Len(t, fused, 2)
	assert.Equal(t, "d1:0001", fused[0].Chunk.ID)
}

func TestFuse_NormalizationRange(t *testing.T) {
	lexical := []domain.ScoredChunk{
		scored("d1:0000", 120.0),
		scored("d1:0001", 60.0),
		scored("d1:0002", 12.0),
	}
	semantic := []domain.ScoredChunk{
		scored("d1:0000", 0.8),
		scored("d1:0001", 0.6),
		scored("d1:0002", 0.3),
	}

	fused := Fuse(lexical, semantic, 0.5, 10)
	for _, fc := range fused {
		assert.GreaterOrEqual(t, fc.Fused, 0.0)
		assert.LessOrEqual(t, fc.Fused, 1.0)
	}
	// Top of both lists normalizes to 1.0 on each side.
	assert.InDelta(t, 1.0, fused[0].Fused, 1e-9)
}

// A single-element list (zero score range) normalizes to 1.0 rather
// than dividing by zero.
func TestFuse_ZeroRangeNormalizesToOne(t *testing.T) {
	lexical := []domain.ScoredChunk{scored("d1:0000", 7.3)}

	fused := Fuse(lexical, nil, 0.6, 10)
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.6, fused[0].Fused, 1e-9)
}

func TestFuse_TieBreaksOnRawSemantic(t *testing.T) {
	// Both chunks normalize to 1.0 on their only list, so fused scores
	// tie; the higher raw semantic score must come first.
	lexical := []domain.ScoredChunk{scored("d1:0000", 5.0)}
	semantic := []domain.ScoredChunk{scored("d1:0001", 0.9)}

	fused := Fuse(lexical, semantic, 0.5, 10)
	require.Len(t, fused, 2)
	assert.Equal(t, "d1:0001", fused[0].Chunk.ID)
	assert.Equal(t, "d1:0000", fused[1].Chunk.ID)
}

func TestFuse_TruncatesToFinalTopK(t *testing.T) {
	var lexical []domain.ScoredChunk
	for i := 0; i < 30; i++ {
		lexical = append(lexical, scored(domain.ChunkID("d1", i), float64(30-i)))
	}

	fused := Fuse(lexical, nil, 0.5, 10)
	assert.Len(t, fused, 10)
	assert.Equal(t, "d1:0000", fused[0].Chunk.ID)
}

func TestFuse_RawScoresPreserved(t *testing.T) {
	lexical := []domain.ScoredChunk{scored("d1:0000", 3.7)}
	semantic := []domain.ScoredChunk{scored("d1:0000", 0.82)}

	fused := Fuse(lexical, semantic, 0.5, 10)
	require.Len(t, fused, 1)
	assert.InDelta(t, 3.7, fused[0].Lexical, 1e-9)
	assert.InDelta(t, 0.82, fused[0].Semantic, 1e-9)
	assert.InDelta(t, 1.0, fused[0].Fused, 1e-9)
}
