package retriever

import (
	"sort"

	"recall/internal/domain"
)

// FusedChunk carries a chunk with its raw per-retriever scores and the
// combined score.
type FusedChunk struct {
	Chunk    domain.Chunk
	Lexical  float64
	Semantic float64
	Fused    float64
}

// Fuse combines a lexical and a semantic result list into one ranking.
//
// Each list's scores are min-max normalized independently to [0,1],
// which stops BM25's unbounded scale from dominating cosine's bounded
// one. A list whose scores span zero range (including single-element
// lists) normalizes to 1.0 throughout. A chunk present in only one list
// contributes 0 for the missing side, so a purely semantic hit still
// earns a fused score from its semantic component alone.
//
// fused = bm25Weight*normLexical + (1-bm25Weight)*normSemantic.
//
// Ties break toward the higher raw semantic score: at rank boundaries
// semantic similarity is treated as the more reliable signal. Two empty
// inputs yield an empty result; no relevant context is a normal
// outcome, not an error.
func Fuse(lexical, semantic []domain.ScoredChunk, bm25Weight float64, finalTopK int) []FusedChunk {
	if len(lexical) == 0 && len(semantic) == 0 {
		return nil
	}

	normLex := normalize(lexical)
	normSem := normalize(semantic)

	merged := make(map[string]*FusedChunk, len(lexical)+len(semantic))
	for i, sc := range lexical {
		merged[sc.Chunk.ID] = &FusedChunk{
			Chunk:   sc.Chunk,
			Lexical: sc.Score,
			Fused:   bm25Weight * normLex[i],
		}
	}
	for i, sc := range semantic {
		entry, ok := merged[sc.Chunk.ID]
		if !ok {
			entry = &FusedChunk{Chunk: sc.Chunk}
			merged[sc.Chunk.ID] = entry
		}
		entry.Semantic = sc.Score
		entry.Fused += (1 - bm25Weight) * normSem[i]
	}

	fused := make([]FusedChunk, 0, len(merged))
	for _, entry := range merged {
		fused = append(fused, *entry)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Fused != fused[j].Fused {
			return fused[i].Fused > fused[j].Fused
		}
		if fused[i].Semantic != fused[j].Semantic {
			return fused[i].Semantic > fused[j].Semantic
		}
		return fused[i].Chunk.ID < fused[j].Chunk.ID
	})

	if len(fused) > finalTopK {
		fused = fused[:finalTopK]
	}
	return fused
}

// normalize min-max scales a result list's scores to [0,1]. Zero range
// normalizes to 1.0 for every element.
func normalize(results []domain.ScoredChunk) []float64 {
	if len(results) == 0 {
		return nil
	}

	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}

	norm := make([]float64, len(results))
	if hi == lo {
		for i := range norm {
			norm[i] = 1.0
		}
		return norm
	}
	for i, r := range results {
		norm[i] = (r.Score - lo) / (hi - lo)
	}
	return norm
}
