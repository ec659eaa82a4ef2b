package retriever

import (
	"fmt"
	"math"
	"sort"

	"recall/internal/adapter/analyzer"
	"recall/internal/domain"
	"recall/internal/port"
)

// BM25Retriever scores chunks with Okapi BM25 over the lexical index.
// Queries pass through the same Tokenizer used at index time.
type BM25Retriever struct {
	store     port.IndexStore
	tokenizer *analyzer.Tokenizer
	k1        float64
	b         float64
}

func NewBM25Retriever(store port.IndexStore, tokenizer *analyzer.Tokenizer, k1, b float64) *BM25Retriever {
	return &BM25Retriever{
		store:     store,
		tokenizer: tokenizer,
		k1:        k1,
		b:         b,
	}
}

// Search returns at most k chunks sorted by descending BM25 score.
// Ties break by chunk ID, which orders chunks by document and
// insertion ordinal, so identical queries against an unchanged index
// return identical lists. An empty query or an empty index yields an
// empty result, not an error.
func (r *BM25Retriever) Search(query string, k int) ([]domain.ScoredChunk, error) {
	queryTokens := r.tokenizer.Tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	stats, err := r.store.GetStats()
	if err != nil {
		return nil, err
	}
	if stats.TotalChunks == 0 {
		return nil, nil
	}

	chunkScores := make(map[string]float64)
	chunkCache := make(map[string]domain.Chunk)

	for _, term := range queryTokens {
		postings, err := r.store.GetPostings(term)
		if err != nil {
			return nil, err
		}
		if len(postings) == 0 {
			continue
		}

		n := float64(len(postings))
		N := float64(stats.TotalChunks)
		idf := math.Log(1 + (N-n+0.5)/(n+0.5))

		for _, posting := range postings {
			chunk, ok := chunkCache[posting.ChunkID]
			if !ok {
				chunk, err = r.store.GetChunk(posting.ChunkID)
				if err != nil {
					// A posting referencing a missing chunk means the
					// index is corrupt; only a full rebuild recovers.
					return nil, fmt.Errorf("posting for %q references chunk %s: %w", term, posting.ChunkID, domain.ErrIndexCorrupt)
				}
				chunkCache[posting.ChunkID] = chunk
			}

			dl := float64(len(chunk.Tokens))
			tf := float64(posting.TF)
			chunkScores[posting.ChunkID] += idf * (tf * (r.k1 + 1)) / (tf + r.k1*(1-r.b+r.b*dl/stats.AvgChunkLen))
		}
	}

	results := make([]domain.ScoredChunk, 0, len(chunkScores))
	for chunkID, score := range chunkScores {
		results = append(results, domain.ScoredChunk{
			Chunk: chunkCache[chunkID],
			Score: score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
