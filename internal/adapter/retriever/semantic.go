package retriever

import (
	"context"
	"fmt"

	"recall/internal/domain"
	"recall/internal/port"
)

// SemanticRetriever embeds the query and searches the vector store.
// Results below minScore are excluded entirely by the store; the
// threshold is a hard filter, not a ranking weight.
type SemanticRetriever struct {
	vectorStore port.VectorStore
	embedder    port.Embedder
	chunkStore  port.IndexStore
	minScore    float64
}

func NewSemanticRetriever(
	vectorStore port.VectorStore,
	embedder port.Embedder,
	chunkStore port.IndexStore,
	minScore float64,
) *SemanticRetriever {
	return &SemanticRetriever{
		vectorStore: vectorStore,
		embedder:    embedder,
		chunkStore:  chunkStore,
		minScore:    minScore,
	}
}

func (r *SemanticRetriever) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, nil
	}

	results, err := r.vectorStore.Search(embeddings[0], k, r.minScore)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	chunks := make([]domain.ScoredChunk, 0, len(results))
	for _, result := range results {
		chunk, err := r.chunkStore.GetChunk(result.ID)
		if err != nil {
			// The vector side may lag the lexical side after an edit;
			// a vector without a live chunk is skipped, not fatal.
			continue
		}
		chunks = append(chunks, domain.ScoredChunk{
			Chunk: chunk,
			Score: result.Score,
		})
	}
	return chunks, nil
}
