package usecase

import (
	"context"
	"strings"

	"recall/config"
	"recall/internal/adapter/analyzer"
	"recall/internal/adapter/retriever"
	"recall/internal/domain"
)

// Retrieve runs the full hybrid pipeline for one query: lexical BM25
// search, semantic search when embeddings are enabled, score fusion,
// and truncation to the final top K.
//
// The semantic side is best-effort. If the provider is unreachable or
// the vector store needs a rebuild, retrieval degrades to lexical-only
// with a warning instead of failing: stale or partial context beats no
// context. An empty result list is a normal outcome for a query that
// matches nothing.
func (e *Engine) Retrieve(ctx context.Context, query string, cfg *config.Config) ([]domain.RetrievalResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if results, ok := e.cache.Get(query, cfg.Fusion.FinalTopK); ok {
		return results, nil
	}

	e.mu.RLock()
	index, vectors := e.index, e.vectors
	e.mu.RUnlock()

	tokenizer := analyzer.NewTokenizer(cfg.BM25.Stemming)
	lexical, err := retriever.NewBM25Retriever(index, tokenizer, cfg.BM25.K1, cfg.BM25.B).
		Search(query, cfg.BM25.TopK)
	if err != nil {
		return nil, err
	}

	var semantic []domain.ScoredChunk
	if cfg.Embedding.Enabled && vectors != nil {
		if vectors.Stale() {
			e.log.Warn("skipping semantic search: vector store needs a rebuild")
		} else {
			sem := retriever.NewSemanticRetriever(vectors, e.embedder, index, cfg.Embedding.MinScore)
			semantic, err = sem.Search(ctx, query, cfg.Embedding.TopK)
			if err != nil {
				e.log.Warn("semantic search failed; falling back to lexical results", "err", err)
				semantic = nil
			}
		}
	}

	fused := retriever.Fuse(lexical, semantic, cfg.Fusion.BM25Weight, cfg.Fusion.FinalTopK)

	titles := make(map[string]string)
	results := make([]domain.RetrievalResult, 0, len(fused))
	for _, fc := range fused {
		title, ok := titles[fc.Chunk.DocID]
		if !ok {
			if rec, err := index.GetDoc(fc.Chunk.DocID); err == nil {
				title = rec.Title
			}
			titles[fc.Chunk.DocID] = title
		}
		results = append(results, domain.RetrievalResult{
			ChunkID:       fc.Chunk.ID,
			DocumentID:    fc.Chunk.DocID,
			ParentTitle:   title,
			Content:       fc.Chunk.Text,
			LexicalScore:  fc.Lexical,
			SemanticScore: fc.Semantic,
			FusedScore:    fc.Fused,
		})
	}

	e.cache.Put(query, cfg.Fusion.FinalTopK, results)
	return results, nil
}
