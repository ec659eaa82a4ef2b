package port

import "recall/internal/domain"

type Chunker interface {
	// Chunk splits a document into an ordered sequence of chunks.
	// Deterministic: the same document and configuration always yield
	// identical boundaries.
	Chunk(doc domain.Document) ([]domain.Chunk, error)
}
