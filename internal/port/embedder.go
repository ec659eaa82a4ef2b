package port

import "context"

// Embedder generates vector embeddings for text. Implementations call
// out to a network provider, so every method takes a context and must
// honor cancellation.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore persists and searches vectors it is given. It never calls
// an embedding provider itself.
type VectorStore interface {
	// Upsert adds or updates vectors, replacing the document's previous
	// vectors as a unit.
	Upsert(items []VectorItem) error

	// DeleteByDoc removes every vector belonging to the document.
	DeleteByDoc(docID string) error

	// Search finds the k most cosine-similar vectors to the query,
	// excluding any result scoring below minScore. The threshold is a
	// hard filter, not a re-rank weight.
	Search(query []float32, k int, minScore float64) ([]VectorResult, error)

	// Count returns the number of vectors in the store.
	Count() (int, error)
}

// VectorItem is a vector to be stored.
type VectorItem struct {
	ID     string // chunk ID
	DocID  string
	Vector []float32
}

// VectorResult is a similarity-search hit.
type VectorResult struct {
	ID    string // chunk ID
	Score float64
}
