package domain

import (
	"fmt"
	"time"
)

// Document is a note or chat transcript owned by the caller's storage.
// The retrieval core only ever reads it.
type Document struct {
	ID           string
	Title        string
	Content      string
	Tags         []string
	LastModified time.Time
}

// Chunk is a bounded slice of a document's text, the unit of indexing
// and retrieval. Chunks for a document form an ordered cover of its
// content; every chunk after the first repeats the tail of its
// predecessor as a verbatim overlap prefix.
type Chunk struct {
	ID       string
	DocID    string
	Position int
	Text     string
	Tokens   []string
}

// ChunkID builds the deterministic chunk identifier for a document and
// ordinal. The zero-padded ordinal makes lexicographic order match
// insertion order, and the docID prefix allows prefix scans in the
// stores.
func ChunkID(docID string, position int) string {
	return fmt.Sprintf("%s:%04d", docID, position)
}

type Posting struct {
	ChunkID string
	TF      int
}

type Stats struct {
	TotalDocs   int
	TotalChunks int
	AvgChunkLen float64
	IndexedAt   time.Time
}

// ScoredChunk is a chunk paired with a single retriever's score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievalResult is the fused, caller-facing result. Ephemeral:
// constructed per query, never persisted.
type RetrievalResult struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	ParentTitle   string  `json:"parent_title"`
	Content       string  `json:"content"`
	LexicalScore  float64 `json:"lexical_score"`
	SemanticScore float64 `json:"semantic_score"`
	FusedScore    float64 `json:"fused_score"`
}

// MaintenanceResult reports the outcome of a rebuild or update cycle.
// FailedDocs lists documents whose embeddings could not be generated;
// their prior vectors are retained and they stay queued for retry.
type MaintenanceResult struct {
	CompletedAt    time.Time
	DocsIndexed    int
	DocsSkipped    int
	DocsPruned     int
	ChunksIndexed  int
	VectorsWritten int
	FailedDocs     []string
}
