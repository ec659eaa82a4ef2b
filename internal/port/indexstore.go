package port

import (
	"time"

	"recall/internal/domain"
)

type IndexStore interface {
	PutDoc(doc DocRecord) error

	GetDoc(id string) (DocRecord, error)

	DeleteDoc(id string) error

	ListDocs() ([]DocRecord, error)

	GetChunk(id string) (domain.Chunk, error)

	GetChunksByDoc(docID string) ([]domain.Chunk, error)

	// IndexDocument atomically replaces the document's record, chunks
	// and postings. Stale chunks are fully invalidated, never patched.
	IndexDocument(doc DocRecord, chunks []domain.Chunk, postings map[string]map[string]int) error

	// RemoveDocument deletes the document plus all its chunks and
	// postings, leaving no dangling references.
	RemoveDocument(docID string) error

	GetPostings(term string) ([]domain.Posting, error)

	GetStats() (domain.Stats, error)

	UpdateStats(stats domain.Stats) error

	Close() error
}

// DocRecord is the index store's view of a document: metadata only, the
// content itself lives in the chunks.
type DocRecord struct {
	ID           string
	Title        string
	Tags         []string
	LastModified time.Time
	IndexedAt    time.Time
}
