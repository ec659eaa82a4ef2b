// Package memstore provides an in-memory IndexStore, used by tests and
// throwaway corpora that need no persistence.
package memstore

import (
	"fmt"
	"sync"

	"recall/internal/domain"
	"recall/internal/port"
)

type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]port.DocRecord
	chunks    map[string]domain.Chunk
	docChunks map[string][]string
	postings  map[string][]domain.Posting
	stats     domain.Stats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]port.DocRecord),
		chunks:    make(map[string]domain.Chunk),
		docChunks: make(map[string][]string),
		postings:  make(map[string][]domain.Posting),
	}
}

func (s *MemoryStore) PutDoc(doc port.DocRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) GetDoc(id string) (port.DocRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return port.DocRecord{}, fmt.Errorf("document not found: %s", id)
	}
	return doc, nil
}

func (s *MemoryStore) DeleteDoc(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) ListDocs() ([]port.DocRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]port.DocRecord, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MemoryStore) GetChunk(id string) (domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("chunk not found: %s", id)
	}
	return chunk, nil
}

func (s *MemoryStore) GetChunksByDoc(docID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.docChunks[docID]
	chunks := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := s.chunks[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (s *MemoryStore) IndexDocument(doc port.DocRecord, chunks []domain.Chunk, postings map[string]map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(doc.ID)
	s.docs[doc.ID] = doc

	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		s.chunks[chunk.ID] = chunk
		ids = append(ids, chunk.ID)
	}
	s.docChunks[doc.ID] = ids

	for term, chunkTFs := range postings {
		for chunkID, tf := range chunkTFs {
			s.postings[term] = append(s.postings[term], domain.Posting{ChunkID: chunkID, TF: tf})
		}
	}
	return nil
}

func (s *MemoryStore) RemoveDocument(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(docID)
	return nil
}

func (s *MemoryStore) removeLocked(docID string) {
	dead := make(map[string]struct{})
	for _, id := range s.docChunks[docID] {
		dead[id] = struct{}{}
		delete(s.chunks, id)
	}
	for term, postings := range s.postings {
		filtered := postings[:0]
		for _, p := range postings {
			if _, gone := dead[p.ChunkID]; !gone {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(s.postings, term)
		} else {
			s.postings[term] = filtered
		}
	}
	delete(s.docChunks, docID)
	delete(s.docs, docID)
}

func (s *MemoryStore) GetPostings(term string) ([]domain.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	postings := s.postings[term]
	out := make([]domain.Posting, len(postings))
	copy(out, postings)
	return out, nil
}

func (s *MemoryStore) GetStats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

func (s *MemoryStore) UpdateStats(stats domain.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
