package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.etcd.io/bbolt"

	"recall/internal/domain"
	"recall/internal/port"
)

var (
	bucketVectors  = []byte("vectors")
	bucketEmbState = []byte("embed_state")
	bucketPending  = []byte("pending")
	bucketVecMeta  = []byte("meta")
	keyDimension   = []byte("dimension")
)

// BoltVectorStore persists embedding vectors in a dedicated bbolt file,
// independent of the lexical index. Brute-force cosine search over an
// in-memory copy; fine at note-corpus scale.
//
// All vectors share one dimension, stamped into the file on first
// write. Opening the store with a different configured dimension marks
// it stale: every read and write then fails until Clear() wipes it for
// a full rebuild.
type BoltVectorStore struct {
	db        *bbolt.DB
	dimension int
	stale     bool

	mu      sync.RWMutex
	vectors map[string][]float32
}

type storedVector struct {
	DocID  string    `json:"d"`
	Vector []float32 `json:"v"`
}

// OpenBoltVectorStore opens (or creates) the vector store at path for
// the given dimension.
func OpenBoltVectorStore(path string, dimension int) (*BoltVectorStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector db: %w", err)
	}

	s := &BoltVectorStore{
		db:        db,
		dimension: dimension,
		vectors:   make(map[string][]float32),
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketVectors, bucketEmbState, bucketPending, bucketVecMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketVecMeta)
		if data := meta.Get(keyDimension); data != nil {
			stored := int(binary.BigEndian.Uint32(data))
			if stored != dimension {
				s.stale = true
			}
			return nil
		}
		return meta.Put(keyDimension, dimensionBytes(dimension))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if !s.stale {
		if err := s.loadVectors(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to load vectors: %w", err)
		}
	}

	return s, nil
}

func dimensionBytes(dim int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(dim))
	return buf
}

func (s *BoltVectorStore) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // skip corrupted entries
			}
			s.vectors[string(k)] = stored.Vector
			return nil
		})
	})
}

// Stale reports whether the stored dimension disagrees with the
// configured one. A stale store only accepts Clear.
func (s *BoltVectorStore) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Upsert adds or updates vectors.
func (s *BoltVectorStore) Upsert(items []port.VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale {
		return domain.ErrDimensionMismatch
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, item := range items {
			if len(item.Vector) != s.dimension {
				return fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, s.dimension, len(item.Vector))
			}
			data, err := json.Marshal(storedVector{DocID: item.DocID, Vector: item.Vector})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(item.ID), data); err != nil {
				return err
			}
			s.vectors[item.ID] = item.Vector
		}
		return nil
	})
}

// DeleteByDoc removes every vector belonging to the document. Chunk IDs
// are docID-prefixed, so this is a cursor prefix scan.
func (s *BoltVectorStore) DeleteByDoc(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := []byte(docID + ":")
	return s.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketVectors).Cursor()
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			delete(s.vectors, string(k))
		}
		return nil
	})
}

// Search returns the k most similar vectors to the query, excluding any
// below minScore. The threshold is a hard filter. An empty store yields
// an empty result.
func (s *BoltVectorStore) Search(query []float32, k int, minScore float64) ([]port.VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stale {
		return nil, domain.ErrIndexCorrupt
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d", domain.ErrDimensionMismatch, len(query), s.dimension)
	}
	if len(s.vectors) == 0 {
		return nil, nil
	}

	results := make([]port.VectorResult, 0, len(s.vectors))
	for id, vec := range s.vectors {
		score := cosineSimilarity(query, vec)
		if score < minScore {
			continue
		}
		results = append(results, port.VectorResult{ID: id, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of vectors in the store.
func (s *BoltVectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

// Clear wipes vectors, embed state and the pending queue, and restamps
// the configured dimension. This is the only way out of a stale store.
func (s *BoltVectorStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketEmbState, bucketPending} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketVecMeta).Put(keyDimension, dimensionBytes(s.dimension))
	})
	if err != nil {
		return err
	}

	s.vectors = make(map[string][]float32)
	s.stale = false
	return nil
}

// SetDocState records when a document's vectors were generated, keyed
// by its lastModified timestamp. UpdateEmbeddings diffs against this to
// skip unchanged documents.
func (s *BoltVectorStore) SetDocState(docID string, lastModified int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(lastModified))
		return tx.Bucket(bucketEmbState).Put([]byte(docID), buf)
	})
}

// DocStates returns docID -> lastModified for every embedded document.
func (s *BoltVectorStore) DocStates() (map[string]int64, error) {
	states := make(map[string]int64)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbState).ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				states[string(k)] = int64(binary.BigEndian.Uint64(v))
			}
			return nil
		})
	})
	return states, err
}

func (s *BoltVectorStore) DeleteDocState(docID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbState).Delete([]byte(docID))
	})
}

// MarkPending queues a document whose embedding failed, for retry on
// the next manual or automatic cycle. Survives restarts.
func (s *BoltVectorStore) MarkPending(docID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Put([]byte(docID), []byte{1})
	})
}

func (s *BoltVectorStore) ClearPending(docID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Delete([]byte(docID))
	})
}

func (s *BoltVectorStore) ListPending() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *BoltVectorStore) Close() error {
	return s.db.Close()
}

// cosineSimilarity is dot(a,b) / (|a| * |b|); zero for mismatched or
// zero-norm vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
