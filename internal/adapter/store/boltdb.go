package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"recall/internal/domain"
	"recall/internal/port"
)

var (
	bucketDocs      = []byte("docs")
	bucketChunks    = []byte("chunks")
	bucketBlobs     = []byte("blobs")
	bucketTerms     = []byte("terms")
	bucketStats     = []byte("stats")
	bucketDocChunks = []byte("doc_chunks")
	keyStats        = []byte("corpus_stats")
)

// BoltStore is the bbolt-backed lexical index: documents, chunks,
// postings and corpus stats. It owns only the lexical side; vectors
// live in their own store.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocs, bucketChunks, bucketBlobs, bucketTerms, bucketStats, bucketDocChunks}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

type docMeta struct {
	Title        string   `json:"title"`
	Tags         []string `json:"tags,omitempty"`
	LastModified int64    `json:"last_modified"`
	IndexedAt    int64    `json:"indexed_at"`
}

type chunkMeta struct {
	DocID    string   `json:"doc_id"`
	Position int      `json:"position"`
	Tokens   []string `json:"tokens"`
}

func (s *BoltStore) PutDoc(doc port.DocRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putDocRecord(tx, doc)
	})
}

func putDocRecord(tx *bbolt.Tx, doc port.DocRecord) error {
	meta := docMeta{
		Title:        doc.Title,
		Tags:         doc.Tags,
		LastModified: doc.LastModified.Unix(),
		IndexedAt:    doc.IndexedAt.Unix(),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketDocs).Put([]byte(doc.ID), data)
}

func (s *BoltStore) GetDoc(id string) (port.DocRecord, error) {
	var doc port.DocRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document not found: %s", id)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		doc = port.DocRecord{
			ID:           id,
			Title:        meta.Title,
			Tags:         meta.Tags,
			LastModified: time.Unix(meta.LastModified, 0),
			IndexedAt:    time.Unix(meta.IndexedAt, 0),
		}
		return nil
	})
	return doc, err
}

func (s *BoltStore) DeleteDoc(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).Delete([]byte(id))
	})
}

func (s *BoltStore) ListDocs() ([]port.DocRecord, error) {
	var docs []port.DocRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocs)
		return b.ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			docs = append(docs, port.DocRecord{
				ID:           string(k),
				Title:        meta.Title,
				Tags:         meta.Tags,
				LastModified: time.Unix(meta.LastModified, 0),
				IndexedAt:    time.Unix(meta.IndexedAt, 0),
			})
			return nil
		})
	})
	return docs, err
}

func (s *BoltStore) GetChunk(id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		c, err := getChunk(tx, id)
		if err != nil {
			return err
		}
		chunk = c
		return nil
	})
	return chunk, err
}

func getChunk(tx *bbolt.Tx, id string) (domain.Chunk, error) {
	data := tx.Bucket(bucketChunks).Get([]byte(id))
	if data == nil {
		return domain.Chunk{}, fmt.Errorf("chunk not found: %s", id)
	}
	var meta chunkMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.Chunk{}, err
	}
	text := tx.Bucket(bucketBlobs).Get([]byte(id))
	return domain.Chunk{
		ID:       id,
		DocID:    meta.DocID,
		Position: meta.Position,
		Tokens:   meta.Tokens,
		Text:     string(text),
	}, nil
}

func (s *BoltStore) GetChunksByDoc(docID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocChunks).Get([]byte(docID))
		if data == nil {
			return nil
		}
		var chunkIDs []string
		if err := json.Unmarshal(data, &chunkIDs); err != nil {
			return err
		}
		for _, id := range chunkIDs {
			chunk, err := getChunk(tx, id)
			if err != nil {
				continue
			}
			chunks = append(chunks, chunk)
		}
		return nil
	})
	return chunks, err
}

// IndexDocument replaces the document's record, chunks and postings in
// a single transaction. Stale chunks are removed wholesale first so
// overlap boundaries never drift between partial states.
func (s *BoltStore) IndexDocument(doc port.DocRecord, chunks []domain.Chunk, postings map[string]map[string]int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := removeDocument(tx, doc.ID); err != nil {
			return err
		}
		if err := putDocRecord(tx, doc); err != nil {
			return err
		}

		chunkBucket := tx.Bucket(bucketChunks)
		blobBucket := tx.Bucket(bucketBlobs)

		chunkIDs := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			meta := chunkMeta{
				DocID:    chunk.DocID,
				Position: chunk.Position,
				Tokens:   chunk.Tokens,
			}
			data, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(chunk.ID), data); err != nil {
				return err
			}
			if err := blobBucket.Put([]byte(chunk.ID), []byte(chunk.Text)); err != nil {
				return err
			}
			chunkIDs = append(chunkIDs, chunk.ID)
		}

		chunkIDsData, err := json.Marshal(chunkIDs)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDocChunks).Put([]byte(doc.ID), chunkIDsData); err != nil {
			return err
		}

		termsBucket := tx.Bucket(bucketTerms)
		for term, chunkTFs := range postings {
			var existing []domain.Posting
			if data := termsBucket.Get([]byte(term)); data != nil {
				if err := json.Unmarshal(data, &existing); err != nil {
					return err
				}
			}
			for chunkID, tf := range chunkTFs {
				existing = append(existing, domain.Posting{ChunkID: chunkID, TF: tf})
			}
			data, err := json.Marshal(existing)
			if err != nil {
				return err
			}
			if err := termsBucket.Put([]byte(term), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// RemoveDocument deletes the document, its chunks and every posting
// referencing them, so nothing dangles afterwards.
func (s *BoltStore) RemoveDocument(docID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return removeDocument(tx, docID)
	})
}

func removeDocument(tx *bbolt.Tx, docID string) error {
	docChunks := tx.Bucket(bucketDocChunks)
	data := docChunks.Get([]byte(docID))

	if data != nil {
		var chunkIDs []string
		if err := json.Unmarshal(data, &chunkIDs); err != nil {
			return err
		}

		chunkBucket := tx.Bucket(bucketChunks)
		blobBucket := tx.Bucket(bucketBlobs)
		termsBucket := tx.Bucket(bucketTerms)

		dead := make(map[string]struct{}, len(chunkIDs))
		terms := make(map[string]struct{})
		for _, id := range chunkIDs {
			dead[id] = struct{}{}
			if chunkData := chunkBucket.Get([]byte(id)); chunkData != nil {
				var meta chunkMeta
				if err := json.Unmarshal(chunkData, &meta); err == nil {
					for _, t := range meta.Tokens {
						terms[t] = struct{}{}
					}
				}
			}
			if err := chunkBucket.Delete([]byte(id)); err != nil {
				return err
			}
			if err := blobBucket.Delete([]byte(id)); err != nil {
				return err
			}
		}

		for term := range terms {
			termData := termsBucket.Get([]byte(term))
			if termData == nil {
				continue
			}
			var postings []domain.Posting
			if err := json.Unmarshal(termData, &postings); err != nil {
				continue
			}
			filtered := postings[:0]
			for _, p := range postings {
				if _, gone := dead[p.ChunkID]; !gone {
					filtered = append(filtered, p)
				}
			}
			if len(filtered) == 0 {
				if err := termsBucket.Delete([]byte(term)); err != nil {
					return err
				}
				continue
			}
			out, err := json.Marshal(filtered)
			if err != nil {
				return err
			}
			if err := termsBucket.Put([]byte(term), out); err != nil {
				return err
			}
		}

		if err := docChunks.Delete([]byte(docID)); err != nil {
			return err
		}
	}

	return tx.Bucket(bucketDocs).Delete([]byte(docID))
}

func (s *BoltStore) GetPostings(term string) ([]domain.Posting, error) {
	var postings []domain.Posting
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTerms).Get([]byte(term))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &postings)
	})
	return postings, err
}

func (s *BoltStore) GetStats() (domain.Stats, error) {
	var stats domain.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketStats).Get(keyStats)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stats)
	})
	return stats, err
}

func (s *BoltStore) UpdateStats(stats domain.Stats) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketStats).Put(keyStats, data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
