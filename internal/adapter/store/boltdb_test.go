package store

import (
	"path/filepath"
	"testing"
	"time"

	"recall/internal/domain"
	"recall/internal/port"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	st, err := NewBoltStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func indexTestDoc(t *testing.T, st *BoltStore, docID string, texts []string) {
	t.Helper()
	chunks := make([]domain.Chunk, len(texts))
	postings := make(map[string]map[string]int)
	for i, text := range texts {
		id := domain.ChunkID(docID, i)
		chunks[i] = domain.Chunk{
			ID:       id,
			DocID:    docID,
			Position: i,
			Text:     text,
			Tokens:   []string{text},
		}
		if postings[text] == nil {
			postings[text] = make(map[string]int)
		}
		postings[text][id]++
	}
	doc := port.DocRecord{ID: docID, Title: "Title " + docID, LastModified: time.Now(), IndexedAt: time.Now()}
	if err := st.IndexDocument(doc, chunks, postings); err != nil {
		t.Fatal(err)
	}
}

func TestBoltStore_IndexAndGet(t *testing.T) {
	st := newTestStore(t)
	indexTestDoc(t, st, "doc1", []string{"alpha", "beta"})

	doc, err := st.GetDoc("doc1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Title doc1" {
		t.Errorf("expected title, got %q", doc.Title)
	}

	chunk, err := st.GetChunk("doc1:0000")
	if err != nil {
		t.Fatal(err)
	}
	if chunk.Text != "alpha" || chunk.DocID != "doc1" || chunk.Position != 0 {
		t.Errorf("unexpected chunk: %+v", chunk)
	}

	chunks, err := st.GetChunksByDoc("doc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks, got %d", len(chunks))
	}

	postings, err := st.GetPostings("beta")
	if err != nil {
		t.Fatal(err)
	}
	if len(postings) != 1 || postings[0].ChunkID != "doc1:0001" || postings[0].TF != 1 {
		t.Errorf("unexpected postings: %+v", postings)
	}
}

// Re-indexing a document must fully replace its previous chunks and
// postings, including chunks that no longer exist.
func TestBoltStore_ReindexReplaces(t *testing.T) {
	st := newTestStore(t)
	indexTestDoc(t, st, "doc1", []string{"alpha", "beta", "gama"})
	indexTestDoc(t, st, "doc1", []string{"delta"})

	if _, err := st.GetChunk("doc1:0001"); err == nil {
		t.Error("expected old chunk doc1:0001 to be gone")
	}

	postings, err := st.GetPostings("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(postings) != 0 {
		t.Errorf("expected postings for dropped term to be gone, got %+v", postings)
	}

	postings, err = st.GetPostings("delta")
	if err != nil {
		t.Fatal(err)
	}
	if len(postings) != 1 {
		t.Errorf("expected 1 posting for new term, got %d", len(postings))
	}
}

func TestBoltStore_RemoveDocument(t *testing.T) {
	st := newTestStore(t)
	indexTestDoc(t, st, "doc1", []string{"alpha", "shared"})
	indexTestDoc(t, st, "doc2", []string{"shared"})

	if err := st.RemoveDocument("doc1"); err != nil {
		t.Fatal(err)
	}

	if _, err := st.GetDoc("doc1"); err == nil {
		t.Error("expected doc1 record to be gone")
	}
	if _, err := st.GetChunk("doc1:0000"); err == nil {
		t.Error("expected doc1 chunks to be gone")
	}

	// Shared terms keep postings from surviving documents only.
	postings, err := st.GetPostings("shared")
	if err != nil {
		t.Fatal(err)
	}
	if len(postings) != 1 || postings[0].ChunkID != "doc2:0000" {
		t.Errorf("expected only doc2 posting to survive, got %+v", postings)
	}
	postings, err = st.GetPostings("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(postings) != 0 {
		t.Errorf("expected alpha postings to be gone, got %+v", postings)
	}
}

func TestBoltStore_StatsRoundTrip(t *testing.T) {
	st := newTestStore(t)

	stats, err := st.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalChunks != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	want := domain.Stats{TotalDocs: 2, TotalChunks: 9, AvgChunkLen: 31.5}
	if err := st.UpdateStats(want); err != nil {
		t.Fatal(err)
	}
	stats, err = st.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	st, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	indexTestDoc(t, st, "doc1", []string{"alpha"})
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	st, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	chunk, err := st.GetChunk("doc1:0000")
	if err != nil {
		t.Fatal(err)
	}
	if chunk.Text != "alpha" {
		t.Errorf("expected persisted chunk text, got %q", chunk.Text)
	}
}
