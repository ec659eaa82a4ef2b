// Package usecase wires the adapters into the operations callers see:
// retrieval, and manual or automatic index maintenance.
package usecase

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"recall/config"
	"recall/internal/adapter/analyzer"
	"recall/internal/adapter/cache"
	"recall/internal/adapter/chunker"
	"recall/internal/adapter/store"
	"recall/internal/domain"
	"recall/internal/port"
)

// Engine owns one corpus: its lexical index, its vector store, and the
// maintenance discipline around them.
//
// Mutating operations (rebuild, update, per-document index/remove) are
// serialized by maintMu; concurrent updates additionally coalesce
// through a singleflight group. Reads take mu.RLock, so they run
// concurrently with each other but queue behind the store swap that
// ends a shadow rebuild.
type Engine struct {
	log        *log.Logger
	source     port.DocumentSource
	embedder   port.Embedder
	indexPath  string
	vectorPath string
	strategy   saveStrategy

	mu      sync.RWMutex
	index   *store.BoltStore
	vectors *store.BoltVectorStore
	vecDim  int

	maintMu sync.Mutex
	updates singleflight.Group

	cache *cache.QueryCache
}

// NewEngine opens the corpus stores and selects the save strategy for
// the configured embedding mode. The config is validated here, at the
// boundary; scoring code never re-checks it.
func NewEngine(cfg *config.Config, source port.DocumentSource, embedder port.Embedder, logger *log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(os.Stderr)
	}

	dir := cfg.Corpus.Path
	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	index, err := store.NewBoltStore(cfg.IndexDBPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	if rebuild, reason, err := index.CheckRebuild(cfg); err == nil && rebuild {
		logger.Warn("lexical index is out of date", "reason", reason, "corpus", cfg.Corpus.ID)
	}

	e := &Engine{
		log:       logger,
		source:    source,
		embedder:  embedder,
		indexPath: cfg.IndexDBPath(dir),
		index:     index,
		cache:     cache.NewQueryCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSeconds)*time.Second),
	}

	if cfg.Embedding.Enabled {
		e.vectorPath = cfg.VectorDBPath(dir)
		vectors, err := store.OpenBoltVectorStore(e.vectorPath, cfg.Embedding.Dimension)
		if err != nil {
			index.Close()
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		if vectors.Stale() {
			logger.Warn("vector dimension changed; embeddings require a full rebuild", "corpus", cfg.Corpus.ID)
		}
		e.vectors = vectors
		e.vecDim = cfg.Embedding.Dimension
	}

	if cfg.Embedding.Mode == config.ModeAutomatic {
		e.strategy = automaticStrategy{}
	} else {
		e.strategy = manualStrategy{}
	}

	return e, nil
}

// Close closes both stores.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.index.Close()
	if e.vectors != nil {
		if verr := e.vectors.Close(); err == nil {
			err = verr
		}
	}
	return err
}

// NotifyDocumentSaved tells the engine a document was just written.
// What happens depends on the configured mode: manual does nothing
// until an explicit rebuild or update; automatic chunks, indexes and
// embeds the single document before returning. An embedding-provider
// failure never fails the save: it is logged, and the document stays
// queued for the next cycle.
func (e *Engine) NotifyDocumentSaved(ctx context.Context, cfg *config.Config, doc domain.Document) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.strategy.onDocumentSaved(ctx, e, cfg, doc)
}

// NotifyDocumentRemoved drops the document from both stores.
func (e *Engine) NotifyDocumentRemoved(docID string) error {
	e.maintMu.Lock()
	defer e.maintMu.Unlock()
	return e.removeDocument(docID)
}

func (e *Engine) removeDocument(docID string) error {
	e.mu.RLock()
	index, vectors := e.index, e.vectors
	e.mu.RUnlock()

	if err := index.RemoveDocument(docID); err != nil {
		return err
	}
	if vectors != nil && !vectors.Stale() {
		if err := vectors.DeleteByDoc(docID); err != nil {
			return err
		}
		if err := vectors.DeleteDocState(docID); err != nil {
			return err
		}
		if err := vectors.ClearPending(docID); err != nil {
			return err
		}
	}
	if err := e.recomputeStats(index); err != nil {
		return err
	}
	e.cache.Invalidate()
	return nil
}

// newChunker builds the chunker for the given config; chunking bounds
// were validated with the rest of the config.
func newChunker(cfg *config.Config, tokenizer *analyzer.Tokenizer) (port.Chunker, error) {
	return chunker.NewTextChunker(
		cfg.Chunking.MaxChars,
		cfg.Chunking.MinChars,
		cfg.Chunking.OverlapChars,
		tokenizer,
	)
}

// indexDocument chunks one document and atomically replaces its
// lexical-index entry.
func (e *Engine) indexDocument(index *store.BoltStore, cfg *config.Config, tokenizer *analyzer.Tokenizer, doc domain.Document) ([]domain.Chunk, error) {
	chk, err := newChunker(cfg, tokenizer)
	if err != nil {
		return nil, err
	}

	chunks, err := chk.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document %s: %w", doc.ID, err)
	}

	postings := make(map[string]map[string]int)
	for _, chunk := range chunks {
		tf := make(map[string]int)
		for _, token := range chunk.Tokens {
			tf[token]++
		}
		for term, count := range tf {
			if postings[term] == nil {
				postings[term] = make(map[string]int)
			}
			postings[term][chunk.ID] = count
		}
	}

	rec := port.DocRecord{
		ID:           doc.ID,
		Title:        doc.Title,
		Tags:         doc.Tags,
		LastModified: doc.LastModified,
		IndexedAt:    time.Now(),
	}
	if err := index.IndexDocument(rec, chunks, postings); err != nil {
		return nil, fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	return chunks, nil
}

// recomputeStats rewrites corpus statistics from the current store
// contents.
func (e *Engine) recomputeStats(index *store.BoltStore) error {
	docs, err := index.ListDocs()
	if err != nil {
		return err
	}

	totalChunks := 0
	totalLen := 0
	for _, doc := range docs {
		chunks, err := index.GetChunksByDoc(doc.ID)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			totalChunks++
			totalLen += len(chunk.Tokens)
		}
	}

	stats := domain.Stats{
		TotalDocs:   len(docs),
		TotalChunks: totalChunks,
		IndexedAt:   time.Now(),
	}
	if totalChunks > 0 {
		stats.AvgChunkLen = float64(totalLen) / float64(totalChunks)
	}
	return index.UpdateStats(stats)
}

// embedDocument replaces the document's vectors as a unit: the old
// vectors are only removed once the provider call for every chunk has
// succeeded, so a failed call retains the prior vectors.
func (e *Engine) embedDocument(ctx context.Context, vectors *store.BoltVectorStore, doc domain.Document, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		if err := vectors.DeleteByDoc(doc.ID); err != nil {
			return err
		}
		return vectors.SetDocState(doc.ID, doc.LastModified.Unix())
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("provider returned %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	if err := vectors.DeleteByDoc(doc.ID); err != nil {
		return err
	}
	items := make([]port.VectorItem, len(chunks))
	for i, chunk := range chunks {
		items[i] = port.VectorItem{ID: chunk.ID, DocID: doc.ID, Vector: embeddings[i]}
	}
	if err := vectors.Upsert(items); err != nil {
		return err
	}
	if err := vectors.SetDocState(doc.ID, doc.LastModified.Unix()); err != nil {
		return err
	}
	return vectors.ClearPending(doc.ID)
}

// saveStrategy decides what a document save does to the index. It is
// picked once per engine from the configured embedding mode instead of
// scattering mode conditionals through the write path.
type saveStrategy interface {
	onDocumentSaved(ctx context.Context, e *Engine, cfg *config.Config, doc domain.Document) error
}

// manualStrategy leaves the index untouched until an explicit rebuild
// or update is triggered.
type manualStrategy struct{}

func (manualStrategy) onDocumentSaved(context.Context, *Engine, *config.Config, domain.Document) error {
	return nil
}

// automaticStrategy chunks, indexes and embeds the saved document
// before the save call returns. Lexical indexing errors are fatal (the
// index is local; failure means corruption or a programming error).
// Provider errors are not: the save succeeds, a warning is logged, and
// the document is queued for retry.
type automaticStrategy struct{}

func (automaticStrategy) onDocumentSaved(ctx context.Context, e *Engine, cfg *config.Config, doc domain.Document) error {
	e.maintMu.Lock()
	defer e.maintMu.Unlock()

	e.mu.RLock()
	index, vectors := e.index, e.vectors
	e.mu.RUnlock()

	tokenizer := analyzer.NewTokenizer(cfg.BM25.Stemming)
	chunks, err := e.indexDocument(index, cfg, tokenizer, doc)
	if err != nil {
		return err
	}
	if err := e.recomputeStats(index); err != nil {
		return err
	}
	e.cache.Invalidate()

	if vectors != nil && !vectors.Stale() {
		if err := e.embedDocument(ctx, vectors, doc, chunks); err != nil {
			e.log.Warn("embedding failed; document queued for retry",
				"doc", doc.ID, "title", doc.Title, "err", err)
			if perr := vectors.MarkPending(doc.ID); perr != nil {
				return perr
			}
		}
	}

	return nil
}
