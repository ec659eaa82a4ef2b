package usecase

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"recall/config"
	"recall/internal/adapter/analyzer"
	"recall/internal/adapter/store"
	"recall/internal/domain"
)

// embedConcurrency bounds in-flight provider calls during full
// rebuilds and updates.
const embedConcurrency = 4

// ProgressFunc reports maintenance progress as documents complete.
type ProgressFunc func(done, total int)

// RebuildBM25 re-chunks and re-indexes the whole corpus from scratch.
//
// The rebuild happens in a shadow store next to the live one; queries
// keep hitting the old index for the entire build and only at the end
// is the shadow atomically swapped in. A failure partway leaves the
// live index exactly as it was.
func (e *Engine) RebuildBM25(ctx context.Context, cfg *config.Config, progress ProgressFunc) (*domain.MaintenanceResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e.maintMu.Lock()
	defer e.maintMu.Unlock()

	docs, err := e.source.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	shadowPath := e.indexPath + ".rebuild"
	os.Remove(shadowPath)
	shadow, err := store.NewBoltStore(shadowPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open shadow index: %w", err)
	}

	result := &domain.MaintenanceResult{}
	tokenizer := analyzer.NewTokenizer(cfg.BM25.Stemming)
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			shadow.Close()
			os.Remove(shadowPath)
			return nil, err
		}
		chunks, err := e.indexDocument(shadow, cfg, tokenizer, doc)
		if err != nil {
			shadow.Close()
			os.Remove(shadowPath)
			return nil, err
		}
		result.DocsIndexed++
		result.ChunksIndexed += len(chunks)
		if progress != nil {
			progress(i+1, len(docs))
		}
	}

	if err := e.recomputeStats(shadow); err != nil {
		shadow.Close()
		os.Remove(shadowPath)
		return nil, err
	}
	if err := shadow.StampSchema(cfg); err != nil {
		shadow.Close()
		os.Remove(shadowPath)
		return nil, err
	}
	if err := shadow.Close(); err != nil {
		os.Remove(shadowPath)
		return nil, err
	}

	// Swap: queries queue behind the write lock for the rename and
	// reopen, never observing a half-built index.
	e.mu.Lock()
	if err := e.index.Close(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if err := os.Rename(shadowPath, e.indexPath); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to swap index: %w", err)
	}
	reopened, err := store.NewBoltStore(e.indexPath)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to reopen index: %w", err)
	}
	e.index = reopened
	e.mu.Unlock()

	e.cache.Invalidate()
	result.CompletedAt = time.Now()
	return result, nil
}

// RebuildEmbeddings re-embeds every document in the corpus and prunes
// vectors for documents that no longer exist.
//
// Providers fail; the rebuild does not. A document whose embedding
// call fails keeps its previous vectors, is listed in FailedDocs, and
// stays queued so the next update retries it. Only context
// cancellation aborts the run.
func (e *Engine) RebuildEmbeddings(ctx context.Context, cfg *config.Config, progress ProgressFunc) (*domain.MaintenanceResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Embedding.Enabled {
		return nil, &domain.InvalidConfigError{Field: "embedding.enabled", Reason: "embeddings are disabled"}
	}

	e.maintMu.Lock()
	defer e.maintMu.Unlock()

	vectors, err := e.prepareVectorStore(cfg)
	if err != nil {
		return nil, err
	}

	docs, err := e.source.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	result, err := e.embedDocuments(ctx, cfg, vectors, docs, progress)
	if err != nil {
		return nil, err
	}

	if err := e.pruneVectors(vectors, docs); err != nil {
		return nil, err
	}

	e.cache.Invalidate()
	result.CompletedAt = time.Now()
	return result, nil
}

// UpdateEmbeddings brings the embedding store up to date without
// touching documents that have not changed: it re-embeds documents
// whose lastModified is newer than the recorded index state, retries
// documents queued by earlier failures, and prunes vectors for
// documents that no longer exist. Changed documents are also
// re-indexed on the lexical side so both stores move together.
//
// Running it twice in a row is free: the second run finds nothing
// changed and makes zero provider calls. Concurrent callers coalesce
// onto a single run and share its result.
func (e *Engine) UpdateEmbeddings(ctx context.Context, cfg *config.Config, progress ProgressFunc) (*domain.MaintenanceResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Embedding.Enabled {
		return nil, &domain.InvalidConfigError{Field: "embedding.enabled", Reason: "embeddings are disabled"}
	}

	v, err, _ := e.updates.Do("update", func() (interface{}, error) {
		return e.updateEmbeddings(ctx, cfg, progress)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.MaintenanceResult), nil
}

func (e *Engine) updateEmbeddings(ctx context.Context, cfg *config.Config, progress ProgressFunc) (*domain.MaintenanceResult, error) {
	e.maintMu.Lock()
	defer e.maintMu.Unlock()

	e.mu.RLock()
	index, vectors := e.index, e.vectors
	e.mu.RUnlock()

	if vectors == nil {
		return nil, &domain.InvalidConfigError{Field: "embedding.enabled", Reason: "vector store is not open"}
	}
	if vectors.Stale() || cfg.Embedding.Dimension != e.vecDim {
		return nil, fmt.Errorf("embedding dimension changed: %w", domain.ErrIndexCorrupt)
	}

	sourceDocs, err := e.source.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	states, err := vectors.DocStates()
	if err != nil {
		return nil, err
	}
	pending, err := vectors.ListPending()
	if err != nil {
		return nil, err
	}
	retry := make(map[string]bool, len(pending))
	for _, id := range pending {
		retry[id] = true
	}

	result := &domain.MaintenanceResult{}
	var changed []domain.Document
	for _, doc := range sourceDocs {
		state, known := states[doc.ID]
		if known && !retry[doc.ID] && state >= doc.LastModified.Unix() {
			result.DocsSkipped++
			continue
		}
		changed = append(changed, doc)
	}

	tokenizer := analyzer.NewTokenizer(cfg.BM25.Stemming)
	chunksByDoc := make(map[string][]domain.Chunk, len(changed))
	for _, doc := range changed {
		chunks, err := e.indexDocument(index, cfg, tokenizer, doc)
		if err != nil {
			return nil, err
		}
		chunksByDoc[doc.ID] = chunks
		result.ChunksIndexed += len(chunks)
	}

	embedResult, err := e.embedPrepared(ctx, vectors, changed, chunksByDoc, progress)
	if err != nil {
		return nil, err
	}
	result.DocsIndexed = embedResult.DocsIndexed
	result.VectorsWritten = embedResult.VectorsWritten
	result.FailedDocs = embedResult.FailedDocs

	// Prune both stores for documents the source no longer has.
	live := make(map[string]bool, len(sourceDocs))
	for _, doc := range sourceDocs {
		live[doc.ID] = true
	}
	indexed, err := index.ListDocs()
	if err != nil {
		return nil, err
	}
	for _, rec := range indexed {
		if !live[rec.ID] {
			if err := index.RemoveDocument(rec.ID); err != nil {
				return nil, err
			}
			result.DocsPruned++
		}
	}
	if err := e.pruneVectors(vectors, sourceDocs); err != nil {
		return nil, err
	}

	if len(changed) > 0 || result.DocsPruned > 0 {
		if err := e.recomputeStats(index); err != nil {
			return nil, err
		}
		e.cache.Invalidate()
	}

	result.CompletedAt = time.Now()
	return result, nil
}

// prepareVectorStore readies the vector store for a full rebuild,
// reopening it first when the configured dimension changed.
//
// The store is wiped only when its stored dimension no longer matches
// the configuration, since every vector in it is then unusable. A
// same-dimension rebuild keeps the store as-is: embedDocument replaces
// each document's vectors only after its provider call succeeds, so a
// failed document retains the vectors it had before the rebuild.
func (e *Engine) prepareVectorStore(cfg *config.Config) (*store.BoltVectorStore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.vectors == nil || cfg.Embedding.Dimension != e.vecDim {
		if e.vectors != nil {
			if err := e.vectors.Close(); err != nil {
				return nil, err
			}
		}
		if e.vectorPath == "" {
			e.vectorPath = cfg.VectorDBPath(cfg.Corpus.Path)
		}
		vectors, err := store.OpenBoltVectorStore(e.vectorPath, cfg.Embedding.Dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		e.vectors = vectors
		e.vecDim = cfg.Embedding.Dimension
	}

	if e.vectors.Stale() {
		if err := e.vectors.Clear(); err != nil {
			return nil, err
		}
	}
	return e.vectors, nil
}

// embedDocuments chunks and embeds each document with bounded
// concurrency. Provider failures mark the document for retry and are
// reported, not returned.
func (e *Engine) embedDocuments(ctx context.Context, cfg *config.Config, vectors *store.BoltVectorStore, docs []domain.Document, progress ProgressFunc) (*domain.MaintenanceResult, error) {
	tokenizer := analyzer.NewTokenizer(cfg.BM25.Stemming)
	chk, err := newChunker(cfg, tokenizer)
	if err != nil {
		return nil, err
	}

	chunksByDoc := make(map[string][]domain.Chunk, len(docs))
	for _, doc := range docs {
		chunks, err := chk.Chunk(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk document %s: %w", doc.ID, err)
		}
		chunksByDoc[doc.ID] = chunks
	}
	return e.embedPrepared(ctx, vectors, docs, chunksByDoc, progress)
}

func (e *Engine) embedPrepared(ctx context.Context, vectors *store.BoltVectorStore, docs []domain.Document, chunksByDoc map[string][]domain.Chunk, progress ProgressFunc) (*domain.MaintenanceResult, error) {
	var (
		mu     sync.Mutex
		result domain.MaintenanceResult
		done   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			err := e.embedDocument(gctx, vectors, doc, chunksByDoc[doc.ID])

			mu.Lock()
			defer mu.Unlock()
			done++
			if progress != nil {
				progress(done, len(docs))
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.log.Warn("embedding failed; document queued for retry",
					"doc", doc.ID, "title", doc.Title, "err", err)
				if perr := vectors.MarkPending(doc.ID); perr != nil {
					return perr
				}
				result.FailedDocs = append(result.FailedDocs, doc.ID)
				return nil
			}
			result.DocsIndexed++
			result.VectorsWritten += len(chunksByDoc[doc.ID])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(result.FailedDocs)
	return &result, nil
}

// pruneVectors removes vectors and index state for documents the
// source no longer lists.
func (e *Engine) pruneVectors(vectors *store.BoltVectorStore, docs []domain.Document) error {
	live := make(map[string]bool, len(docs))
	for _, doc := range docs {
		live[doc.ID] = true
	}
	states, err := vectors.DocStates()
	if err != nil {
		return err
	}
	for docID := range states {
		if live[docID] {
			continue
		}
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
	return nil
}

// Status is a snapshot of the corpus indexes.
type Status struct {
	Stats         domain.Stats
	SchemaVersion int
	ConfigHash    string
	NeedsRebuild  bool
	RebuildReason string
	VectorCount   int
	VectorsStale  bool
	PendingDocs   []string
}

// Status reports index statistics, schema freshness, and the embedding
// retry queue.
func (e *Engine) Status(cfg *config.Config) (*Status, error) {
	e.mu.RLock()
	index, vectors := e.index, e.vectors
	e.mu.RUnlock()

	stats, err := index.GetStats()
	if err != nil {
		return nil, err
	}
	st := &Status{Stats: stats}

	if info, err := index.GetSchemaInfo(); err == nil && info != nil {
		st.SchemaVersion = info.Version
		st.ConfigHash = info.ConfigHash
	}
	if rebuild, reason, err := index.CheckRebuild(cfg); err == nil {
		st.NeedsRebuild = rebuild
		st.RebuildReason = reason
	}

	if vectors != nil {
		st.VectorsStale = vectors.Stale()
		if !st.VectorsStale {
			if count, err := vectors.Count(); err == nil {
				st.VectorCount = count
			}
			if pending, err := vectors.ListPending(); err == nil {
				st.PendingDocs = pending
			}
		}
	}
	return st, nil
}
