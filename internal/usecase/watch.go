package usecase

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"recall/config"
	"recall/internal/adapter/source"
)

// debounceDelay absorbs editor write bursts (temp file, truncate,
// write, rename) into one indexing pass per file.
const debounceDelay = 500 * time.Millisecond

// Watcher drives automatic mode: it observes the notes directory and
// feeds saves and deletions to the engine as they happen.
type Watcher struct {
	engine *Engine
	source *source.NotesSource
	cfg    *config.Config
}

func NewWatcher(engine *Engine, src *source.NotesSource, cfg *config.Config) *Watcher {
	return &Watcher{engine: engine, source: src, cfg: cfg}
}

// Run blocks until ctx is cancelled, dispatching filesystem events to
// the engine. Subdirectories created while watching are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	root, err := w.source.Root()
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounceDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					fw.Add(event.Name)
					continue
				}
			}

			switch {
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				if w.source.Matches(rel) {
					if err := w.engine.NotifyDocumentRemoved(source.DocID(rel)); err != nil {
						w.engine.log.Warn("failed to remove document from index", "path", rel, "err", err)
					}
				}
			case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
				if w.source.Matches(rel) {
					pending[rel] = time.Now()
				}
			}

		case now := <-ticker.C:
			for rel, stamp := range pending {
				if now.Sub(stamp) < debounceDelay {
					continue
				}
				delete(pending, rel)

				doc, err := w.source.LoadDocument(rel)
				if err != nil {
					if os.IsNotExist(err) {
						continue
					}
					w.engine.log.Warn("failed to read saved note", "path", rel, "err", err)
					continue
				}
				if err := w.engine.NotifyDocumentSaved(ctx, w.cfg, doc); err != nil {
					w.engine.log.Warn("failed to index saved note", "path", rel, "err", err)
				}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.engine.log.Warn("filesystem watcher error", "err", err)
		}
	}
}
