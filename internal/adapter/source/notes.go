// Package source adapts corpora to the DocumentSource port. The notes
// source reads a directory of markdown/text files, standing in for the
// note storage that owns the documents.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"recall/internal/domain"
)

type NotesSource struct {
	root     string
	includes []string
	excludes []string
}

func NewNotesSource(root string, includes, excludes []string) *NotesSource {
	if len(includes) == 0 {
		includes = []string{"**/*.md", "**/*.txt"}
	}
	return &NotesSource{
		root:     root,
		includes: includes,
		excludes: excludes,
	}
}

// ListDocuments walks the notes directory and returns every matching
// file as a Document. IDs derive from the relative path, so they are
// stable across runs.
func (s *NotesSource) ListDocuments() ([]domain.Document, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, err
	}

	var docs []domain.Document
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if s.matchesAny(s.excludes, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.matchesAny(s.includes, rel) || s.matchesAny(s.excludes, rel) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		content := string(data)

		docs = append(docs, domain.Document{
			ID:           DocID(rel),
			Title:        extractTitle(rel, content),
			Content:      content,
			Tags:         extractTags(content),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Root returns the notes directory, resolved to an absolute path.
func (s *NotesSource) Root() (string, error) {
	return filepath.Abs(s.root)
}

// Matches reports whether a path relative to the root belongs to the
// corpus.
func (s *NotesSource) Matches(relPath string) bool {
	return s.matchesAny(s.includes, relPath) && !s.matchesAny(s.excludes, relPath)
}

// LoadDocument reads one note by its path relative to the root.
func (s *NotesSource) LoadDocument(relPath string) (domain.Document, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return domain.Document{}, err
	}
	path := filepath.Join(root, relPath)

	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	content := string(data)

	return domain.Document{
		ID:           DocID(relPath),
		Title:        extractTitle(relPath, content),
		Content:      content,
		Tags:         extractTags(content),
		LastModified: info.ModTime(),
	}, nil
}

func (s *NotesSource) matchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, filepath.ToSlash(path)); err == nil && ok {
			return true
		}
	}
	return false
}

// DocID derives a stable document ID from the note's relative path.
func DocID(relPath string) string {
	hash := sha256.Sum256([]byte(filepath.ToSlash(relPath)))
	return hex.EncodeToString(hash[:8])
}

// extractTitle uses the first markdown heading, falling back to the
// file name without extension.
func extractTitle(relPath, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			break
		}
	}
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// extractTags collects #tag tokens. Heading markers and bare '#' are
// not tags.
func extractTags(content string) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, field := range strings.Fields(content) {
		if len(field) < 2 || field[0] != '#' || field[1] == '#' {
			continue
		}
		tag := strings.ToLower(strings.TrimRight(field[1:], ".,;:!?)"))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
