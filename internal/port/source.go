package port

import "recall/internal/domain"

// DocumentSource enumerates the corpus owned by an external
// collaborator (the note/chat storage). The retrieval core never
// mutates documents.
type DocumentSource interface {
	// ListDocuments returns every document currently in the corpus,
	// including content.
	ListDocuments() ([]domain.Document, error)
}
