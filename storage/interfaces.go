package storage

import (
	"context"

	"github.com/oripridan-dot/support-center/core"
)

// TaskArchive persists the outcome records of finished tasks so they stay
// queryable after the orchestrator evicts its live entry. Retention is the
// backend's business (BadgerDB entry TTL, MongoDB TTL index).
// Implementations must be thread-safe.
type TaskArchive interface {
	// PutTask stores (or overwrites) a finished task record.
	PutTask(ctx context.Context, record *core.TaskRecord) error

	// GetTask retrieves a task record by id.
	// Returns ErrNotFound if the record doesn't exist or its TTL expired.
	GetTask(ctx context.Context, id core.TaskID) (*core.TaskRecord, error)

	// Close closes the archive and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing scraped support
// documents and their embedding vectors. Document IDs are content hashes,
// which is what the ingestion pipeline's deduplication relies on.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// AddDocument stores a document under its content-hash ID.
	// Sets InsertedAt/UpdatedAt timestamps. Writing the same content twice
	// is idempotent.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// HasDocument reports whether a document with the given content hash
	// is already stored.
	HasDocument(ctx context.Context, id core.ID) (bool, error)

	// UpdateDocumentVector stores the embedding vector for a document.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocumentVector(ctx context.Context, id core.ID, vector []float32) error

	// ListDocumentIDs returns the IDs of all stored documents.
	ListDocumentIDs(ctx context.Context) ([]core.ID, error)

	// FindSimilar finds documents similar to the given vector.
	// Returns documents with similarity >= minSimilarity, up to limit
	// results, ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.DocumentMatch, error)

	// Close closes the repository and releases resources.
	Close() error
}
