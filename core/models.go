package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for content-addressed entities such as documents.
// It is generated by hashing the entity's contents, so identical content
// always maps to the same ID.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// TaskID is the opaque identifier assigned to a submitted task.
type TaskID string

// Category is a fixed workload class. Each category owns its own worker pool
// and queue, so a backlog in one category never starves another.
type Category int

const (
	// CategoryInteractiveQuery is latency-sensitive query answering.
	CategoryInteractiveQuery Category = iota + 1
	// CategoryScraping is document fetching and parsing.
	CategoryScraping
	// CategoryEmbedding is embedding computation for stored documents.
	CategoryEmbedding
	// CategoryBatchBulk is bulk/batch background work.
	CategoryBatchBulk
	// CategoryMaintenance is periodic housekeeping work.
	CategoryMaintenance
)

// Categories returns every defined category, in declaration order.
func Categories() []Category {
	return []Category{
		CategoryInteractiveQuery,
		CategoryScraping,
		CategoryEmbedding,
		CategoryBatchBulk,
		CategoryMaintenance,
	}
}

func (c Category) String() string {
	switch c {
	case CategoryInteractiveQuery:
		return "interactive-query"
	case CategoryScraping:
		return "scraping"
	case CategoryEmbedding:
		return "embedding"
	case CategoryBatchBulk:
		return "batch-bulk"
	case CategoryMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Priority orders tasks for dequeue within a single category.
// Lower values are more urgent. Priorities are never compared across
// categories.
type Priority int

const (
	PriorityCritical Priority = iota + 1
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBulk
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// TaskStatus is the lifecycle state of a submitted task.
//
// Transitions are monotonic (Queued → Running → terminal) with one allowed
// cycle: Retrying → Queued when a failed attempt is re-enqueued.
type TaskStatus int

const (
	StatusQueued TaskStatus = iota + 1
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusRetrying
)

func (s TaskStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is a final one.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Document represents one scraped support document.
// The Id is derived from the document contents, which is what makes
// content-hash deduplication work: refetching an unchanged page produces
// the same Id.
type Document struct {
	Id         ID
	URL        string
	Contents   string
	FetchedAt  time.Time // When the document was fetched from its source
	InsertedAt time.Time // When the document was inserted into the database
	UpdatedAt  time.Time // When the document was last updated
	Vector     []float32 // Embedding vector for semantic search (populated by embedding tasks)
}

// DocumentMatch represents a document match from vector similarity search.
type DocumentMatch struct {
	Document *Document
	Score    float32
}

// TaskRecord is the archival projection of a finished task. It carries the
// outcome metadata that remains queryable after the live task entry has been
// evicted from memory; job results themselves are not archived.
type TaskRecord struct {
	Id          TaskID
	Category    Category
	Priority    Priority
	Status      TaskStatus
	Attempts    int
	MaxRetries  int
	LastError   string
	SubmittedAt time.Time
	FinishedAt  time.Time
	Duration    time.Duration // Wall time of the final attempt
}
