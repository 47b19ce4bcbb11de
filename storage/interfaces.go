package storage

import (
	"context"

	"github.com/poiesic/scribe/core"
)

// VectorIndex stores tenant-scoped records and answers similarity queries.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// Index embeds and stores records. Records without an ID are assigned
	// one via core.NewRecordID. InsertedAt is set when zero.
	// Returns the stored records.
	Index(ctx context.Context, records ...*core.IndexedRecord) ([]*core.IndexedRecord, error)

	// Search returns up to limit records for tenantID ordered by descending
	// similarity to query.
	Search(ctx context.Context, tenantID, query string, limit int) ([]*core.SearchResult, error)

	// Close releases the index's resources.
	Close() error
}

// RecordRepository provides bulk access to locally stored records.
// It backs maintenance operations such as re-embedding.
type RecordRepository interface {
	// CountRecords returns the number of records stored for tenantID.
	// An empty tenantID counts every tenant.
	CountRecords(ctx context.Context, tenantID string) (int, error)

	// ScanRecords calls fn with batches of at most batchSize records in key
	// order. An empty tenantID scans every tenant.
	ScanRecords(ctx context.Context, tenantID string, batchSize int, fn func([]*core.IndexedRecord) error) error

	// UpdateVectors replaces the stored vectors of existing records.
	// Returns ErrNotFound if any record doesn't exist.
	UpdateVectors(ctx context.Context, records ...*core.IndexedRecord) error

	// DeleteTenant removes every record of a tenant and returns the count.
	DeleteTenant(ctx context.Context, tenantID string) (int, error)
}

// CheckpointRepository tracks which source content has already been indexed.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for the tenant and source.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a tenant and source.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, tenantID, source string) (*core.Checkpoint, error)
}
