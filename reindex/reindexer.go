// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retry"
	"github.com/poiesic/scribe/storage"
)

var (
	ErrRepositoryRequired = errors.New("record repository is required")
	ErrEmbedderRequired   = errors.New("embedder is required")
)

// Config holds configuration for the reindexing operation.
type Config struct {
	// BatchSize is the number of records to embed in each request
	BatchSize int

	// Retry bounds embedding attempts per batch
	Retry retry.Policy
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize: 100,
		Retry: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Backoff:     retry.Exponential,
		},
	}
}

// Reindexer re-embeds every record of a tenant, or of all tenants.
type Reindexer struct {
	repo      storage.RecordRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
}

// NewReindexer creates a reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(repo storage.RecordRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reindexer, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Reindexer{
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, embedder, config.Retry),
	}, nil
}

// Run re-embeds the records of tenantID. An empty tenantID reindexes every
// tenant. Returns the number of records processed.
func (r *Reindexer) Run(ctx context.Context, tenantID string) (int, error) {
	total, err := r.repo.CountRecords(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No records found (0 records)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reindexing of %d records (batch size: %d)\n", total, r.config.BatchSize)
	tracker := NewProgressTracker(r.progress, total)

	processed := 0
	err = r.repo.ScanRecords(ctx, tenantID, r.config.BatchSize, func(records []*core.IndexedRecord) error {
		if err := r.processor.Process(ctx, records); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += len(records)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		return processed, err
	}

	tracker.Finish()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindexing complete. Processed %d records in %v (%.1f records/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/max(elapsed.Seconds(), 1e-9))
	return processed, nil
}
