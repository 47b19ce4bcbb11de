package reindex

import (
	"context"
	"fmt"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retry"
	"github.com/poiesic/scribe/storage"
)

// BatchProcessor embeds batches of records and writes the vectors back.
type BatchProcessor struct {
	repo     storage.RecordRepository
	embedder ai.Embedder
	policy   retry.Policy
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(repo storage.RecordRepository, embedder ai.Embedder, policy retry.Policy) *BatchProcessor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &BatchProcessor{
		repo:     repo,
		embedder: embedder,
		policy:   policy,
	}
}

// Process generates embeddings for a batch of records and updates them in the store.
// Vectors are normalized after embedding to ensure compatibility with cosine similarity.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Text
	}

	var embeddings [][]float32
	_, err := retry.Do(ctx, bp.policy, func(ctx context.Context, _ int) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(records) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(records), len(embeddings))
	}

	for i := range records {
		records[i].Vector = storage.NormalizeVector(embeddings[i])
	}

	if err := bp.repo.UpdateVectors(ctx, records...); err != nil {
		return fmt.Errorf("failed to update records: %w", err)
	}
	return nil
}
