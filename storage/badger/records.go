package badger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/storage"
)

// RecordStore implements storage.VectorIndex and storage.RecordRepository
// on BadgerDB. Records are embedded locally and searched by brute-force
// cosine similarity over the tenant's key range.
type RecordStore struct {
	backend       *Backend
	embedder      ai.Embedder
	minSimilarity float32
	logger        *slog.Logger
}

var (
	_ storage.VectorIndex      = (*RecordStore)(nil)
	_ storage.RecordRepository = (*RecordStore)(nil)
)

// Option configures a RecordStore.
type Option func(*RecordStore)

// WithMinSimilarity drops search results scoring below min.
func WithMinSimilarity(min float32) Option {
	return func(s *RecordStore) {
		s.minSimilarity = min
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *RecordStore) {
		s.logger = logger
	}
}

// NewRecordStore creates a RecordStore on an open backend.
// The backend remains owned by the caller.
func NewRecordStore(backend *Backend, embedder ai.Embedder, opts ...Option) (*RecordStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("badger: backend is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("badger: embedder is required")
	}
	s := &RecordStore{
		backend:       backend,
		embedder:      embedder,
		minSimilarity: -1,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "badger-records")
	return s, nil
}

// Close is a no-op; the backend is closed by its owner.
func (s *RecordStore) Close() error {
	return nil
}

// Index embeds records that have no vector yet and writes all of them in a
// single transaction. Either every record is stored or none is.
func (s *RecordStore) Index(ctx context.Context, records ...*core.IndexedRecord) ([]*core.IndexedRecord, error) {
	if len(records) == 0 {
		return records, nil
	}
	for _, r := range records {
		if err := core.ValidateRecord(r); err != nil {
			return nil, err
		}
	}

	var pending []*core.IndexedRecord
	for _, r := range records {
		if len(r.Vector) == 0 {
			pending = append(pending, r)
		}
	}
	if len(pending) > 0 {
		texts := make([]string, len(pending))
		for i, r := range pending {
			texts[i] = r.Text
		}
		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding records: %w", err)
		}
		if len(vectors) != len(pending) {
			return nil, fmt.Errorf("%w: expected %d, got %d", storage.ErrEmbeddingMismatch, len(pending), len(vectors))
		}
		for i, r := range pending {
			r.Vector = vectors[i]
		}
	}

	now := time.Now().UTC()
	err := s.backend.update(func(tx *badger.Txn) error {
		for _, r := range records {
			if r.ID == "" {
				r.ID = core.NewRecordID(r.TenantID)
			}
			if r.InsertedAt.IsZero() {
				r.InsertedAt = now
			}
			r.Vector = storage.NormalizeVector(r.Vector)
			if err := tx.Set(makeRecordKey(r.TenantID, r.ID), storage.MarshalRecord(r)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("indexed records", "count", len(records), "tenant", records[0].TenantID)
	return records, nil
}

// Search embeds query and returns the tenant's most similar records.
// Ties keep key order, so results are deterministic for a given index.
func (s *RecordStore) Search(ctx context.Context, tenantID, query string, limit int) ([]*core.SearchResult, error) {
	if err := core.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	vector = storage.NormalizeVector(vector)

	var results []*core.SearchResult
	err = s.scan(ctx, makeTenantPrefix(tenantID), func(record *core.IndexedRecord) error {
		if len(record.Vector) == 0 {
			return nil
		}
		similarity := storage.DotProduct(vector, record.Vector)
		if similarity >= s.minSimilarity {
			results = append(results, &core.SearchResult{Record: record, Score: similarity})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CountRecords returns the number of records stored for tenantID, or for
// every tenant when tenantID is empty.
func (s *RecordStore) CountRecords(ctx context.Context, tenantID string) (int, error) {
	count := 0
	err := s.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = s.prefixFor(tenantID)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// ScanRecords calls fn with batches of records in key order.
// Records are read in one transaction and handed to fn afterwards, so fn may
// write to the store.
func (s *RecordStore) ScanRecords(ctx context.Context, tenantID string, batchSize int, fn func([]*core.IndexedRecord) error) error {
	if batchSize <= 0 {
		return storage.ErrInvalidQuery
	}
	var records []*core.IndexedRecord
	err := s.scan(ctx, s.prefixFor(tenantID), func(r *core.IndexedRecord) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return err
	}

	for batch := range slices.Chunk(records, batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// UpdateVectors replaces the vectors of existing records.
func (s *RecordStore) UpdateVectors(ctx context.Context, records ...*core.IndexedRecord) error {
	return s.backend.update(func(tx *badger.Txn) error {
		for _, r := range records {
			key := makeRecordKey(r.TenantID, r.ID)
			existing, err := readRecord(tx, key)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("%w: %s", storage.ErrNotFound, r.ID)
			}
			existing.Vector = storage.NormalizeVector(r.Vector)
			if err := tx.Set(key, storage.MarshalRecord(existing)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteTenant removes every record of a tenant.
func (s *RecordStore) DeleteTenant(ctx context.Context, tenantID string) (int, error) {
	if err := core.ValidateTenantID(tenantID); err != nil {
		return 0, err
	}
	var keys [][]byte
	err := s.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeTenantPrefix(tenantID)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	err = s.backend.update(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("deleted tenant records", "tenant", tenantID, "count", len(keys))
	return len(keys), nil
}

func (s *RecordStore) prefixFor(tenantID string) []byte {
	if tenantID == "" {
		return makeAllRecordsPrefix()
	}
	return makeTenantPrefix(tenantID)
}

// scan decodes every record under prefix.
func (s *RecordStore) scan(ctx context.Context, prefix []byte, fn func(*core.IndexedRecord) error) error {
	return s.backend.view(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.IndexedRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// readRecord reads a record from the transaction.
// Returns nil, nil if the key doesn't exist.
func readRecord(tx *badger.Txn, key []byte) (*core.IndexedRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.IndexedRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalRecord(val)
		return unmarshalErr
	})
	return record, err
}
