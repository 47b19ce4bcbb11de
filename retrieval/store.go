package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/storage"
)

const (
	// DefaultExpansions is the number of paraphrases MultiQuerySearch asks for.
	DefaultExpansions = 3

	// DefaultConcurrency bounds parallel sub-queries and rerank calls.
	DefaultConcurrency = 4
)

// Store is a tenant-scoped view over a vector index.
// It is safe for concurrent use.
type Store struct {
	index       storage.VectorIndex
	generator   ai.Generator
	scorer      Scorer
	expansions  int
	concurrency int
	monitor     SearchMonitor
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithGenerator enables query expansion and generator-backed reranking.
func WithGenerator(g ai.Generator) Option {
	return func(s *Store) error {
		s.generator = g
		return nil
	}
}

// WithScorer sets the rerank scorer.
// Default is a GeneratorScorer when a generator is configured and a
// LexicalScorer otherwise.
func WithScorer(scorer Scorer) Option {
	return func(s *Store) error {
		s.scorer = scorer
		return nil
	}
}

// WithExpansions sets how many paraphrases MultiQuerySearch generates.
// Default is 3.
func WithExpansions(n int) Option {
	return func(s *Store) error {
		if n < 0 {
			return fmt.Errorf("expansions must not be negative, got %d", n)
		}
		s.expansions = n
		return nil
	}
}

// WithConcurrency bounds parallel sub-queries and rerank calls.
// Default is 4.
func WithConcurrency(n int) Option {
	return func(s *Store) error {
		if n <= 0 {
			return fmt.Errorf("concurrency must be positive, got %d", n)
		}
		s.concurrency = n
		return nil
	}
}

// WithMonitor sets the default monitor for MultiQuerySearch.
func WithMonitor(m SearchMonitor) Option {
	return func(s *Store) error {
		s.monitor = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStore wraps an open index.
func NewStore(index storage.VectorIndex, opts ...Option) (*Store, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	s := &Store{
		index:       index,
		expansions:  DefaultExpansions,
		concurrency: DefaultConcurrency,
		monitor:     &noopMonitor{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.scorer == nil {
		if s.generator != nil {
			s.scorer = NewGeneratorScorer(s.generator)
		} else {
			s.scorer = LexicalScorer{}
		}
	}
	s.logger = s.logger.With("component", "retrieval")
	return s, nil
}

// Index validates and writes records as one batch. Records without an ID
// get a tenant-prefixed unique ID. Any failure wraps core.ErrIndexingFailed
// and no partial success is reported.
func (s *Store) Index(ctx context.Context, records ...*core.IndexedRecord) ([]*core.IndexedRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	for _, r := range records {
		if r != nil && r.ID == "" {
			r.ID = core.NewRecordID(r.TenantID)
		}
		if err := core.ValidateRecord(r); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrIndexingFailed, err)
		}
	}

	indexed, err := s.index.Index(ctx, records...)
	if err != nil {
		s.logger.Error("error indexing records", "count", len(records), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrIndexingFailed, err)
	}
	if len(indexed) != len(records) {
		return nil, fmt.Errorf("%w: index stored %d of %d records", core.ErrIndexingFailed, len(indexed), len(records))
	}
	return indexed, nil
}

// Search returns at most k records of tenantID ranked by similarity.
// An empty result is valid. Failures wrap core.ErrSearchFailed.
func (s *Store) Search(ctx context.Context, tenantID, query string, k int) ([]*core.SearchResult, error) {
	if err := core.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSearchFailed, err)
	}
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	results, err := s.index.Search(ctx, tenantID, query, k)
	if err != nil {
		s.logger.Error("error querying for similar records", "tenant", tenantID, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrSearchFailed, err)
	}

	filtered := results[:0:0]
	for _, r := range results {
		if r == nil || r.Record == nil || r.Record.TenantID != tenantID {
			s.logger.Warn("dropping search result from foreign tenant", "tenant", tenantID)
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return filtered, nil
}
