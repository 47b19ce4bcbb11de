// Package chroma implements storage.VectorIndex on a Chroma server through
// the langchaingo vector store. Chroma embeds records with the configured
// ai.Embedder; tenants share one collection and are separated by a
// namespace metadata key.
package chroma

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	chromatypes "github.com/amikos-tech/chroma-go/types"
	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/storage"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	lcchroma "github.com/tmc/langchaingo/vectorstores/chroma"
)

// Metadata keys written alongside every document.
const (
	MetaTenantID   = "tenant_id"
	MetaRecordID   = "record_id"
	MetaInsertedAt = "inserted_at"

	DefaultCollection = "scribe"
)

// Store is a Chroma-backed storage.VectorIndex.
type Store struct {
	vs       vectorstores.VectorStore
	minScore float32
	logger   *slog.Logger
}

var _ storage.VectorIndex = (*Store)(nil)

type config struct {
	collection string
	minScore   float32
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*config)

// WithCollection sets the Chroma collection name.
func WithCollection(name string) Option {
	return func(c *config) {
		c.collection = name
	}
}

// WithMinScore drops search results scoring below min. Must be in [0, 1].
func WithMinScore(min float32) Option {
	return func(c *config) {
		c.minScore = min
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		collection: DefaultCollection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.minScore < 0 || cfg.minScore > 1 {
		return nil, fmt.Errorf("chroma: min score %v out of range [0, 1]", cfg.minScore)
	}
	return cfg, nil
}

// New connects to the Chroma server at url and opens (or creates) the
// collection. It fails when the server does not answer its heartbeat.
func New(url string, embedder ai.Embedder, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chroma: embedder is required")
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	vs, err := lcchroma.New(
		lcchroma.WithChromaURL(url),
		lcchroma.WithNameSpace(cfg.collection),
		lcchroma.WithEmbedder(embedderAdapter{embedder}),
		lcchroma.WithDistanceFunction(chromatypes.COSINE),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to chroma at %s: %w", url, err)
	}
	return newStore(vs, cfg), nil
}

func newStore(vs vectorstores.VectorStore, cfg *config) *Store {
	return &Store{
		vs:       vs,
		minScore: cfg.minScore,
		logger:   cfg.logger.With("component", "chroma"),
	}
}

// Close is a no-op; the Chroma client holds no open resources.
func (s *Store) Close() error {
	return nil
}

// Index writes records to the collection, one request per tenant.
func (s *Store) Index(ctx context.Context, records ...*core.IndexedRecord) ([]*core.IndexedRecord, error) {
	for _, r := range records {
		if err := core.ValidateRecord(r); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	for _, r := range records {
		if r.ID == "" {
			r.ID = core.NewRecordID(r.TenantID)
		}
		if r.InsertedAt.IsZero() {
			r.InsertedAt = now
		}
	}

	for tenantID, group := range groupByTenant(records) {
		docs := make([]schema.Document, len(group))
		for i, r := range group {
			docs[i] = toDocument(r)
		}
		if _, err := s.vs.AddDocuments(ctx, docs, vectorstores.WithNameSpace(tenantID)); err != nil {
			return nil, fmt.Errorf("adding documents for tenant %s: %w", tenantID, err)
		}
		s.logger.Debug("indexed records", "count", len(group), "tenant", tenantID)
	}
	return records, nil
}

// Search returns the tenant's records most similar to query.
func (s *Store) Search(ctx context.Context, tenantID, query string, limit int) ([]*core.SearchResult, error) {
	if err := core.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	docs, err := s.vs.SimilaritySearch(ctx, query, limit,
		vectorstores.WithNameSpace(tenantID),
		vectorstores.WithScoreThreshold(s.minScore),
	)
	if err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0, len(docs))
	for _, doc := range docs {
		record := fromDocument(doc)
		// Namespace filtering happens server side; this guards against foreign documents.
		if record.TenantID != tenantID {
			continue
		}
		results = append(results, &core.SearchResult{Record: record, Score: doc.Score})
	}
	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// groupByTenant splits records by tenant, keeping input order within a group.
func groupByTenant(records []*core.IndexedRecord) map[string][]*core.IndexedRecord {
	groups := make(map[string][]*core.IndexedRecord)
	for _, r := range records {
		groups[r.TenantID] = append(groups[r.TenantID], r)
	}
	return groups
}

func toDocument(r *core.IndexedRecord) schema.Document {
	metadata := make(map[string]any, len(r.Metadata)+3)
	for k, v := range r.Metadata {
		metadata[k] = v
	}
	metadata[MetaTenantID] = r.TenantID
	metadata[MetaRecordID] = r.ID
	metadata[MetaInsertedAt] = r.InsertedAt.Format(time.RFC3339Nano)
	return schema.Document{PageContent: r.Text, Metadata: metadata}
}

func fromDocument(doc schema.Document) *core.IndexedRecord {
	record := &core.IndexedRecord{
		Text:     doc.PageContent,
		Metadata: make(map[string]string),
	}
	for k, v := range doc.Metadata {
		value := fmt.Sprint(v)
		switch k {
		case MetaTenantID:
			record.TenantID = value
		case MetaRecordID:
			record.ID = value
		case MetaInsertedAt:
			record.InsertedAt, _ = time.Parse(time.RFC3339Nano, value)
		case lcchroma.DefaultNameSpaceKey:
		default:
			record.Metadata[k] = value
		}
	}
	return record
}

// embedderAdapter exposes an ai.Embedder as a langchaingo embeddings.Embedder.
type embedderAdapter struct {
	embedder ai.Embedder
}

func (a embedderAdapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return a.embedder.EmbedTexts(ctx, texts)
}

func (a embedderAdapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return a.embedder.EmbedText(ctx, text)
}
