package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/ai/mock"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex returns records whose text contains any query word, in
// insertion order with decreasing scores.
type fakeIndex struct {
	mu        sync.Mutex
	records   []*core.IndexedRecord
	leak      *core.IndexedRecord
	indexErr  error
	searchErr map[string]error
	queries   []string
}

var _ storage.VectorIndex = (*fakeIndex)(nil)

func newFakeIndex() *fakeIndex {
	return &fakeIndex{searchErr: make(map[string]error)}
}

func (f *fakeIndex) Index(ctx context.Context, records ...*core.IndexedRecord) ([]*core.IndexedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	f.records = append(f.records, records...)
	return records, nil
}

func (f *fakeIndex) Search(ctx context.Context, tenantID, query string, limit int) ([]*core.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	var out []*core.SearchResult
	if f.leak != nil {
		out = append(out, &core.SearchResult{Record: f.leak, Score: 1})
	}
	words := strings.Fields(strings.ToLower(query))
	for _, r := range f.records {
		if r.TenantID != tenantID {
			continue
		}
		for _, w := range words {
			if strings.Contains(strings.ToLower(r.Text), w) {
				out = append(out, &core.SearchResult{Record: r, Score: 0.9 - float32(len(out))*0.1})
				break
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIndex) Close() error { return nil }

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeIndex) {
	t.Helper()
	index := newFakeIndex()
	store, err := NewStore(index, opts...)
	require.NoError(t, err)
	return store, index
}

func seed(t *testing.T, store *Store, tenant string, texts ...string) []*core.IndexedRecord {
	t.Helper()
	records := make([]*core.IndexedRecord, len(texts))
	for i, text := range texts {
		records[i] = &core.IndexedRecord{TenantID: tenant, Text: text}
	}
	indexed, err := store.Index(context.Background(), records...)
	require.NoError(t, err)
	return indexed
}

func ids(results []*core.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Record.ID
	}
	return out
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(nil)
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = NewStore(newFakeIndex(), WithConcurrency(0))
	assert.Error(t, err)

	_, err = NewStore(newFakeIndex(), WithExpansions(-1))
	assert.Error(t, err)
}

func TestStore_IndexAssignsIDs(t *testing.T) {
	store, _ := newTestStore(t)

	records := seed(t, store, "tenant-a", "one", "two")
	for _, r := range records {
		assert.True(t, strings.HasPrefix(r.ID, "tenant-a-"), r.ID)
	}
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestStore_IndexFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid record", func(t *testing.T) {
		store, index := newTestStore(t)
		_, err := store.Index(ctx, &core.IndexedRecord{TenantID: "t1", Text: "ok"}, &core.IndexedRecord{Text: "no tenant"})
		assert.ErrorIs(t, err, core.ErrIndexingFailed)
		assert.Empty(t, index.records)
	})

	t.Run("backend failure", func(t *testing.T) {
		store, index := newTestStore(t)
		index.indexErr = errors.New("disk full")
		_, err := store.Index(ctx, &core.IndexedRecord{TenantID: "t1", Text: "ok"})
		assert.ErrorIs(t, err, core.ErrIndexingFailed)
		assert.ErrorContains(t, err, "disk full")
	})
}

func TestStore_Search(t *testing.T) {
	ctx := context.Background()
	store, index := newTestStore(t)
	seed(t, store, "t1", "sleep issues", "sleep hygiene", "appetite")
	seed(t, store, "t2", "sleep elsewhere")

	results, err := store.Search(ctx, "t1", "sleep", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "t1", r.Record.TenantID)
	}

	results, err = store.Search(ctx, "t1", "sleep", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = store.Search(ctx, "t1", "nothing", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = store.Search(ctx, "t1", "sleep", 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = store.Search(ctx, "", "sleep", 5)
	assert.ErrorIs(t, err, core.ErrSearchFailed)

	index.searchErr["sleep"] = errors.New("timeout")
	_, err = store.Search(ctx, "t1", "sleep", 5)
	assert.ErrorIs(t, err, core.ErrSearchFailed)
}

func TestStore_SearchDropsForeignTenants(t *testing.T) {
	store, index := newTestStore(t)
	seed(t, store, "t1", "sleep")
	index.leak = &core.IndexedRecord{ID: "t2-x", TenantID: "t2", Text: "sleep"}

	results, err := store.Search(context.Background(), "t1", "sleep", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].Record.TenantID)
}

func TestStore_MultiQuerySearch(t *testing.T) {
	ctx := context.Background()
	generator := mock.NewMockGenerator().WithReplies("1. sleep quality\n2) insomnia\n- sleep\n\nappetite changes\nextra query")
	store, index := newTestStore(t, WithGenerator(generator))
	seed(t, store, "t1", "sleep diary", "insomnia since June", "appetite reduced", "unrelated")
	seed(t, store, "t2", "insomnia elsewhere")

	monitor := &recordingMonitor{}
	results, err := store.MultiQuerySearchWithMonitor(ctx, "t1", "sleep", 5, monitor)
	require.NoError(t, err)

	assert.Equal(t, []string{"sleep", "sleep quality", "insomnia", "appetite changes"}, monitor.queries)

	// Ordered by expansion, then by per-query rank, without duplicates.
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Record.Text
	}
	assert.Equal(t, []string{"sleep diary", "insomnia since June", "appetite reduced"}, texts)

	seen := map[string]bool{}
	for _, id := range ids(results) {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Positive(t, monitor.duplicates)
	assert.Len(t, index.queries, 4)
}

func TestStore_MultiQuerySearchSubsetOfUnion(t *testing.T) {
	ctx := context.Background()
	generator := mock.NewMockGenerator().WithReplies("diary\ninsomnia\nappetite")
	store, _ := newTestStore(t, WithGenerator(generator))
	seed(t, store, "t1", "sleep diary", "insomnia", "appetite", "mood")

	merged, err := store.MultiQuerySearch(ctx, "t1", "sleep", 2)
	require.NoError(t, err)

	union := map[string]bool{}
	for _, q := range []string{"sleep", "diary", "insomnia", "appetite"} {
		results, err := store.Search(ctx, "t1", q, 2)
		require.NoError(t, err)
		for _, id := range ids(results) {
			union[id] = true
		}
	}
	for _, id := range ids(merged) {
		assert.True(t, union[id], "result %s not returned by any sub-query", id)
	}
}

func TestStore_MultiQuerySearchExpansionFailure(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.CompleteFunc = func(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
		return nil, errors.New("model offline")
	}
	store, index := newTestStore(t, WithGenerator(generator))
	seed(t, store, "t1", "sleep diary")

	results, err := store.MultiQuerySearch(context.Background(), "t1", "sleep", 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"sleep"}, index.queries)
}

func TestStore_MultiQuerySearchSubQueryFailure(t *testing.T) {
	generator := mock.NewMockGenerator().WithReplies("broken")
	store, index := newTestStore(t, WithGenerator(generator))
	index.searchErr["broken"] = errors.New("timeout")

	_, err := store.MultiQuerySearch(context.Background(), "t1", "sleep", 3)
	assert.ErrorIs(t, err, core.ErrSearchFailed)
}

func TestStore_MultiQuerySearchWithoutGenerator(t *testing.T) {
	store, index := newTestStore(t)
	seed(t, store, "t1", "sleep diary")

	results, err := store.MultiQuerySearch(context.Background(), "t1", "sleep", 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"sleep"}, index.queries)
}

func TestParseExpansions(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		n     int
		want  []string
	}{
		{"numbered", "1. a\n2. b\n3. c", 3, []string{"a", "b", "c"}},
		{"capped", "a\nb\nc\nd", 2, []string{"a", "b"}},
		{"drops original and repeats", "Original\na\nA\n\n", 3, []string{"a"}},
		{"bullets", "- a\n* b", 3, []string{"a", "b"}},
		{"empty", "", 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseExpansions(tt.reply, "original", tt.n))
		})
	}
}

func TestStore_Rerank(t *testing.T) {
	ctx := context.Background()
	scores := map[string]float64{"a": 0.2, "b": 0.9, "c": 0.2, "d": 1.7}
	scorer := ScorerFunc(func(ctx context.Context, query, text string) (float64, error) {
		if text == "fail" {
			return 0, errors.New("scoring failed")
		}
		return scores[text], nil
	})
	store, _ := newTestStore(t, WithScorer(scorer))

	input := []*core.SearchResult{
		{Record: &core.IndexedRecord{ID: "1", Text: "a"}, Score: 0.9},
		{Record: &core.IndexedRecord{ID: "2", Text: "fail"}, Score: 0.8},
		{Record: &core.IndexedRecord{ID: "3", Text: "b"}, Score: 0.7},
		{Record: &core.IndexedRecord{ID: "4", Text: "c"}, Score: 0.6},
		{Record: &core.IndexedRecord{ID: "5", Text: "d"}, Score: 0.5},
	}

	reranked := store.Rerank(ctx, input, "q")
	require.Len(t, reranked, 5)
	assert.Equal(t, []string{"5", "3", "1", "4", "2"}, ids(reranked))
	assert.Equal(t, float32(1), reranked[0].Score, "scores are clamped")
	assert.Equal(t, float32(0), reranked[4].Score, "failed score is zero")
	assert.Equal(t, float32(0.9), input[0].Score, "input is not modified")

	assert.Empty(t, store.Rerank(ctx, nil, "q"))
}

func TestGeneratorScorer(t *testing.T) {
	generator := mock.NewMockGenerator().WithReplies("Relevance: 0.75", "no idea")
	scorer := NewGeneratorScorer(generator)

	score, err := scorer.Score(context.Background(), "q", "text")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, score, 1e-9)

	_, err = scorer.Score(context.Background(), "q", "text")
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		reply string
		want  float64
	}{
		{"0.4", 0.4},
		{"score: 1", 1},
		{"7", 1},
		{"-0.5", 0},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, err := parseScore(tt.reply)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestLexicalScorer(t *testing.T) {
	score, err := LexicalScorer{}.Score(context.Background(), "the sleep diary", "Client kept a sleep log.")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)

	score, _ = LexicalScorer{}.Score(context.Background(), "the", "anything")
	assert.Zero(t, score)
}

func TestStore_TenantIsolationOnBadger(t *testing.T) {
	ctx := context.Background()
	conn, err := NewMemoryConnector(mock.NewMockEmbedder())
	require.NoError(t, err)
	defer conn.Close()

	store, err := conn.Store(ctx)
	require.NoError(t, err)

	for i := range 3 {
		seed(t, store, "alpha", fmt.Sprintf("alpha note %d", i))
		seed(t, store, "beta", fmt.Sprintf("beta note %d", i))
	}

	results, err := store.MultiQuerySearch(ctx, "alpha", "note", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "alpha", r.Record.TenantID)
	}
}

type recordingMonitor struct {
	noopMonitor
	queries    []string
	duplicates int
}

func (m *recordingMonitor) AfterExpansion(queries []string) { m.queries = queries }
func (m *recordingMonitor) Duplicate(_ *core.SearchResult)  { m.duplicates++ }
