package mock

import (
	"context"
	"net/url"
	"slices"
	"sync"

	"github.com/poiesic/scribe/ai"
)

// MockWebSearcher is a test double for ai.WebSearcher.
type MockWebSearcher struct {
	// SearchFunc is called by Search if set.
	SearchFunc func(ctx context.Context, query string) ([]ai.Snippet, error)

	mu      sync.Mutex
	queries []string
}

// NewMockWebSearcher creates a mock web searcher with default behavior.
func NewMockWebSearcher() *MockWebSearcher {
	return &MockWebSearcher{}
}

// Search records the query and returns one snippet echoing it.
func (m *MockWebSearcher) Search(ctx context.Context, query string) ([]ai.Snippet, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	fn := m.SearchFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, query)
	}
	return []ai.Snippet{{
		Title:   "Result for " + query,
		Content: "Web result for " + query,
		URL:     "https://example.com/search?q=" + url.QueryEscape(query),
	}}, nil
}

// Queries returns every query received, in call order.
func (m *MockWebSearcher) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queries)
}

// CallCount returns the number of times Search was called.
func (m *MockWebSearcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}
