// Package websearch implements ai.WebSearcher on top of DuckDuckGo.
//
// Results are cached per query so repeated research queries within a run,
// or across runs, do not re-hit the search endpoint.
package websearch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/poiesic/scribe/ai"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

const (
	// DefaultMaxResults is the number of snippets requested per query.
	DefaultMaxResults = 5

	// DefaultCacheTTL is how long results for a query are reused.
	DefaultCacheTTL = 30 * time.Minute

	noResults = "No good DuckDuckGo Search Results was found"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("web search query is empty")

// searchTool is the subset of langchaingo's tools.Tool used here.
type searchTool interface {
	Call(ctx context.Context, input string) (string, error)
}

// Searcher implements ai.WebSearcher.
type Searcher struct {
	tool       searchTool
	cache      *cache.Cache
	maxResults int
	userAgent  string
	httpClient *http.Client
	cacheTTL   time.Duration
	logger     *slog.Logger
}

var _ ai.WebSearcher = (*Searcher)(nil)

// Option configures a Searcher.
type Option func(*Searcher) error

// WithMaxResults sets the number of snippets requested per query.
func WithMaxResults(n int) Option {
	return func(s *Searcher) error {
		if n <= 0 {
			return errors.New("max results must be positive")
		}
		s.maxResults = n
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent to DuckDuckGo.
// An empty value keeps the default.
func WithUserAgent(ua string) Option {
	return func(s *Searcher) error {
		if ua != "" {
			s.userAgent = ua
		}
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for searches.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Searcher) error {
		s.httpClient = c
		return nil
	}
}

// WithCacheTTL sets how long results are cached. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Searcher) error {
		s.cacheTTL = ttl
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		s.logger = logger
		return nil
	}
}

// New creates a DuckDuckGo backed searcher.
func New(opts ...Option) (*Searcher, error) {
	s := &Searcher{
		maxResults: DefaultMaxResults,
		userAgent:  duckduckgo.DefaultUserAgent,
		cacheTTL:   DefaultCacheTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	var toolOpts []duckduckgo.Option
	if s.httpClient != nil {
		toolOpts = append(toolOpts, duckduckgo.WithHTTPClient(s.httpClient))
	}
	tool, err := duckduckgo.New(s.maxResults, s.userAgent, toolOpts...)
	if err != nil {
		return nil, err
	}
	s.tool = tool
	s.initCache()
	s.logger = s.logger.With("component", "websearch")
	return s, nil
}

func (s *Searcher) initCache() {
	if s.cacheTTL > 0 {
		s.cache = cache.New(s.cacheTTL, 2*s.cacheTTL)
	}
}

// Search runs query against DuckDuckGo and returns the parsed snippets.
func (s *Searcher) Search(ctx context.Context, query string) ([]ai.Snippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(query); ok {
			s.logger.Debug("web search cache hit", "query", query)
			return cached.([]ai.Snippet), nil
		}
	}

	raw, err := s.tool.Call(ctx, query)
	if err != nil {
		s.logger.Warn("web search failed", "query", query, "err", err)
		return nil, err
	}

	snippets := ParseResults(raw)
	s.logger.Debug("web search complete", "query", query, "results", len(snippets))
	if s.cache != nil {
		s.cache.Set(query, snippets, cache.DefaultExpiration)
	}
	return snippets, nil
}

// ParseResults converts DuckDuckGo tool output into snippets.
// The tool renders each hit as Title/Description/URL lines separated by a
// blank line.
func ParseResults(raw string) []ai.Snippet {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == noResults {
		return []ai.Snippet{}
	}

	var snippets []ai.Snippet
	for _, block := range strings.Split(raw, "\n\n") {
		var snip ai.Snippet
		for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
			switch {
			case strings.HasPrefix(line, "Title: "):
				snip.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title: "))
			case strings.HasPrefix(line, "Description: "):
				snip.Content = strings.TrimSpace(strings.TrimPrefix(line, "Description: "))
			case strings.HasPrefix(line, "URL: "):
				snip.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL: "))
			}
		}
		if snip.Content == "" && snip.Title == "" {
			continue
		}
		snippets = append(snippets, snip)
	}
	if snippets == nil {
		return []ai.Snippet{}
	}
	return snippets
}
