package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"golang.org/x/sync/errgroup"
)

const expansionPrompt = `You are an AI language model assistant. Generate %d different versions of the given question to retrieve relevant documents from a vector database. By generating multiple perspectives on the question, help overcome the limitations of distance-based similarity search.
Provide the alternative questions separated by newlines. Output only the questions.`

// MultiQuerySearch expands query into paraphrases, searches each one and
// merges the results. The original query always runs first. Results are
// deduplicated by record ID and ordered by expansion, then by per-query rank.
func (s *Store) MultiQuerySearch(ctx context.Context, tenantID, query string, k int) ([]*core.SearchResult, error) {
	return s.MultiQuerySearchWithMonitor(ctx, tenantID, query, k, nil)
}

// MultiQuerySearchWithMonitor is MultiQuerySearch with monitoring.
// A nil monitor falls back to the store's monitor.
func (s *Store) MultiQuerySearchWithMonitor(ctx context.Context, tenantID, query string, k int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = s.monitor
	}
	monitor.Start(tenantID, query)

	if err := core.ValidateTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSearchFailed, err)
	}
	if k <= 0 || strings.TrimSpace(query) == "" {
		monitor.Finish(nil)
		return nil, nil
	}

	queries := s.expand(ctx, query)
	monitor.AfterExpansion(queries)

	perQuery := make([][]*core.SearchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			results, err := s.Search(gctx, tenantID, q, k)
			if err != nil {
				return err
			}
			perQuery[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, q := range queries {
		monitor.AfterQuery(q, perQuery[i])
	}
	merged := mergeResults(perQuery, monitor.Duplicate)
	monitor.Finish(merged)
	return merged, nil
}

// expand returns the original query followed by generated paraphrases.
// Expansion failures are absorbed; the original query is always searched.
func (s *Store) expand(ctx context.Context, query string) []string {
	queries := []string{query}
	if s.generator == nil || s.expansions == 0 {
		return queries
	}
	reply, err := ai.CompleteText(ctx, s.generator, fmt.Sprintf(expansionPrompt, s.expansions), query)
	if err != nil {
		s.logger.Warn("query expansion failed, searching original query only", "err", err)
		return queries
	}
	return append(queries, parseExpansions(reply, query, s.expansions)...)
}

// parseExpansions reads one query per line, dropping list markers, blanks,
// repeats and the original query. At most n queries are returned.
func parseExpansions(reply, original string, n int) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(original)): true}
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		q := strings.TrimSpace(trimListMarker(strings.TrimSpace(line)))
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	return out
}

// trimListMarker strips "1.", "2)", "-" and "*" prefixes.
func trimListMarker(line string) string {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return line[2:]
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return line[i+1:]
	}
	return line
}

// mergeResults concatenates result lists keeping the first occurrence of each
// record ID.
func mergeResults(lists [][]*core.SearchResult, onDuplicate func(*core.SearchResult)) []*core.SearchResult {
	seen := make(map[string]bool)
	var merged []*core.SearchResult
	for _, list := range lists {
		for _, r := range list {
			if seen[r.Record.ID] {
				onDuplicate(r)
				continue
			}
			seen[r.Record.ID] = true
			merged = append(merged, r)
		}
	}
	return merged
}
