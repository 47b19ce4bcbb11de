package retrieval

import "github.com/poiesic/scribe/core"

// SearchMonitor provides hooks to observe multi-query search.
// Implement this interface to track intermediate steps and results.
type SearchMonitor interface {
	Start(tenantID, query string)
	AfterExpansion(queries []string)
	AfterQuery(query string, results []*core.SearchResult)
	Duplicate(result *core.SearchResult)
	AfterRerank(results []*core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                           {}
func (n *noopMonitor) AfterExpansion(_ []string)                   {}
func (n *noopMonitor) AfterQuery(_ string, _ []*core.SearchResult) {}
func (n *noopMonitor) Duplicate(_ *core.SearchResult)              {}
func (n *noopMonitor) AfterRerank(_ []*core.SearchResult)          {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)               {}
