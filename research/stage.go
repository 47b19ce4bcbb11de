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


package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retrieval"
	"golang.org/x/sync/errgroup"
)

// StageName identifies the research stage in run traces.
const StageName = "research"

const (
	// DefaultMaxQueries bounds the number of generated search queries.
	DefaultMaxQueries = 3
	// DefaultResultsPerQuery is how many index hits each query keeps.
	DefaultResultsPerQuery = 3
	// DefaultConcurrency bounds concurrent sub-queries.
	DefaultConcurrency = 4
)

const queryPrompt = "Generate at most %d relevant search questions based on the analysis, and separate the questions with |. Output only the questions."

var (
	ErrGeneratorRequired = errors.New("generator is required")
	ErrInvalidMaxQueries = errors.New("maxQueries must be greater than 0")
)

// Stage derives queries from the synopsis and collects findings.
type Stage struct {
	generator       ai.Generator
	connector       *retrieval.Connector
	searcher        ai.WebSearcher
	maxQueries      int
	resultsPerQuery int
	concurrency     int
	logger          *slog.Logger
}

// Option configures a Stage.
type Option func(*Stage) error

// WithConnector enables tenant-scoped index search.
func WithConnector(c *retrieval.Connector) Option {
	return func(s *Stage) error {
		s.connector = c
		return nil
	}
}

// WithWebSearcher enables external web search.
func WithWebSearcher(w ai.WebSearcher) Option {
	return func(s *Stage) error {
		s.searcher = w
		return nil
	}
}

// WithMaxQueries sets the query budget.
// Default is 3.
func WithMaxQueries(n int) Option {
	return func(s *Stage) error {
		if n < 1 {
			return ErrInvalidMaxQueries
		}
		s.maxQueries = n
		return nil
	}
}

// WithResultsPerQuery sets how many index hits each query keeps.
// Default is 3.
func WithResultsPerQuery(k int) Option {
	return func(s *Stage) error {
		s.resultsPerQuery = max(k, 1)
		return nil
	}
}

// WithConcurrency bounds concurrent sub-queries.
// Default is 4.
func WithConcurrency(n int) Option {
	return func(s *Stage) error {
		s.concurrency = max(n, 1)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stage) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStage creates a research stage. Without a connector or web searcher
// the stage still runs and records empty findings.
func NewStage(generator ai.Generator, opts ...Option) (*Stage, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	s := &Stage{
		generator:       generator,
		maxQueries:      DefaultMaxQueries,
		resultsPerQuery: DefaultResultsPerQuery,
		concurrency:     DefaultConcurrency,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("stage", StageName)
	return s, nil
}

// Name implements workflow.Stage.
func (s *Stage) Name() string {
	return StageName
}

// Run sets the findings and advances the state to core.StatusResearched.
// Empty findings are a valid outcome.
func (s *Stage) Run(ctx context.Context, state core.PipelineState) (core.PipelineState, error) {
	var warnings []string

	queries, err := s.queries(ctx, state.Synopsis)
	if err != nil {
		s.logger.Warn("error generating search queries", "run", state.RunID, "err", err)
		warnings = append(warnings, fmt.Sprintf("query generation failed: %v", err))
	}

	findings, searchWarnings := s.search(ctx, state.TenantID, queries)
	warnings = append(warnings, searchWarnings...)
	s.logger.Info("research complete", "run", state.RunID, "queries", len(queries), "findings", len(findings))

	next, err := state.WithFindings(findings)
	if err != nil {
		return state, err
	}
	return next.Record(StageName, warnings...).Advance(core.StatusResearched)
}

// queries asks the generator for search queries. An empty synopsis yields
// no queries.
func (s *Stage) queries(ctx context.Context, synopsis string) ([]string, error) {
	if strings.TrimSpace(synopsis) == "" {
		return nil, nil
	}
	reply, err := ai.CompleteText(ctx, s.generator, fmt.Sprintf(queryPrompt, s.maxQueries), synopsis)
	if err != nil {
		return nil, err
	}
	return ParseQueries(reply, s.maxQueries), nil
}

// ParseQueries splits a |-delimited reply into at most n distinct queries.
// Blank entries are dropped.
func ParseQueries(reply string, n int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(reply, "|") {
		q := strings.Trim(strings.TrimSpace(part), `"'`)
		q = strings.TrimSpace(q)
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

// search runs every query concurrently and concatenates results in query
// order. Within a query, index hits precede web snippets.
func (s *Stage) search(ctx context.Context, tenantID string, queries []string) ([]core.Finding, []string) {
	if len(queries) == 0 {
		return nil, nil
	}

	var store *retrieval.Store
	var warnings []string
	if s.connector != nil {
		var err error
		store, err = s.connector.Store(ctx)
		if err != nil {
			s.logger.Warn("retrieval store unavailable for research", "err", err)
			warnings = append(warnings, fmt.Sprintf("index search skipped: %v", err))
		}
	}

	perQuery := make([][]core.Finding, len(queries))
	errs := make([][]error, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			perQuery[i], errs[i] = s.searchOne(gctx, store, tenantID, q)
			return nil
		})
	}
	g.Wait()

	// Findings are concatenated in query order; text already found by an
	// earlier query is not repeated.
	var findings []core.Finding
	seen := make(map[string]bool)
	for i, list := range perQuery {
		for _, err := range errs[i] {
			warnings = append(warnings, fmt.Sprintf("search failed for query %q: %v", queries[i], err))
		}
		for _, f := range list {
			id := core.ContentID(f.Text)
			if seen[id] {
				continue
			}
			seen[id] = true
			findings = append(findings, f)
		}
	}
	return findings, warnings
}

func (s *Stage) searchOne(ctx context.Context, store *retrieval.Store, tenantID, query string) ([]core.Finding, []error) {
	var findings []core.Finding
	var errs []error

	if store != nil {
		results, err := store.Search(ctx, tenantID, query, s.resultsPerQuery)
		if err != nil {
			s.logger.Warn("index search failed", "query", query, "err", err)
			errs = append(errs, err)
		}
		for _, r := range results {
			findings = append(findings, core.Finding{
				Query:  query,
				Text:   r.Record.Text,
				Source: r.Record.ID,
				Origin: core.OriginIndex,
				Score:  r.Score,
			})
		}
	}

	if s.searcher != nil {
		snippets, err := s.searcher.Search(ctx, query)
		if err != nil {
			s.logger.Warn("web search failed", "query", query, "err", err)
			errs = append(errs, err)
		}
		for _, sn := range snippets {
			text := strings.TrimSpace(sn.Content)
			if text == "" {
				text = strings.TrimSpace(sn.Title)
			}
			if text == "" {
				continue
			}
			findings = append(findings, core.Finding{
				Query:  query,
				Text:   text,
				Source: sn.URL,
				Origin: core.OriginWeb,
			})
		}
	}
	return findings, errs
}
