package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"golang.org/x/sync/errgroup"
)

// Scorer rates how relevant text is to query, in [0, 1].
type Scorer interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, query, text string) (float64, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, query, text string) (float64, error) {
	return f(ctx, query, text)
}

const scorePrompt = `You grade search results. Rate how relevant the document is to the query on a scale from 0 to 1, where 0 is unrelated and 1 answers the query directly.
Reply with only the number.`

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// GeneratorScorer asks the generator for a relevance score.
type GeneratorScorer struct {
	generator ai.Generator
}

// NewGeneratorScorer creates a generator-backed scorer.
func NewGeneratorScorer(g ai.Generator) *GeneratorScorer {
	return &GeneratorScorer{generator: g}
}

// Score implements Scorer.
func (s *GeneratorScorer) Score(ctx context.Context, query, text string) (float64, error) {
	reply, err := ai.CompleteText(ctx, s.generator, scorePrompt,
		fmt.Sprintf("Query: %s\n\nDocument:\n%s", query, text))
	if err != nil {
		return 0, err
	}
	return parseScore(reply)
}

// parseScore reads the first number in reply and clamps it to [0, 1].
func parseScore(reply string) (float64, error) {
	match := numberPattern.FindString(reply)
	if match == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScore, reply)
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScore, reply)
	}
	return clampScore(score), nil
}

func clampScore(score float64) float64 {
	return min(max(score, 0), 1)
}

// LexicalScorer scores the fraction of query terms present in the text.
// Stop words are ignored.
type LexicalScorer struct{}

// Score implements Scorer.
func (LexicalScorer) Score(_ context.Context, query, text string) (float64, error) {
	return termOverlap(text, query), nil
}

// Rerank rescores results against query and returns them sorted by the new
// score, highest first. Equal scores keep their input order. A result whose
// scoring fails gets a score of 0. The input slice is not modified.
func (s *Store) Rerank(ctx context.Context, results []*core.SearchResult, query string) []*core.SearchResult {
	if len(results) == 0 {
		return nil
	}

	scores := make([]float64, len(results))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, r := range results {
		g.Go(func() error {
			score, err := s.scorer.Score(ctx, query, r.Record.Text)
			if err != nil {
				s.logger.Warn("rerank scoring failed", "record", r.Record.ID, "err", err)
				return nil
			}
			scores[i] = clampScore(score)
			return nil
		})
	}
	g.Wait()

	reranked := make([]*core.SearchResult, len(results))
	for i, r := range results {
		reranked[i] = &core.SearchResult{Record: r.Record, Score: float32(scores[i])}
	}
	slices.SortStableFunc(reranked, func(a, b *core.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	s.monitor.AfterRerank(reranked)
	return reranked
}
