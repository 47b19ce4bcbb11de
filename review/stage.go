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


package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retrieval"
)

// StageName identifies the review stage in run traces.
const StageName = "review"

// PassingScore is the lowest score that accepts a section.
const PassingScore = 70

// DefaultRetrievalLimit is how many indexed records ground each section.
const DefaultRetrievalLimit = 3

const systemPrompt = `You are a professional editor. Check one section of a report against the raw transcript for clarity, professionalism and accuracy.
Give the section a score from 0 to 100. If the score is below 70, give a suggestion naming the section and the change needed.`

var ErrGeneratorRequired = errors.New("generator is required")

var verdictSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score":      map[string]any{"type": "number", "minimum": 0, "maximum": 100},
		"suggestion": map[string]any{"type": "string"},
	},
	"required": []string{"score"},
}

type verdict struct {
	Score      float64 `json:"score"`
	Suggestion string  `json:"suggestion"`
}

// Stage reviews drafted reports.
type Stage struct {
	generator      ai.Generator
	connector      *retrieval.Connector
	pool           *ants.Pool
	retrievalLimit int
	logger         *slog.Logger
}

// Option configures a Stage.
type Option func(*Stage) error

// WithConnector grounds scoring on the tenant's indexed records.
func WithConnector(c *retrieval.Connector) Option {
	return func(s *Stage) error {
		s.connector = c
		return nil
	}
}

// WithPoolSize sets the worker pool size for concurrent scoring.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Stage) error {
		if size < 1 {
			size = 1
		}
		if s.pool != nil {
			s.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		s.pool = pool
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

// NewStage creates a review stage.
func NewStage(generator ai.Generator, opts ...Option) (*Stage, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	s := &Stage{
		generator:      generator,
		retrievalLimit: DefaultRetrievalLimit,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Release()
			return nil, err
		}
	}
	if s.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}
	s.logger = s.logger.With("stage", StageName)
	return s, nil
}

// Name implements workflow.Stage.
func (s *Stage) Name() string {
	return StageName
}

// Run scores every report section and advances the state to
// core.StatusReviewed with fresh review notes.
func (s *Stage) Run(ctx context.Context, state core.PipelineState) (core.PipelineState, error) {
	if state.Report == nil {
		return state, fmt.Errorf("%w: no report to review", core.ErrMalformedReport)
	}

	var sections []string
	for _, name := range state.ActiveSchema().SectionNames() {
		if _, ok := state.Report[name]; ok {
			sections = append(sections, name)
		}
	}

	var store *retrieval.Store
	if s.connector != nil {
		var err error
		if store, err = s.connector.Store(ctx); err != nil {
			s.logger.Warn("reviewing without retrieval grounding", "err", err)
		}
	}
	transcript := transcriptText(state.Segments)

	notes := make([]core.ReviewNote, len(sections))
	errs := make([]error, len(sections))
	var wg sync.WaitGroup
	for i, name := range sections {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			notes[i], errs[i] = s.score(ctx, store, state.TenantID, transcript, name, state.Report[name])
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	reviewed := make(map[string]core.ReviewNote, len(sections))
	var warnings []string
	for i, name := range sections {
		if errs[i] != nil {
			s.logger.Warn("error scoring section", "section", name, "err", errs[i])
			warnings = append(warnings, fmt.Sprintf("scoring failed for section %s: %v", name, errs[i]))
			continue
		}
		reviewed[name] = notes[i]
	}
	s.logger.Info("review complete", "run", state.RunID, "sections", len(sections), "scored", len(reviewed))

	return state.WithReviewNotes(reviewed).Record(StageName, warnings...).Advance(core.StatusReviewed)
}

func (s *Stage) score(ctx context.Context, store *retrieval.Store, tenantID, transcript, section string, content json.RawMessage) (core.ReviewNote, error) {
	text := core.SectionText(content)

	var b strings.Builder
	fmt.Fprintf(&b, "Transcript: %s\nSection: %s\nContent: %s\n", transcript, section, text)
	if store != nil {
		results, err := store.Search(ctx, tenantID, text, s.retrievalLimit)
		if err != nil {
			s.logger.Debug("section grounding failed", "section", section, "err", err)
		}
		for _, r := range results {
			fmt.Fprintf(&b, "Reference: %s\n", r.Record.Text)
		}
	}

	var v verdict
	err := ai.CompleteJSON(ctx, s.generator, ai.CompletionRequest{
		System:   systemPrompt,
		Messages: []ai.Message{ai.UserMessage(b.String())},
	}, verdictSchema, &v)
	if err != nil {
		return core.ReviewNote{}, err
	}
	return Judge(section, v.Score, v.Suggestion), nil
}

// Judge turns a raw model score into a review note. Scores are clamped to
// [0, 100] and the pass decision is made on the clamped score before
// rounding. Passing sections carry no suggestion; failing sections always
// carry one naming the section, and their stored score stays below
// PassingScore.
func Judge(section string, score float64, suggestion string) core.ReviewNote {
	if math.IsNaN(score) {
		score = 0
	}
	score = min(max(score, 0), 100)
	rounded := int(math.Round(score))
	if score >= PassingScore {
		return core.ReviewNote{Score: rounded, Verdict: core.VerdictDone}
	}
	rounded = min(rounded, PassingScore-1)

	suggestion = strings.TrimSpace(suggestion)
	switch {
	case suggestion == "":
		suggestion = fmt.Sprintf("Revise the %s section so it is accurate and supported by the transcript.", section)
	case !strings.Contains(strings.ToLower(suggestion), strings.ToLower(section)):
		suggestion = fmt.Sprintf("%s: %s", section, suggestion)
	}
	return core.ReviewNote{Score: rounded, Suggestion: suggestion}
}

func transcriptText(segments []core.Segment) string {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	return strings.Join(texts, "\n")
}

// Release releases the worker pool.
// The stage should not be used after calling Release.
func (s *Stage) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}
