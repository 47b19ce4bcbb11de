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


package drafting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retrieval"
)

// StageName identifies the drafting stage in run traces.
const StageName = "draft"

const (
	// DefaultMaxToolRounds bounds tool-call rounds before the final answer.
	DefaultMaxToolRounds = 5
	// DefaultRetrievalLimit is how many documents a retrieval call returns.
	DefaultRetrievalLimit = 5
)

const systemPrompt = `You are a professional report writer. Create a comprehensive report using the transcript, the analysis and the research provided.
You may call the available tools to look up more information before writing.
When you are done, reply with the report as a single JSON object.`

const contextPrompt = "Write a professional report based on:\nTranscript: %s\nAnalysis: %s\nResearch: %s"

const finalPrompt = "You have no tool calls left. Write the final report now using only the information you already have."

// Stage drafts the report.
type Stage struct {
	generator      ai.Generator
	connector      *retrieval.Connector
	searcher       ai.WebSearcher
	maxToolRounds  int
	retrievalLimit int
	regenerator    *Regenerator
	logger         *slog.Logger
}

// Option configures a Stage.
type Option func(*Stage) error

// WithConnector enables the retrieve_documents tool and grounds regeneration.
func WithConnector(c *retrieval.Connector) Option {
	return func(s *Stage) error {
		s.connector = c
		return nil
	}
}

// WithWebSearcher enables the web_search tool.
func WithWebSearcher(w ai.WebSearcher) Option {
	return func(s *Stage) error {
		s.searcher = w
		return nil
	}
}

// WithMaxToolRounds bounds the tool loop.
// Default is 5.
func WithMaxToolRounds(n int) Option {
	return func(s *Stage) error {
		if n < 1 {
			return ErrInvalidMaxToolRounds
		}
		s.maxToolRounds = n
		return nil
	}
}

// WithRetrievalLimit sets how many documents a retrieval returns.
// Default is 5.
func WithRetrievalLimit(k int) Option {
	return func(s *Stage) error {
		s.retrievalLimit = max(k, 1)
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

// NewStage creates a drafting stage.
func NewStage(generator ai.Generator, opts ...Option) (*Stage, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	s := &Stage{
		generator:      generator,
		maxToolRounds:  DefaultMaxToolRounds,
		retrievalLimit: DefaultRetrievalLimit,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("stage", StageName)
	s.regenerator = &Regenerator{
		generator: generator,
		connector: s.connector,
		limit:     s.retrievalLimit,
		logger:    s.logger,
	}
	return s, nil
}

// Name implements workflow.Stage.
func (s *Stage) Name() string {
	return StageName
}

// Regenerator returns the section regenerator sharing this stage's
// generator and retrieval configuration.
func (s *Stage) Regenerator() *Regenerator {
	return s.regenerator
}

// Run drafts the report and advances the state to core.StatusDrafted.
func (s *Stage) Run(ctx context.Context, state core.PipelineState) (core.PipelineState, error) {
	if len(state.Segments) == 0 {
		return state, core.ErrNoSegments
	}
	schema := state.ActiveSchema()

	tools := &toolbox{searcher: s.searcher, tenantID: state.TenantID, limit: s.retrievalLimit}
	var warnings []string
	if s.connector != nil {
		store, err := s.connector.Store(ctx)
		if err != nil {
			s.logger.Warn("retrieval tool disabled", "err", err)
			warnings = append(warnings, fmt.Sprintf("retrieve_documents disabled: %v", err))
		} else {
			tools.store = store
		}
	}

	req, err := s.request(state, schema)
	if err != nil {
		return state, err
	}
	content, err := s.loop(ctx, req, tools)
	if err != nil {
		return state, fmt.Errorf("drafting report: %w", err)
	}

	var report core.Report
	if err := ai.DecodeJSON(content, &report); err != nil {
		s.logger.Error("error decoding report", "run", state.RunID, "err", err)
		return state, fmt.Errorf("%w: %w", core.ErrMalformedReport, err)
	}
	report, dropped := schema.Project(report)
	if len(dropped) > 0 {
		s.logger.Warn("dropping sections outside the schema", "run", state.RunID, "sections", dropped)
		warnings = append(warnings, fmt.Sprintf("dropped unknown sections: %s", strings.Join(dropped, ", ")))
	}

	next, err := state.WithReport(report)
	if err != nil {
		s.logger.Error("report does not match schema", "run", state.RunID, "err", err)
		return state, err
	}
	return next.Record(StageName, warnings...).Advance(core.StatusDrafted)
}

func (s *Stage) request(state core.PipelineState, schema *core.Schema) (ai.CompletionRequest, error) {
	instruction, err := ai.JSONInstruction(schema.JSONSchema())
	if err != nil {
		return ai.CompletionRequest{}, err
	}

	texts := make([]string, len(state.Segments))
	for i, seg := range state.Segments {
		texts[i] = seg.Text
	}
	transcript, err := json.Marshal(texts)
	if err != nil {
		return ai.CompletionRequest{}, err
	}
	findings, err := json.Marshal(state.Findings)
	if err != nil {
		return ai.CompletionRequest{}, err
	}

	return ai.CompletionRequest{
		System:   systemPrompt + "\n\n" + instruction,
		Messages: []ai.Message{ai.UserMessage(fmt.Sprintf(contextPrompt, transcript, state.Synopsis, findings))},
		JSON:     true,
	}, nil
}

// loop runs tool rounds until the model answers without tool calls. When
// the round budget is spent, one tool-less request asks for a final answer.
func (s *Stage) loop(ctx context.Context, req ai.CompletionRequest, tools *toolbox) (string, error) {
	req.Tools = tools.definitions()
	if len(req.Tools) == 0 {
		resp, err := s.generator.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	for round := 1; round <= s.maxToolRounds; round++ {
		resp, err := s.generator.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		if !resp.HasToolCalls() {
			return resp.Content, nil
		}

		s.logger.Debug("running tool calls", "round", round, "calls", len(resp.ToolCalls))
		req.Messages = append(req.Messages, ai.Message{
			Role:      ai.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result, err := tools.call(ctx, call)
			if err != nil {
				s.logger.Warn("tool call failed", "tool", call.Name, "err", err)
				result = "error: " + err.Error()
			}
			req.Messages = append(req.Messages, ai.ToolResult(call, result))
		}
	}

	s.logger.Warn("tool round limit reached, requesting final report", "rounds", s.maxToolRounds)
	req.Tools = nil
	req.Messages = append(req.Messages, ai.UserMessage(finalPrompt))
	resp, err := s.generator.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
