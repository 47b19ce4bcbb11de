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


package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
)

// StageName identifies the analysis stage in run traces.
const StageName = "analyze"

const systemPrompt = "You are a professional report analyst. Analyze the transcript and identify key points and themes."

const userPrompt = "Please analyze this transcript and identify the main points: %s"

var ErrGeneratorRequired = errors.New("generator is required")

// Stage writes the run synopsis.
type Stage struct {
	generator ai.Generator
	logger    *slog.Logger
}

// Option configures a Stage.
type Option func(*Stage) error

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

// NewStage creates an analysis stage.
func NewStage(generator ai.Generator, opts ...Option) (*Stage, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	s := &Stage{
		generator: generator,
		logger:    slog.Default(),
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

// Run sets the synopsis and advances the state to core.StatusAnalyzed.
// A state without segments fails with core.ErrNoSegments. Generator
// failures are recorded as warnings and leave the synopsis empty.
func (s *Stage) Run(ctx context.Context, state core.PipelineState) (core.PipelineState, error) {
	if len(state.Segments) == 0 {
		return state, core.ErrNoSegments
	}

	var warnings []string
	synopsis, err := s.analyze(ctx, state.Segments)
	if err != nil {
		s.logger.Warn("error analyzing transcript", "run", state.RunID, "err", err)
		warnings = append(warnings, fmt.Sprintf("analysis failed: %v", err))
	} else {
		state, err = state.WithSynopsis(synopsis)
		if err != nil {
			return state, err
		}
		s.logger.Debug("analyzed transcript", "run", state.RunID, "synopsisLength", len(synopsis))
	}

	return state.Record(StageName, warnings...).Advance(core.StatusAnalyzed)
}

func (s *Stage) analyze(ctx context.Context, segments []core.Segment) (string, error) {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	serialized, err := json.Marshal(texts)
	if err != nil {
		return "", err
	}
	return ai.CompleteText(ctx, s.generator, systemPrompt, fmt.Sprintf(userPrompt, serialized))
}
