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


package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/drafting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxCorrectionRounds bounds the review and regenerate loop.
const DefaultMaxCorrectionRounds = 2

// CorrectionStep names correction rounds in run traces.
const CorrectionStep = "correct"

// StartStep names the trace entry of a run rejected before any stage ran.
const StartStep = "start"

const tracerName = "github.com/poiesic/scribe/workflow"

var (
	ErrStageRequired           = errors.New("all pipeline stages are required")
	ErrRegeneratorRequired     = errors.New("regenerator is required")
	ErrInvalidCorrectionRounds = errors.New("maxCorrectionRounds cannot be negative")
)

// Stage is one step of the pipeline. Run returns an updated copy of state.
type Stage interface {
	Name() string
	Run(ctx context.Context, state core.PipelineState) (core.PipelineState, error)
}

// Regenerator rewrites a single report section.
type Regenerator interface {
	Regenerate(ctx context.Context, req drafting.RegenerateRequest) (string, error)
}

// Stages lists the pipeline stages in run order.
type Stages struct {
	Ingest   Stage
	Analyze  Stage
	Research Stage
	Draft    Stage
	Review   Stage
}

func (s Stages) ordered() []Stage {
	return []Stage{s.Ingest, s.Analyze, s.Research, s.Draft, s.Review}
}

// Request starts a run.
type Request struct {
	SourceRef   string
	TemplateRef string
	TenantID    string
}

// Orchestrator runs the pipeline.
type Orchestrator struct {
	stages              Stages
	regenerator         Regenerator
	maxCorrectionRounds int
	runTimeout          time.Duration
	tracer              trace.Tracer
	logger              *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithMaxCorrectionRounds bounds correction rounds after review. Zero
// disables corrections.
// Default is 2.
func WithMaxCorrectionRounds(n int) Option {
	return func(o *Orchestrator) error {
		if n < 0 {
			return ErrInvalidCorrectionRounds
		}
		o.maxCorrectionRounds = n
		return nil
	}
}

// WithRunTimeout sets a deadline for every run. Zero means none.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		o.runTimeout = d
		return nil
	}
}

// WithTracer sets the tracer used for stage spans.
// Default is the global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) error {
		if t != nil {
			o.tracer = t
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator over stages.
func NewOrchestrator(stages Stages, regenerator Regenerator, opts ...Option) (*Orchestrator, error) {
	for _, s := range stages.ordered() {
		if s == nil {
			return nil, ErrStageRequired
		}
	}
	if regenerator == nil {
		return nil, ErrRegeneratorRequired
	}
	o := &Orchestrator{
		stages:              stages,
		regenerator:         regenerator,
		maxCorrectionRounds: DefaultMaxCorrectionRounds,
		tracer:              otel.Tracer(tracerName),
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "workflow")
	return o, nil
}

// Run executes the pipeline for one source document. On a fatal error the
// returned state is marked failed and the error is returned unchanged.
func (o *Orchestrator) Run(ctx context.Context, req Request) (core.PipelineState, error) {
	state, err := core.NewState(req.SourceRef, req.TemplateRef, req.TenantID)
	if err != nil {
		o.logger.Warn("rejecting run", "run", state.RunID, "err", err)
		return state.Fail(StartStep, err), err
	}
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "workflow.Run", trace.WithAttributes(
		attribute.String("run.id", state.RunID),
		attribute.String("tenant.id", state.TenantID),
		attribute.String("source", state.SourceRef)))
	defer span.End()

	logger := o.logger.With("run", state.RunID, "tenant", state.TenantID)
	logger.Info("starting run", "source", state.SourceRef, "template", state.TemplateRef)
	start := time.Now()

	for _, stage := range o.stages.ordered() {
		state, err = o.runStage(ctx, stage, state)
		if err != nil {
			return o.fail(span, logger, stage.Name(), state, err)
		}
	}

	state, err = o.correct(ctx, logger, state)
	if err != nil {
		return o.fail(span, logger, o.stages.Review.Name(), state, err)
	}

	state, err = state.Advance(core.StatusComplete)
	if err != nil {
		return o.fail(span, logger, "complete", state, err)
	}
	logger.Info("run complete",
		"duration", time.Since(start),
		"sections", len(state.Report),
		"warnings", len(state.Warnings()))
	return state, nil
}

// correct regenerates sections that failed review and re-reviews them,
// for at most maxCorrectionRounds rounds.
func (o *Orchestrator) correct(ctx context.Context, logger *slog.Logger, state core.PipelineState) (core.PipelineState, error) {
	for round := 1; round <= o.maxCorrectionRounds; round++ {
		sections := state.SectionsNeedingCorrection()
		if len(sections) == 0 {
			return state, nil
		}
		logger.Info("correcting sections", "round", round, "sections", sections)

		next, patched, warnings := o.patch(ctx, state, sections)
		next = next.ConsumeReviewNotes().Record(CorrectionStep, warnings...)
		if patched == 0 {
			logger.Warn("no section could be corrected, finishing run", "round", round)
			return next, nil
		}

		next, err := next.Advance(core.StatusDrafted)
		if err != nil {
			return next, err
		}
		state, err = o.runStage(ctx, o.stages.Review, next)
		if err != nil {
			return state, err
		}
	}
	if remaining := state.SectionsNeedingCorrection(); len(remaining) > 0 {
		logger.Warn("correction rounds exhausted", "sections", remaining)
	}
	return state, nil
}

// patch regenerates each section from its review suggestion. Sections
// whose new content does not validate keep their old content.
func (o *Orchestrator) patch(ctx context.Context, state core.PipelineState, sections []string) (core.PipelineState, int, []string) {
	ctx, span := o.tracer.Start(ctx, "workflow.correct", trace.WithAttributes(
		attribute.StringSlice("sections", sections)))
	defer span.End()

	var warnings []string
	patched := 0
	for _, name := range sections {
		next, err := o.patchSection(ctx, state, name)
		if err != nil {
			o.logger.Warn("error correcting section", "section", name, "err", err)
			warnings = append(warnings, fmt.Sprintf("correction failed for section %s: %v", name, err))
			continue
		}
		state = next
		patched++
	}
	return state, patched, warnings
}

func (o *Orchestrator) patchSection(ctx context.Context, state core.PipelineState, name string) (core.PipelineState, error) {
	field, ok := state.ActiveSchema().Section(name)
	if !ok {
		return state, fmt.Errorf("%w: %q", core.ErrUnknownSection, name)
	}
	content, err := o.regenerator.Regenerate(ctx, drafting.RegenerateRequest{
		TenantID:    state.TenantID,
		Content:     core.SectionText(state.Report[name]),
		Instruction: state.ReviewNotes[name].Suggestion,
		Section:     name,
		Field:       &field,
	})
	if err != nil {
		return state, err
	}
	value, err := field.SectionValue(content)
	if err != nil {
		return state, err
	}
	return state.WithSection(name, value)
}

// runStage runs one stage inside its own span.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, state core.PipelineState) (core.PipelineState, error) {
	if err := ctx.Err(); err != nil {
		return state, context.Cause(ctx)
	}
	ctx, span := o.tracer.Start(ctx, "workflow.stage."+stage.Name(), trace.WithAttributes(
		attribute.String("run.id", state.RunID),
		attribute.String("stage", stage.Name())))
	defer span.End()

	start := time.Now()
	next, err := stage.Run(ctx, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state, err
	}
	o.logger.Debug("stage complete",
		"run", state.RunID,
		"stage", stage.Name(),
		"status", next.Status,
		"duration", time.Since(start))
	return next, nil
}

func (o *Orchestrator) fail(span trace.Span, logger *slog.Logger, stage string, state core.PipelineState, err error) (core.PipelineState, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("run failed", "stage", stage, "err", err)
	return state.Fail(stage, err), err
}

// RegenerateSection rewrites one section's content following instruction,
// grounded on the tenant's index. It never touches a run.
func (o *Orchestrator) RegenerateSection(ctx context.Context, content, instruction, tenantID string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.RegenerateSection", trace.WithAttributes(
		attribute.String("tenant.id", tenantID)))
	defer span.End()

	out, err := o.regenerator.Regenerate(ctx, drafting.RegenerateRequest{
		TenantID:    tenantID,
		Content:     content,
		Instruction: instruction,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return out, nil
}
