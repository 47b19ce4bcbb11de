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


package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the position of a run in the pipeline.
type Status string

const (
	StatusInitial    Status = "initial"
	StatusIngested   Status = "ingested"
	StatusAnalyzed   Status = "analyzed"
	StatusResearched Status = "researched"
	StatusDrafted    Status = "drafted"
	StatusReviewed   Status = "reviewed"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// transitions lists the allowed forward moves. Moving to StatusFailed is
// allowed from any non-terminal status.
var transitions = map[Status][]Status{
	StatusInitial:    {StatusIngested},
	StatusIngested:   {StatusAnalyzed},
	StatusAnalyzed:   {StatusResearched},
	StatusResearched: {StatusDrafted},
	StatusDrafted:    {StatusReviewed},
	StatusReviewed:   {StatusComplete, StatusDrafted},
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// Report maps section names to section content.
type Report map[string]json.RawMessage

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	if r == nil {
		return nil
	}
	out := make(Report, len(r))
	for k, v := range r {
		out[k] = bytes.Clone(v)
	}
	return out
}

// PipelineState is the value threaded through every stage of a run.
//
// Stages never mutate a state in place: every With*/Advance/Record method
// has a value receiver and returns an updated copy, applying the merge rule
// of the field it writes.
type PipelineState struct {
	RunID       string                `json:"run_id"`
	SourceRef   string                `json:"source_ref"`
	TemplateRef string                `json:"template_ref,omitempty"`
	TenantID    string                `json:"tenant_id"`
	Schema      *Schema               `json:"-"`
	Segments    []Segment             `json:"segments,omitempty"`
	Synopsis    string                `json:"synopsis,omitempty"`
	Findings    []Finding             `json:"findings,omitempty"`
	Report      Report                `json:"report,omitempty"`
	ReviewNotes map[string]ReviewNote `json:"review_notes,omitempty"`
	Status      Status                `json:"status"`
	Trace       []TraceEntry          `json:"trace,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Err         string                `json:"error,omitempty"`
}

// NewState creates the initial state for a run. When tenantID is invalid
// the state is still populated, so the caller can record the failure on it.
func NewState(sourceRef, templateRef, tenantID string) (PipelineState, error) {
	now := time.Now().UTC()
	state := PipelineState{
		RunID:       uuid.NewString(),
		SourceRef:   sourceRef,
		TemplateRef: templateRef,
		TenantID:    tenantID,
		Status:      StatusInitial,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	return state, ValidateTenantID(tenantID)
}

func (s PipelineState) clone() PipelineState {
	out := s
	out.Segments = slices.Clone(s.Segments)
	out.Findings = slices.Clone(s.Findings)
	out.Report = s.Report.Clone()
	out.ReviewNotes = maps.Clone(s.ReviewNotes)
	out.Trace = slices.Clone(s.Trace)
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithSchema sets the active schema. It may be set once.
func (s PipelineState) WithSchema(schema *Schema) (PipelineState, error) {
	if s.Schema != nil {
		return s, fmt.Errorf("%w: schema", ErrFieldAlreadySet)
	}
	out := s.clone()
	out.Schema = schema
	return out, nil
}

// ActiveSchema returns the run's schema, falling back to the default.
func (s PipelineState) ActiveSchema() *Schema {
	if s.Schema != nil {
		return s.Schema
	}
	return DefaultSchema()
}

// WithSegments appends the ingested segments. Segments are written once per run.
func (s PipelineState) WithSegments(segments []Segment) (PipelineState, error) {
	if len(s.Segments) > 0 {
		return s, fmt.Errorf("%w: segments", ErrFieldAlreadySet)
	}
	out := s.clone()
	out.Segments = append(out.Segments, segments...)
	return out, nil
}

// WithSynopsis sets the analysis synopsis. It may be written at most once.
func (s PipelineState) WithSynopsis(synopsis string) (PipelineState, error) {
	if s.Synopsis != "" {
		return s, fmt.Errorf("%w: synopsis", ErrFieldAlreadySet)
	}
	out := s.clone()
	out.Synopsis = synopsis
	return out, nil
}

// WithFindings replaces the research findings. They may be written once per run.
func (s PipelineState) WithFindings(findings []Finding) (PipelineState, error) {
	if s.Findings != nil {
		return s, fmt.Errorf("%w: findings", ErrFieldAlreadySet)
	}
	out := s.clone()
	out.Findings = slices.Clone(findings)
	if out.Findings == nil {
		out.Findings = []Finding{}
	}
	return out, nil
}

// WithReport validates r against the active schema and stores a copy.
// An invalid report is never stored.
func (s PipelineState) WithReport(r Report) (PipelineState, error) {
	if err := s.ActiveSchema().Validate(r); err != nil {
		return s, err
	}
	out := s.clone()
	out.Report = r.Clone()
	return out, nil
}

// WithSection patches a single report section. All other sections are left
// untouched.
func (s PipelineState) WithSection(name string, value json.RawMessage) (PipelineState, error) {
	if s.Report == nil {
		return s, fmt.Errorf("%w: no report to patch", ErrMalformedReport)
	}
	field, ok := s.ActiveSchema().Section(name)
	if !ok {
		return s, fmt.Errorf("%w: %q", ErrUnknownSection, name)
	}
	if err := field.ValidateValue(value); err != nil {
		return s, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}
	out := s.clone()
	out.Report[name] = bytes.Clone(value)
	return out, nil
}

// WithReviewNotes replaces the review notes from the latest review pass.
func (s PipelineState) WithReviewNotes(notes map[string]ReviewNote) PipelineState {
	out := s.clone()
	out.ReviewNotes = maps.Clone(notes)
	return out
}

// ConsumeReviewNotes discards the review notes once acted upon.
func (s PipelineState) ConsumeReviewNotes() PipelineState {
	out := s.clone()
	out.ReviewNotes = nil
	return out
}

// SectionsNeedingCorrection returns sections whose latest review note did
// not pass, in schema order.
func (s PipelineState) SectionsNeedingCorrection() []string {
	var names []string
	for _, name := range s.ActiveSchema().SectionNames() {
		note, ok := s.ReviewNotes[name]
		if ok && !note.Passed() {
			names = append(names, name)
		}
	}
	return names
}

// Advance moves the run to a new status.
func (s PipelineState) Advance(to Status) (PipelineState, error) {
	if !CanTransition(s.Status, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	out := s.clone()
	out.Status = to
	return out, nil
}

// Record appends a trace entry for a completed stage.
func (s PipelineState) Record(stage string, warnings ...string) PipelineState {
	out := s.clone()
	out.Trace = append(out.Trace, TraceEntry{
		Stage:    stage,
		At:       out.UpdatedAt,
		Warnings: slices.Clone(warnings),
	})
	return out
}

// Fail marks the run as failed by the given stage.
func (s PipelineState) Fail(stage string, err error) PipelineState {
	out := s.Record(stage, err.Error())
	if !out.Status.Terminal() {
		out.Status = StatusFailed
	}
	out.Err = err.Error()
	return out
}

// HasRun reports whether a stage has already been recorded in the trace.
func (s PipelineState) HasRun(stage string) bool {
	return slices.ContainsFunc(s.Trace, func(e TraceEntry) bool {
		return e.Stage == stage
	})
}

// Warnings returns every non-fatal warning recorded in the trace.
func (s PipelineState) Warnings() []string {
	var out []string
	for _, e := range s.Trace {
		out = append(out, e.Warnings...)
	}
	return out
}
