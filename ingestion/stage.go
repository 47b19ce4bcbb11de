package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retrieval"
	"github.com/poiesic/scribe/storage"
)

// StageName identifies the ingestion stage in run traces.
const StageName = "ingest"

const summaryPrompt = "Summarize the text below and extract several keywords at the end."

// TemplateSource reads a report template by reference.
type TemplateSource func(ctx context.Context, ref string) ([]byte, error)

// Stage loads, splits, summarizes and indexes a source document.
type Stage struct {
	registry       *Registry
	splitter       *Splitter
	generator      ai.Generator
	connector      *retrieval.Connector
	checkpoints    storage.CheckpointRepository
	templateSource TemplateSource
	pool           *ants.Pool
	chunkSize      int
	chunkOverlap   int
	logger         *slog.Logger
}

// Option configures a Stage.
type Option func(*Stage) error

// WithRegistry replaces the default loader registry.
func WithRegistry(r *Registry) Option {
	return func(s *Stage) error {
		s.registry = r
		return nil
	}
}

// WithChunking sets the splitter chunk size and overlap.
// Defaults are 2000 and 100.
func WithChunking(size, overlap int) Option {
	return func(s *Stage) error {
		s.chunkSize = size
		s.chunkOverlap = overlap
		return nil
	}
}

// WithPoolSize sets the worker pool size for concurrent summarization.
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

// WithCheckpoints skips re-indexing a tenant's source whose content has not
// changed since the last run.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(s *Stage) error {
		s.checkpoints = repo
		return nil
	}
}

// WithTemplateSource sets how template references are read.
// Default reads them from the filesystem.
func WithTemplateSource(src TemplateSource) Option {
	return func(s *Stage) error {
		s.templateSource = src
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

// NewStage creates an ingestion stage.
func NewStage(generator ai.Generator, connector *retrieval.Connector, opts ...Option) (*Stage, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if connector == nil {
		return nil, ErrConnectorRequired
	}

	s := &Stage{
		registry:     DefaultRegistry(),
		generator:    generator,
		connector:    connector,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		templateSource: func(_ context.Context, ref string) ([]byte, error) {
			return os.ReadFile(ref)
		},
		logger: slog.Default(),
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

	splitter, err := NewSplitter(s.chunkSize, s.chunkOverlap)
	if err != nil {
		s.Release()
		return nil, err
	}
	s.splitter = splitter
	s.logger = s.logger.With("stage", StageName)
	return s, nil
}

// Name implements workflow.Stage.
func (s *Stage) Name() string {
	return StageName
}

// Run ingests state.SourceRef and returns the state with segments and the
// active schema set, advanced to core.StatusIngested.
func (s *Stage) Run(ctx context.Context, state core.PipelineState) (core.PipelineState, error) {
	loader, err := s.registry.Resolve(state.SourceRef)
	if err != nil {
		return state, err
	}

	docs, err := loader.Load(ctx, state.SourceRef)
	if err != nil {
		return state, err
	}
	segments, err := s.splitter.Split(docs)
	if err != nil {
		return state, err
	}
	if len(segments) == 0 {
		return state, fmt.Errorf("%w: %s", core.ErrEmptyDocument, state.SourceRef)
	}
	s.logger.Info("split document", "source", state.SourceRef, "segments", len(segments))

	warnings := s.summarize(ctx, segments)

	indexWarnings, err := s.index(ctx, state, segments)
	if err != nil {
		return state, err
	}
	warnings = append(warnings, indexWarnings...)

	schema, err := s.resolveSchema(ctx, state.TemplateRef)
	if err != nil {
		return state, err
	}

	next, err := state.WithSchema(schema)
	if err != nil {
		return state, err
	}
	next, err = next.WithSegments(segments)
	if err != nil {
		return state, err
	}
	return next.Record(StageName, warnings...).Advance(core.StatusIngested)
}

// summarize fills in segment summaries concurrently. A failed summary
// leaves Summary nil and yields a warning.
func (s *Stage) summarize(ctx context.Context, segments []core.Segment) []string {
	errs := make([]error, len(segments))
	var wg sync.WaitGroup

	for i := range segments {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			summary, err := ai.CompleteText(ctx, s.generator, summaryPrompt, segments[i].Text)
			if err != nil {
				s.logger.Warn("error summarizing segment", "segment", i, "err", err)
				errs[i] = err
				return
			}
			segments[i].Summary = &summary
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	var warnings []string
	for i, err := range errs {
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("summary failed for segment %d: %v", i, err))
		}
	}
	return warnings
}

// index writes segments to the tenant's index unless a checkpoint shows the
// same content was already indexed.
func (s *Stage) index(ctx context.Context, state core.PipelineState, segments []core.Segment) ([]string, error) {
	store, err := s.connector.Store(ctx)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	contentID := core.ContentID(strings.Join(texts, "\x00"))

	if s.checkpoints != nil {
		cp, err := s.checkpoints.LoadCheckpoint(ctx, state.TenantID, state.SourceRef)
		if err != nil {
			s.logger.Warn("error loading checkpoint", "err", err)
		} else if cp != nil && cp.ContentID == contentID {
			s.logger.Info("source unchanged since last run, skipping indexing",
				"source", state.SourceRef, "tenant", state.TenantID)
			return nil, nil
		}
	}

	records := make([]*core.IndexedRecord, len(segments))
	for i, seg := range segments {
		metadata := make(map[string]string, len(seg.Metadata)+1)
		for k, v := range seg.Metadata {
			metadata[k] = v
		}
		metadata["run_id"] = state.RunID
		records[i] = &core.IndexedRecord{
			TenantID: state.TenantID,
			Text:     seg.Text,
			Metadata: metadata,
		}
	}
	if _, err := store.Index(ctx, records...); err != nil {
		return nil, err
	}

	if s.checkpoints == nil {
		return nil, nil
	}
	err = s.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		TenantID:  state.TenantID,
		Source:    state.SourceRef,
		ContentID: contentID,
		Segments:  int64(len(segments)),
	})
	if err != nil {
		s.logger.Warn("error saving checkpoint", "err", err)
		return []string{fmt.Sprintf("checkpoint not saved: %v", err)}, nil
	}
	return nil, nil
}

func (s *Stage) resolveSchema(ctx context.Context, ref string) (*core.Schema, error) {
	if ref == "" {
		return core.DefaultSchema(), nil
	}
	data, err := s.templateSource(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", core.ErrInvalidTemplate, ref, err)
	}
	return core.ParseTemplate(data)
}

// Release releases the worker pool.
// The stage should not be used after calling Release.
func (s *Stage) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}
