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


package scribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/ai/openai"
	"github.com/poiesic/scribe/ai/websearch"
	"github.com/poiesic/scribe/analysis"
	"github.com/poiesic/scribe/config"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/drafting"
	"github.com/poiesic/scribe/ingestion"
	"github.com/poiesic/scribe/reindex"
	"github.com/poiesic/scribe/research"
	"github.com/poiesic/scribe/retrieval"
	"github.com/poiesic/scribe/review"
	"github.com/poiesic/scribe/storage"
	"github.com/poiesic/scribe/storage/badger"
	"github.com/poiesic/scribe/storage/chroma"
	"github.com/poiesic/scribe/workflow"
	"go.opentelemetry.io/otel/trace"
)

// ErrReindexUnsupported is returned when the configured backend cannot be
// re-embedded in place.
var ErrReindexUnsupported = errors.New("reindexing requires the badger backend")

// Engine owns the storage, AI services and pipeline built from a Config.
type Engine struct {
	cfg          *config.Config
	provider     ai.AIProvider
	backend      *badger.Backend
	records      *badger.RecordStore
	connector    *retrieval.Connector
	ingest       *ingestion.Stage
	review       *review.Stage
	orchestrator *workflow.Orchestrator
	logger       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	provider    ai.AIProvider
	webSearcher ai.WebSearcher
	tracer      trace.Tracer
	logger      *slog.Logger
}

// WithProvider replaces the OpenAI-compatible provider built from the config.
func WithProvider(p ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = p
	}
}

// WithWebSearcher replaces the DuckDuckGo searcher built from the config.
func WithWebSearcher(w ai.WebSearcher) EngineOption {
	return func(o *engineOptions) {
		o.webSearcher = w
	}
}

// WithTracer sets the tracer used for run and stage spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(o *engineOptions) {
		o.tracer = t
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewEngine opens storage and wires every pipeline stage. The caller must
// Close the engine.
func NewEngine(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	e := &Engine{cfg: cfg, logger: options.logger}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	e.provider = options.provider
	if e.provider == nil {
		provider, err := openai.NewProvider(cfg.AIConfig())
		if err != nil {
			return nil, err
		}
		e.provider = provider
	}

	dial, err := e.openStorage()
	if err != nil {
		return nil, err
	}
	e.connector, err = retrieval.NewConnector(dial,
		retrieval.WithRetryPolicy(cfg.RetryPolicy()),
		retrieval.WithStoreOptions(
			retrieval.WithGenerator(e.provider.Generator()),
			retrieval.WithLogger(e.logger)),
		retrieval.WithConnectorLogger(e.logger))
	if err != nil {
		return nil, err
	}

	searcher := options.webSearcher
	if searcher == nil && cfg.WebSearch.Enabled {
		searcher, err = websearch.New(
			websearch.WithMaxResults(cfg.WebSearch.MaxResults),
			websearch.WithUserAgent(cfg.WebSearch.UserAgent),
			websearch.WithCacheTTL(cfg.CacheTTL()),
			websearch.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
	}

	if err := e.buildPipeline(searcher, options.tracer); err != nil {
		return nil, err
	}
	ok = true
	return e, nil
}

// openStorage opens the badger backend eagerly, since it also holds
// checkpoints, and returns a dialer for the configured vector index.
func (e *Engine) openStorage() (retrieval.Dialer, error) {
	embedder := e.provider.Embedder()
	switch e.cfg.Storage.Backend {
	case "chroma":
		url := e.cfg.Storage.ChromaURL
		return func(ctx context.Context) (storage.VectorIndex, error) {
			return chroma.New(url, embedder,
				chroma.WithCollection(e.cfg.Storage.Collection),
				chroma.WithMinScore(e.cfg.Storage.MinSimilarity),
				chroma.WithLogger(e.logger))
		}, nil
	default:
		backend, err := badger.OpenBackend(e.cfg.Storage.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open index at %s: %w", e.cfg.Storage.Path, err)
		}
		e.backend = backend
		e.records, err = badger.NewRecordStore(backend, embedder,
			badger.WithMinSimilarity(e.cfg.Storage.MinSimilarity),
			badger.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		records := e.records
		return func(ctx context.Context) (storage.VectorIndex, error) {
			if backend.IsClosed() {
				return nil, errors.New("badger backend is closed")
			}
			return records, nil
		}, nil
	}
}

func (e *Engine) buildPipeline(searcher ai.WebSearcher, tracer trace.Tracer) error {
	p := e.cfg.Pipeline
	generator := e.provider.Generator()

	ingestOpts := []ingestion.Option{
		ingestion.WithChunking(p.ChunkSize, p.ChunkOverlap),
		ingestion.WithPoolSize(p.SummaryWorkers),
		ingestion.WithLogger(e.logger),
	}
	if e.backend != nil {
		ingestOpts = append(ingestOpts, ingestion.WithCheckpoints(badger.NewCheckpointRepository(e.backend)))
	}
	var err error
	e.ingest, err = ingestion.NewStage(generator, e.connector, ingestOpts...)
	if err != nil {
		return err
	}

	analyze, err := analysis.NewStage(generator, analysis.WithLogger(e.logger))
	if err != nil {
		return err
	}

	researchOpts := []research.Option{
		research.WithConnector(e.connector),
		research.WithMaxQueries(p.MaxQueries),
		research.WithResultsPerQuery(p.ResultsPerQuery),
		research.WithLogger(e.logger),
	}
	draftOpts := []drafting.Option{
		drafting.WithConnector(e.connector),
		drafting.WithMaxToolRounds(p.MaxToolRounds),
		drafting.WithRetrievalLimit(p.RetrievalLimit),
		drafting.WithLogger(e.logger),
	}
	if searcher != nil {
		researchOpts = append(researchOpts, research.WithWebSearcher(searcher))
		draftOpts = append(draftOpts, drafting.WithWebSearcher(searcher))
	}
	investigate, err := research.NewStage(generator, researchOpts...)
	if err != nil {
		return err
	}
	draft, err := drafting.NewStage(generator, draftOpts...)
	if err != nil {
		return err
	}

	e.review, err = review.NewStage(generator,
		review.WithConnector(e.connector),
		review.WithPoolSize(p.ReviewWorkers),
		review.WithLogger(e.logger))
	if err != nil {
		return err
	}

	orchestratorOpts := []workflow.Option{
		workflow.WithMaxCorrectionRounds(p.MaxCorrectionRounds),
		workflow.WithRunTimeout(e.cfg.RunTimeout()),
		workflow.WithLogger(e.logger),
	}
	if tracer != nil {
		orchestratorOpts = append(orchestratorOpts, workflow.WithTracer(tracer))
	}
	e.orchestrator, err = workflow.NewOrchestrator(workflow.Stages{
		Ingest:   e.ingest,
		Analyze:  analyze,
		Research: investigate,
		Draft:    draft,
		Review:   e.review,
	}, draft.Regenerator(), orchestratorOpts...)
	return err
}

// Run executes the pipeline. An empty TemplateRef falls back to the
// configured template, then to the built-in report schema.
func (e *Engine) Run(ctx context.Context, req workflow.Request) (core.PipelineState, error) {
	if req.TemplateRef == "" {
		req.TemplateRef = e.cfg.Pipeline.TemplatePath
	}
	return e.orchestrator.Run(ctx, req)
}

// RegenerateSection rewrites one section according to an instruction.
func (e *Engine) RegenerateSection(ctx context.Context, content, instruction, tenantID string) (string, error) {
	return e.orchestrator.RegenerateSection(ctx, content, instruction, tenantID)
}

// Search runs a multi-query search over a tenant's indexed segments and
// reranks the result. A nil monitor observes nothing.
func (e *Engine) Search(ctx context.Context, tenantID, query string, k int, monitor retrieval.SearchMonitor) ([]*core.SearchResult, error) {
	store, err := e.connector.Store(ctx)
	if err != nil {
		return nil, err
	}
	results, err := store.MultiQuerySearchWithMonitor(ctx, tenantID, query, k, monitor)
	if err != nil {
		return nil, err
	}
	results = store.Rerank(ctx, results, query)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Reindexer returns a reindexer that re-embeds stored segments with the
// configured embedding model.
func (e *Engine) Reindexer(cfg *reindex.Config, progress io.Writer) (*reindex.Reindexer, error) {
	if e.records == nil {
		return nil, ErrReindexUnsupported
	}
	return reindex.NewReindexer(e.records, e.provider.Embedder(), cfg, progress)
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Close releases worker pools, the store connection, the AI provider and
// the badger backend, in that order.
func (e *Engine) Close() error {
	if e.ingest != nil {
		e.ingest.Release()
	}
	if e.review != nil {
		e.review.Release()
	}
	if e.connector != nil {
		if err := e.connector.Close(); err != nil {
			e.logger.Error("error closing store connection", "err", err)
		}
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			return err
		}
	}
	return nil
}
