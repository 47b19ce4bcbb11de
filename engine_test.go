package scribe

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/ai/mock"
	"github.com/poiesic/scribe/config"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/reindex"
	"github.com/poiesic/scribe/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transcript = `Client reports poor sleep over the past month and difficulty concentrating at work.

Client describes a supportive family and regular exercise on weekends.`

const notesTemplate = `{"title": "Notes", "properties": {"Notes": {"type": "string"}}}`

// engineModel answers drafting and review with fixed JSON and everything
// else with the mock default.
func engineModel(_ context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	switch {
	case strings.Contains(req.System, "Create a comprehensive report"):
		return &ai.Completion{Content: `{"Notes": "Client reports poor sleep."}`}, nil
	case strings.Contains(req.System, "professional editor"):
		return &ai.Completion{Content: `{"score": 92, "suggestion": ""}`}, nil
	case req.JSON:
		return &ai.Completion{Content: "{}"}, nil
	}
	return &ai.Completion{Content: mock.DefaultReply}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "index")
	cfg.WebSearch.Enabled = false
	cfg.Pipeline.ChunkSize = 100
	cfg.Pipeline.ChunkOverlap = 0
	return &cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	generator := mock.NewMockGenerator()
	generator.CompleteFunc = engineModel
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), generator)

	e, err := NewEngine(cfg, WithProvider(provider), WithWebSearcher(mock.NewMockWebSearcher()))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func writeInputs(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "session.txt")
	template := filepath.Join(dir, "notes.json")
	require.NoError(t, os.WriteFile(source, []byte(transcript), 0o644))
	require.NoError(t, os.WriteFile(template, []byte(notesTemplate), 0o644))
	return source, template
}

func TestNewEngine(t *testing.T) {
	t.Run("badger backend", func(t *testing.T) {
		e := newTestEngine(t, testConfig(t))

		assert.NotNil(t, e.backend)
		assert.NotNil(t, e.records)
		assert.NotNil(t, e.connector)
		assert.NotNil(t, e.orchestrator)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Path = filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(cfg.Storage.Path, []byte("test"), 0o644))

		e, err := NewEngine(cfg, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, e)
	})

	t.Run("chroma backend connects lazily", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Backend = "chroma"
		cfg.Storage.ChromaURL = "http://127.0.0.1:1"

		e := newTestEngine(t, cfg)
		assert.Nil(t, e.backend)

		_, err := e.Reindexer(reindex.DefaultConfig(), io.Discard)
		assert.ErrorIs(t, err, ErrReindexUnsupported)
	})
}

func TestEngine_Close(t *testing.T) {
	provider := mock.NewMockProvider()
	e, err := NewEngine(testConfig(t), WithProvider(provider))
	require.NoError(t, err)

	assert.NoError(t, e.Close())
	assert.True(t, e.backend.IsClosed())
	assert.True(t, provider.Closed())
}

func TestEngine_Run(t *testing.T) {
	cfg := testConfig(t)
	source, template := writeInputs(t)
	cfg.Pipeline.TemplatePath = template
	e := newTestEngine(t, cfg)

	state, err := e.Run(context.Background(), workflow.Request{SourceRef: source, TenantID: "tenant1"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusComplete, state.Status)
	assert.Equal(t, template, state.TemplateRef, "configured template is used when the request names none")
	assert.Len(t, state.Segments, 2)
	assert.JSONEq(t, `"Client reports poor sleep."`, string(state.Report["Notes"]))
	for _, stage := range []string{"ingest", "analyze", "research", "draft", "review"} {
		assert.True(t, state.HasRun(stage), stage)
	}

	t.Run("search is tenant scoped", func(t *testing.T) {
		results, err := e.Search(context.Background(), "tenant1", "poor sleep", 3, nil)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.LessOrEqual(t, len(results), 3)
		for _, r := range results {
			assert.Equal(t, "tenant1", r.Record.TenantID)
		}

		results, err = e.Search(context.Background(), "tenant2", "poor sleep", 3, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("reindex re-embeds every segment", func(t *testing.T) {
		r, err := e.Reindexer(reindex.DefaultConfig(), io.Discard)
		require.NoError(t, err)

		n, err := r.Run(context.Background(), "tenant1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestEngine_RegenerateSection(t *testing.T) {
	e := newTestEngine(t, testConfig(t))

	out, err := e.RegenerateSection(context.Background(), "Client slept well.", "make it shorter", "tenant1")
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultReply, out)

	_, err = e.RegenerateSection(context.Background(), "Client slept well.", "make it shorter", "")
	assert.ErrorIs(t, err, core.ErrTenantRequired)
}
