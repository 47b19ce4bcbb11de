package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/scribe/ai"
	"github.com/poiesic/scribe/ai/mock"
	"github.com/poiesic/scribe/core"
	"github.com/poiesic/scribe/retrieval"
	"github.com/poiesic/scribe/retry"
	"github.com/poiesic/scribe/storage"
	"github.com/poiesic/scribe/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeSegmentTranscript splits into exactly three segments at chunk size 100.
const threeSegmentTranscript = "Therapist: What brings you in today? Client: I have not been sleeping well lately.\n\n" +
	"Client: My appetite is down and I skip meals most days. Therapist: Since when?\n\n" +
	"Client: Since the move in March. Therapist: Let us talk about routines next week."

func newTestConnector(t *testing.T) *retrieval.Connector {
	t.Helper()
	conn, err := retrieval.NewMemoryConnector(mock.NewMockEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestStage(t *testing.T, generator ai.Generator, conn *retrieval.Connector, opts ...Option) *Stage {
	t.Helper()
	opts = append([]Option{WithChunking(100, 0), WithPoolSize(2)}, opts...)
	stage, err := NewStage(generator, conn, opts...)
	require.NoError(t, err)
	t.Cleanup(stage.Release)
	return stage
}

func newState(t *testing.T, source, template string) core.PipelineState {
	t.Helper()
	state, err := core.NewState(source, template, "tenant-1")
	require.NoError(t, err)
	return state
}

func TestNewStage_Validation(t *testing.T) {
	conn := newTestConnector(t)

	_, err := NewStage(nil, conn)
	assert.ErrorIs(t, err, ErrGeneratorRequired)

	_, err = NewStage(mock.NewMockGenerator(), nil)
	assert.ErrorIs(t, err, ErrConnectorRequired)

	_, err = NewStage(mock.NewMockGenerator(), conn, WithChunking(10, 10))
	assert.ErrorIs(t, err, ErrInvalidChunking)
}

func TestStage_Run(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnector(t)
	generator := mock.NewMockGenerator()
	stage := newTestStage(t, generator, conn)

	source := writeFile(t, "session.txt", threeSegmentTranscript)
	state, err := stage.Run(ctx, newState(t, source, ""))
	require.NoError(t, err)

	assert.Equal(t, core.StatusIngested, state.Status)
	require.Len(t, state.Segments, 3)
	for _, seg := range state.Segments {
		require.True(t, seg.HasSummary())
		assert.Equal(t, mock.DefaultReply, *seg.Summary)
		assert.Equal(t, source, seg.Metadata[MetaSource])
	}
	assert.Equal(t, core.DefaultSchema().SectionNames(), state.ActiveSchema().SectionNames())
	assert.True(t, state.HasRun(StageName))
	assert.Empty(t, state.Warnings())
	assert.Equal(t, 3, generator.CallCount())

	store, err := conn.Store(ctx)
	require.NoError(t, err)
	results, err := store.Search(ctx, "tenant-1", "sleeping", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	other, err := store.Search(ctx, "tenant-2", "sleeping", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStage_PartialSummaryFailure(t *testing.T) {
	generator := mock.NewMockGenerator()
	generator.CompleteFunc = func(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
		if strings.Contains(req.Messages[0].Content, "appetite") {
			return nil, errors.New("rate limited")
		}
		return &ai.Completion{Content: "summary. keywords: sleep"}, nil
	}
	stage := newTestStage(t, generator, newTestConnector(t))

	source := writeFile(t, "session.txt", threeSegmentTranscript)
	state, err := stage.Run(context.Background(), newState(t, source, ""))
	require.NoError(t, err)

	require.Len(t, state.Segments, 3)
	assert.True(t, state.Segments[0].HasSummary())
	assert.False(t, state.Segments[1].HasSummary())
	assert.True(t, state.Segments[2].HasSummary())

	warnings := state.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "segment 1")
}

func TestStage_SplittingIsDeterministic(t *testing.T) {
	source := writeFile(t, "session.txt", strings.Repeat(threeSegmentTranscript+"\n\n", 4))
	stage := newTestStage(t, mock.NewMockGenerator(), newTestConnector(t))

	first, err := stage.Run(context.Background(), newState(t, source, ""))
	require.NoError(t, err)
	second, err := stage.Run(context.Background(), newState(t, source, ""))
	require.NoError(t, err)

	assert.Equal(t, len(first.Segments), len(second.Segments))
}

func TestStage_UnsupportedDocument(t *testing.T) {
	generator := mock.NewMockGenerator()
	stage := newTestStage(t, generator, newTestConnector(t))

	_, err := stage.Run(context.Background(), newState(t, "recording.mp3", ""))
	assert.ErrorIs(t, err, core.ErrUnsupportedDocument)
	assert.Zero(t, generator.CallCount(), "no work before type check")
}

func TestStage_EmptyDocument(t *testing.T) {
	stage := newTestStage(t, mock.NewMockGenerator(), newTestConnector(t))
	source := writeFile(t, "empty.txt", " \n\n ")

	_, err := stage.Run(context.Background(), newState(t, source, ""))
	assert.ErrorIs(t, err, core.ErrEmptyDocument)
}

func TestStage_StoreUnavailable(t *testing.T) {
	dial := func(ctx context.Context) (storage.VectorIndex, error) {
		return nil, errors.New("connection refused")
	}
	conn, err := retrieval.NewConnector(dial, retrieval.WithRetryPolicy(retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	}))
	require.NoError(t, err)
	stage := newTestStage(t, mock.NewMockGenerator(), conn)

	source := writeFile(t, "session.txt", threeSegmentTranscript)
	_, err = stage.Run(context.Background(), newState(t, source, ""))
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestStage_Template(t *testing.T) {
	source := writeFile(t, "session.txt", threeSegmentTranscript)

	t.Run("valid template", func(t *testing.T) {
		template := writeFile(t, "template.yaml", "properties:\n  Summary:\n    type: string\n  Plan:\n    type: string\nrequired: [Summary]\n")
		stage := newTestStage(t, mock.NewMockGenerator(), newTestConnector(t))

		state, err := stage.Run(context.Background(), newState(t, source, template))
		require.NoError(t, err)
		assert.Equal(t, []string{"Summary", "Plan"}, state.ActiveSchema().SectionNames())
	})

	t.Run("invalid template", func(t *testing.T) {
		template := writeFile(t, "template.json", `{"properties": {"a": {"type": "date"}}}`)
		stage := newTestStage(t, mock.NewMockGenerator(), newTestConnector(t))

		_, err := stage.Run(context.Background(), newState(t, source, template))
		assert.ErrorIs(t, err, core.ErrInvalidTemplate)
	})

	t.Run("missing template", func(t *testing.T) {
		stage := newTestStage(t, mock.NewMockGenerator(), newTestConnector(t))

		_, err := stage.Run(context.Background(), newState(t, source, "/nonexistent/template.json"))
		assert.ErrorIs(t, err, core.ErrInvalidTemplate)
	})
}

func TestStage_CheckpointSkipsUnchangedSource(t *testing.T) {
	ctx := context.Background()
	_, checkpoints, backend, err := badger.NewMemoryStore(mock.NewMockEmbedder())
	require.NoError(t, err)
	defer backend.Close()

	conn := newTestConnector(t)
	stage := newTestStage(t, mock.NewMockGenerator(), conn, WithCheckpoints(checkpoints))
	source := writeFile(t, "session.txt", threeSegmentTranscript)

	_, err = stage.Run(ctx, newState(t, source, ""))
	require.NoError(t, err)
	_, err = stage.Run(ctx, newState(t, source, ""))
	require.NoError(t, err)

	cp, err := checkpoints.LoadCheckpoint(ctx, "tenant-1", source)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(3), cp.Segments)

	store, err := conn.Store(ctx)
	require.NoError(t, err)
	results, err := store.Search(ctx, "tenant-1", "sleeping", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3, "second run must not index again")
}
