package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func TestNewSplitter_Validation(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
		wantErr       bool
	}{
		{"defaults", DefaultChunkSize, DefaultChunkOverlap, false},
		{"zero overlap", 100, 0, false},
		{"zero size", 0, 0, true},
		{"negative overlap", 100, -1, true},
		{"overlap equals size", 100, 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.size, tt.overlap)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChunking)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitter_Deterministic(t *testing.T) {
	s, err := NewSplitter(200, 20)
	require.NoError(t, err)

	text := strings.Repeat("The client described difficulty sleeping and low appetite. ", 40)
	docs := []schema.Document{{PageContent: text, Metadata: map[string]any{MetaSource: "session.txt", "page": 1}}}

	first, err := s.Split(docs)
	require.NoError(t, err)
	second, err := s.Split(docs)
	require.NoError(t, err)

	require.Greater(t, len(first), 1)
	assert.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.LessOrEqual(t, len(first[i].Text), 200)
	}
	assert.Equal(t, "session.txt", first[0].Metadata[MetaSource])
	assert.Equal(t, "1", first[0].Metadata["page"])
	assert.Equal(t, "0", first[0].Metadata[MetaSegment])
	assert.Equal(t, "1", first[1].Metadata[MetaSegment])
}

func TestSplitter_SkipsBlankChunks(t *testing.T) {
	s, err := NewSplitter(100, 0)
	require.NoError(t, err)

	segments, err := s.Split([]schema.Document{{PageContent: "   \n\n  "}, {PageContent: "content"}})
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "content", segments[0].Text)
	assert.Equal(t, "0", segments[0].Metadata[MetaSegment])
}
