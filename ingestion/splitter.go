package ingestion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/scribe/core"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 100
)

// MetaSegment is the metadata key carrying a segment's position.
const MetaSegment = "segment"

// Splitter cuts documents into bounded segments with a recursive character
// splitter. The same input always yields the same segments.
type Splitter struct {
	splitter textsplitter.TextSplitter
}

// NewSplitter creates a splitter. overlap must be smaller than chunkSize.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrInvalidChunking, chunkSize, overlap)
	}
	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

// Split returns the non-blank segments of docs in order.
func (s *Splitter) Split(docs []schema.Document) ([]core.Segment, error) {
	chunks, err := textsplitter.SplitDocuments(s.splitter, docs)
	if err != nil {
		return nil, err
	}

	segments := make([]core.Segment, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.PageContent) == "" {
			continue
		}
		metadata := make(map[string]string, len(chunk.Metadata)+1)
		for k, v := range chunk.Metadata {
			metadata[k] = fmt.Sprint(v)
		}
		metadata[MetaSegment] = strconv.Itoa(len(segments))
		segments = append(segments, core.Segment{Text: chunk.PageContent, Metadata: metadata})
	}
	return segments, nil
}
