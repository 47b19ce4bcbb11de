package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Dimensions is the length of vectors produced by the default MockEmbedder.
const Dimensions = 384

// MockEmbedder is a test double for ai.Embedder. Without overrides it returns
// DeterministicVector for every text.
type MockEmbedder struct {
	// EmbedTextFunc replaces EmbedText when set.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc replaces EmbedTexts when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu    sync.Mutex
	calls int
}

// NewMockEmbedder returns a MockEmbedder with default behavior.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

func (m *MockEmbedder) record() (func(context.Context, string) ([]float32, error), func(context.Context, []string) ([][]float32, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.EmbedTextFunc, m.EmbedTextsFunc
}

// EmbedText embeds a single text.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	one, _ := m.record()
	if one != nil {
		return one(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DeterministicVector(text, Dimensions), nil
}

// EmbedTexts embeds texts in order.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	_, many := m.record()
	if many != nil {
		return many(ctx, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = DeterministicVector(text, Dimensions)
	}
	return out, nil
}

// CallCount returns how many times EmbedText or EmbedTexts was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// DeterministicVector derives a unit vector of length dim from an FNV hash
// of text. Components are non-negative, so any two vectors have a positive
// dot product.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	state := h.Sum32()

	out := make([]float32, dim)
	var sum float64
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = float32(state%1000) / 1000
		sum += float64(out[i]) * float64(out[i])
	}
	if sum == 0 {
		return out
	}
	scale := float32(1 / math.Sqrt(sum))
	for i := range out {
		out[i] *= scale
	}
	return out
}
