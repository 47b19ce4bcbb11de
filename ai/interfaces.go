package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces chat completions from a language model.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Complete sends the conversation in req to the model and returns its reply.
	// When req.Tools is non-empty the reply may carry tool calls instead of,
	// or in addition to, text content.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// WebSearcher runs external web searches.
// Implementations must be thread-safe for concurrent use.
type WebSearcher interface {
	// Search returns result snippets for query. An empty result is not an error.
	Search(ctx context.Context, query string) ([]Snippet, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and Generator instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the chat completion service.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
