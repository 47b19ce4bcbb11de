// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator,
// ai.WebSearcher and ai.AIProvider for use in unit tests. The mocks allow
// tests to run without external services and enable controlled,
// deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vector, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Scripted replies, returned in order
//	gen := mock.NewMockGenerator().WithReplies(`{"score": 80}`, "plain text")
//
//	// Custom behavior injection
//	gen.CompleteFunc = func(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
//	    return &ai.Completion{Content: "ok"}, nil
//	}
//
//	// Check call counts
//	count := gen.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockGenerator: Returns "{}" for JSON requests and a fixed sentence otherwise
//   - MockWebSearcher: Returns one snippet echoing the query
//   - MockProvider: Aggregates mock embedder and generator
//
// All mocks are safe for concurrent use.
package mock
