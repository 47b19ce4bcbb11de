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

// Package ai provides abstractions for the external model services used by Scribe.
//
// This package defines interfaces for embeddings, chat completion and web
// search. Pipeline stages depend on these abstractions rather than on
// concrete clients.
//
// # Design Principles
//
// The package is designed around four key interfaces:
//   - Embedder: Generates vector embeddings from text
//   - Generator: Produces chat completions, optionally with tool calls
//   - WebSearcher: Runs external web searches
//   - AIProvider: Aggregates Embedder and Generator for convenient initialization
//
// CompleteText and CompleteJSON wrap a Generator for the common single-turn
// cases. CompleteJSON strips code fences, repairs common quoting mistakes and
// re-asks the model when its reply still does not parse.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/websearch: DuckDuckGo search with a result cache
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// INTERFACE types to enforce abstraction and prevent accidental coupling to
// concrete implementations.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//
// Test utility constructors (mock.NewMockEmbedder, mock.NewMockGenerator)
// return CONCRETE types to enable test assertions and behavior injection via
// the mock's public methods (CallCount, Calls, WithReplies, Reset, etc.).
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
//	synopsis, err := ai.CompleteText(ctx, provider.Generator(), systemPrompt, transcript)
package ai
