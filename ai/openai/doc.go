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

// Package openai talks to OpenAI-compatible endpoints such as Ollama,
// vLLM or the hosted OpenAI API.
//
// Requests go through langchaingo. The embedder serves the retrieval store
// and the generator serves every pipeline stage, including tool calls made
// while drafting.
//
//	config := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithGeneratorModel("qwen2.5:7b"),
//	)
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	reply, err := provider.Generator().Complete(ctx, ai.CompletionRequest{
//	    System:   "You extract facts from session transcripts.",
//	    Messages: []ai.Message{ai.UserMessage(transcript)},
//	})
//
// Hosts without a path get /v1 appended during config normalization.
package openai
