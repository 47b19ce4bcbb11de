package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/scribe/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client      llms.Model
	temperature float64
	logger      *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GeneratorHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.GeneratorModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:      client,
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new chat completion generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Complete sends the conversation to the model.
func (g *Generator) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	content := toMessageContent(req)

	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(req.Tools)))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	g.logger.Debug("requesting completion",
		"messages", len(content),
		"tools", len(req.Tools),
		"json", req.JSON)

	response, err := g.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return nil, err
	}
	if len(response.Choices) < 1 {
		return nil, fmt.Errorf("%w: no choices", ai.ErrNoCompletion)
	}

	choice := response.Choices[0]
	out := &ai.Completion{Content: choice.Content}
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ai.ToolCall{
			ID:        call.ID,
			Name:      call.FunctionCall.Name,
			Arguments: call.FunctionCall.Arguments,
		})
	}
	return out, nil
}

// toMessageContent converts a request into langchaingo chat messages.
func toMessageContent(req ai.CompletionRequest) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case ai.RoleSystem:
			content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case ai.RoleAssistant:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				msg.Parts = append(msg.Parts, llms.TextPart(m.Content))
			}
			for _, call := range m.ToolCalls {
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			content = append(content, msg)
		case ai.RoleTool:
			content = append(content, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		default:
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}
	return content
}

func toTools(defs []ai.ToolDefinition) []llms.Tool {
	tools := make([]llms.Tool, len(defs))
	for i, d := range defs {
		tools[i] = llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		}
	}
	return tools
}
