package openai

import (
	"testing"

	"github.com/poiesic/scribe/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestToMessageContent(t *testing.T) {
	call := ai.ToolCall{ID: "call_1", Name: "web_search", Arguments: `{"query":"cbt"}`}
	req := ai.CompletionRequest{
		System: "be helpful",
		Messages: []ai.Message{
			ai.UserMessage("draft the report"),
			{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{call}},
			ai.ToolResult(call, "results"),
		},
	}

	content := toMessageContent(req)
	require.Len(t, content, 4)

	assert.Equal(t, llms.ChatMessageTypeSystem, content[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, content[1].Role)

	assert.Equal(t, llms.ChatMessageTypeAI, content[2].Role)
	require.Len(t, content[2].Parts, 1)
	tc, ok := content[2].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "web_search", tc.FunctionCall.Name)

	assert.Equal(t, llms.ChatMessageTypeTool, content[3].Role)
	resp, ok := content[3].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_1", resp.ToolCallID)
	assert.Equal(t, "results", resp.Content)
}

func TestToMessageContent_NoSystem(t *testing.T) {
	content := toMessageContent(ai.CompletionRequest{Messages: []ai.Message{ai.UserMessage("hi")}})
	require.Len(t, content, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, content[0].Role)
}

func TestToTools(t *testing.T) {
	params := map[string]any{"type": "object"}
	tools := toTools([]ai.ToolDefinition{{Name: "retrieve_documents", Description: "search", Parameters: params}})

	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "retrieve_documents", tools[0].Function.Name)
	assert.Equal(t, params, tools[0].Function.Parameters)
}
