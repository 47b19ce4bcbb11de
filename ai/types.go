package ai

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation sent to a Generator.
type Message struct {
	Role    Role
	Content string

	// ToolCalls holds the calls requested by an assistant turn.
	ToolCalls []ToolCall

	// ToolCallID and Name identify the call a tool turn answers.
	ToolCallID string
	Name       string
}

// UserMessage returns a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolResult returns a tool turn answering call.
func ToolResult(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}

// ToolDefinition declares a function the model may call.
// Parameters is a JSON Schema object describing the arguments.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a function invocation requested by the model.
// Arguments holds the raw JSON argument object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// CompletionRequest is the input to Generator.Complete.
type CompletionRequest struct {
	// System is the system prompt. Empty means none.
	System string

	Messages []Message

	// Tools lists the functions the model may call.
	Tools []ToolDefinition

	// JSON asks the model for a single JSON object reply.
	JSON bool

	// Temperature overrides the configured temperature when non-nil.
	Temperature *float64
}

// Completion is a model reply.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model requested any tool calls.
func (c *Completion) HasToolCalls() bool {
	return c != nil && len(c.ToolCalls) > 0
}

// Snippet is a single web search result.
type Snippet struct {
	Title   string
	Content string
	URL     string
}
