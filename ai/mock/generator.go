package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/poiesic/scribe/ai"
)

// DefaultReply is returned by MockGenerator for text requests when no
// reply is queued.
const DefaultReply = "This is a mock completion."

// MockGenerator is a test double for ai.Generator.
// Replies queued with WithReplies are returned in order; once exhausted the
// default behavior applies.
type MockGenerator struct {
	// CompleteFunc is called by Complete if set. It takes precedence over
	// queued replies.
	CompleteFunc func(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error)

	mu      sync.Mutex
	replies []string
	calls   []ai.CompletionRequest
}

// NewMockGenerator creates a mock generator with default behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// WithReplies queues text replies.
func (m *MockGenerator) WithReplies(replies ...string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
	return m
}

// Complete records the request and returns the next reply.
func (m *MockGenerator) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, cloneRequest(req))
	fn := m.CompleteFunc
	var reply *string
	if fn == nil && len(m.replies) > 0 {
		reply = &m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if reply != nil {
		return &ai.Completion{Content: *reply}, nil
	}
	if req.JSON {
		return &ai.Completion{Content: "{}"}, nil
	}
	return &ai.Completion{Content: DefaultReply}, nil
}

// Calls returns a copy of every request received.
func (m *MockGenerator) Calls() []ai.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns the number of times Complete was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls, queued replies and custom functions.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.replies = nil
	m.CompleteFunc = nil
}

func cloneRequest(req ai.CompletionRequest) ai.CompletionRequest {
	req.Messages = slices.Clone(req.Messages)
	req.Tools = slices.Clone(req.Tools)
	return req
}
