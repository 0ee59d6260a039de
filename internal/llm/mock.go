package llm

import (
	"context"
	"sync"

	"github.com/agentive-ai/fleet/internal/types"
)

// MockProvider is a scripted Provider for tests. It replays configured
// responses in order, cycling when exhausted, and records every request.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	index     int
	calls     []Request
	err       error
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock provider replaying the given responses.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// FailWith makes every subsequent Complete call return err.
func (p *MockProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MockProvider) Name() string {
	return "mock"
}

func (p *MockProvider) Complete(_ context.Context, req Request) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, types.NewError(types.LLM_REQUEST_FAILED, "mock provider has no responses configured")
	}

	content := p.responses[p.index%len(p.responses)]
	p.index++
	return &Response{Content: content, Model: req.Model, StopReason: "stop"}, nil
}

// Calls returns a copy of every recorded request.
func (p *MockProvider) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.calls...)
}
