package llm

import (
	"context"
	"sync"
)

// Mock is a scripted Client for tests. Responses are returned in the
// order they were queued; once the script is exhausted every call
// returns the final response again. An Err entry surfaces as a
// BackendError instead of a response.
type Mock struct {
	mu       sync.Mutex
	script   []MockReply
	pos      int
	Requests []Request
}

// MockReply is one scripted model round.
type MockReply struct {
	Response Response
	Err      error
}

// NewMock builds a scripted client.
func NewMock(script ...MockReply) *Mock {
	return &Mock{script: script}
}

// Reply appends a successful round to the script.
func (m *Mock) Reply(resp Response) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, MockReply{Response: resp})
	return m
}

// Fail appends a failing round to the script.
func (m *Mock) Fail(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, MockReply{Err: err})
	return m
}

// Name implements Client.
func (m *Mock) Name() string { return "mock" }

// Complete implements Client.
func (m *Mock) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &BackendError{Provider: m.Name(), Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)

	if len(m.script) == 0 {
		return &Response{Content: "ok", StopReason: "end_turn"}, nil
	}
	reply := m.script[m.pos]
	if m.pos < len(m.script)-1 {
		m.pos++
	}
	if reply.Err != nil {
		return nil, &BackendError{Provider: m.Name(), Err: reply.Err}
	}
	resp := reply.Response
	return &resp, nil
}

// Calls reports how many completions were requested.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
