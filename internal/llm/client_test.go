package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/switchboard/internal/domain"
)

func TestMockScript(t *testing.T) {
	mock := NewMock().
		Reply(Response{Content: "first", StopReason: "end_turn"}).
		Reply(Response{Content: "second", StopReason: "end_turn"})

	resp, err := mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	resp, err = mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)

	// Exhausted scripts repeat the last reply.
	resp, err = mock.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)
	assert.Equal(t, 3, mock.Calls())
}

func TestMockFailure(t *testing.T) {
	boom := errors.New("boom")
	mock := NewMock().Fail(boom)

	_, err := mock.Complete(context.Background(), Request{})
	require.Error(t, err)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "mock", be.Provider)
	assert.ErrorIs(t, err, boom)
}

func TestMockCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := NewMock()
	_, err := mock.Complete(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, 0, mock.Calls())
}

func TestMockRecordsRequests(t *testing.T) {
	mock := NewMock()
	req := Request{
		System:   "you are a test",
		Messages: []Message{{Role: domain.RoleUser, Content: "hi"}},
	}
	_, err := mock.Complete(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, mock.Requests, 1)
	assert.Equal(t, "you are a test", mock.Requests[0].System)
	require.Len(t, mock.Requests[0].Messages, 1)
	assert.Equal(t, "hi", mock.Requests[0].Messages[0].Content)
}

func TestBuildOpenAITools(t *testing.T) {
	defs := []ToolDefinition{{
		Name:        "echo",
		Description: "echoes its input",
		InputSchema: `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
	}}

	tools := buildOpenAITools(defs)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Function.Name)
	props, ok := tools[0].Function.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "text")
}

func TestBuildOpenAIToolsEmptySchema(t *testing.T) {
	tools := buildOpenAITools([]ToolDefinition{{Name: "ping"}})
	require.Len(t, tools, 1)
	assert.Equal(t, "object", tools[0].Function.Parameters["type"])
}

func TestBuildAnthropicTools(t *testing.T) {
	defs := []ToolDefinition{{
		Name:        "echo",
		Description: "echoes its input",
		InputSchema: `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
	}}

	tools := buildAnthropicTools(defs)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "echo", tools[0].OfTool.Name)
	assert.Equal(t, []string{"text"}, tools[0].OfTool.InputSchema.Required)
}

func TestToolResultText(t *testing.T) {
	ok := domain.ToolResult{CallID: "1", Status: domain.ToolOK, Payload: "done"}
	assert.Equal(t, "done", toolResultText(ok))

	timedOut := domain.ToolResult{CallID: "2", Status: domain.ToolTimeout, Detail: "deadline exceeded"}
	assert.Equal(t, "timeout: deadline exceeded", toolResultText(timedOut))
}

func TestBackendErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &BackendError{Provider: "openai", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "openai")
}
