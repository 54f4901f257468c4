package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kestrelworks/switchboard/internal/domain"
)

// OpenAI adapts the Chat Completions API (and any OpenAI-compatible
// endpoint) to the Client interface.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an adapter. baseURL may be empty for the default
// endpoint, or point at any OpenAI-compatible server.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

// Name implements Client.
func (o *OpenAI) Name() string { return "openai" }

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	messages, err := o.buildMessages(req)
	if err != nil {
		return nil, &BackendError{Provider: o.Name(), Err: err}
	}

	model := req.Model
	if model == "" {
		model = o.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = buildOpenAITools(req.Tools)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &BackendError{Provider: o.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &BackendError{Provider: o.Name(), Err: fmt.Errorf("no choices returned")}
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &BackendError{Provider: o.Name(), Err: fmt.Errorf("parsing tool arguments: %w", err)}
			}
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out, nil
}

func (o *OpenAI) buildMessages(req Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case domain.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case domain.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case domain.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				argsJSON, err := json.Marshal(tc.Args)
				if err != nil {
					return nil, fmt.Errorf("encoding tool arguments: %w", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case RoleTool:
			for _, tr := range msg.ToolResults {
				messages = append(messages, openai.ToolMessage(toolResultText(tr), tr.CallID))
			}
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages, nil
}

func buildOpenAITools(defs []ToolDefinition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		params := openai.FunctionParameters{"type": "object"}
		if def.InputSchema != "" {
			var schema map[string]any
			if err := json.Unmarshal([]byte(def.InputSchema), &schema); err == nil {
				params = openai.FunctionParameters(schema)
			}
		}
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  params,
			},
		})
	}
	return tools
}

// toolResultText renders a tool result for the model: the payload for a
// success, the detail prefixed with the status otherwise.
func toolResultText(tr domain.ToolResult) string {
	if tr.OK() {
		return tr.Payload
	}
	return fmt.Sprintf("%s: %s", tr.Status, tr.Detail)
}
