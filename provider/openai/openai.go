// Package openai is a provider.Provider implementation against OpenAI's Chat
// Completions API, grounded on the teacher's llms/openai.go request/response
// shapes and native function-calling support, generalized the same way
// provider/anthropic generalizes llms/anthropic.go: agent.Message's tagged
// MessageContent union in, OpenAIMessage/tool_calls out.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/internal/httpclient"
	"github.com/goosecore/agentcore/provider"
)

const defaultHost = "https://api.openai.com/v1"

// Config configures one Provider instance.
type Config struct {
	APIKey      string
	Model       string
	Host        string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Provider implements provider.Provider against OpenAI's Chat Completions API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New builds a Provider. APIKey and Model are required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 600 * time.Second
	}
	return &Provider{cfg: cfg, client: httpclient.New(timeout)}, nil
}

func (p *Provider) Metadata() provider.Metadata {
	return provider.Metadata{
		Name:         "openai",
		DisplayName:  "OpenAI",
		Description:  "GPT models via the Chat Completions API",
		DefaultModel: "gpt-4o",
		KnownModels:  []string{"gpt-4o", "gpt-4o-mini", "o1", "o3-mini"},
		DocURL:       "https://platform.openai.com/docs",
		ConfigKeys:   []string{"OPENAI_API_KEY", "OPENAI_HOST"},
	}
}

func (p *Provider) GetModelConfig() provider.ModelConfig {
	maxTokens := p.cfg.MaxTokens
	temp := p.cfg.Temperature
	return provider.ModelConfig{
		ModelName:     p.cfg.Model,
		TokenizerName: "cl100k_base",
		MaxTokens:     &maxTokens,
		Temperature:   &temp,
	}
}

// wire types, grounded on llms/openai.go's OpenAIRequest/OpenAIMessage/
// OpenAIToolCall shapes. ---------------------------------------------------

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireRequest struct {
	Model               string        `json:"model"`
	Messages            []wireMessage `json:"messages"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	Temperature         float64       `json:"temperature,omitempty"`
	Tools               []wireTool    `json:"tools,omitempty"`
	ToolChoice          string        `json:"tool_choice,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
	Error   *wireError   `json:"error,omitempty"`
}

// buildRequest flattens agent.Message's tagged content union down to OpenAI's
// single content string plus a parallel tool_calls array, the reverse of
// what parseResponse does on the way back in.
func buildRequest(cfg Config, system string, messages []agent.Message, tools []agent.Tool) wireRequest {
	wireMessages := make([]wireMessage, 0, len(messages)+1)
	if system != "" {
		wireMessages = append(wireMessages, wireMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		wireMessages = append(wireMessages, toWireMessages(m)...)
	}

	req := wireRequest{
		Model:       cfg.Model,
		Messages:    wireMessages,
		Temperature: cfg.Temperature,
	}
	if strings.HasPrefix(cfg.Model, "o1") || strings.HasPrefix(cfg.Model, "o3") {
		req.MaxCompletionTokens = cfg.MaxTokens
	} else {
		req.MaxTokens = cfg.MaxTokens
	}

	for _, t := range tools {
		req.Tools = append(req.Tools, wireTool{
			Type:     "function",
			Function: wireToolFunction{Name: t.Name, Description: t.Description, Parameters: t.InputSchema},
		})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}
	return req
}

// toWireMessages may expand one agent.Message into several wire messages:
// OpenAI represents each tool_result as its own "tool"-role message, while
// agent.Message packs tool requests and results into a single Content slice.
func toWireMessages(m agent.Message) []wireMessage {
	var text strings.Builder
	var calls []wireToolCall
	var toolResults []wireMessage

	for _, c := range m.Content {
		switch c.Type {
		case agent.ContentText:
			text.WriteString(c.Text)
		case agent.ContentToolRequest, agent.ContentFrontendToolRequest:
			if c.ToolCall == nil {
				continue
			}
			args, _ := json.Marshal(c.ToolCall.Arguments)
			calls = append(calls, wireToolCall{
				ID:       c.ID,
				Type:     "function",
				Function: wireFunctionCall{Name: c.ToolCall.Name, Arguments: string(args)},
			})
		case agent.ContentToolResponse:
			toolResults = append(toolResults, wireMessage{Role: "tool", ToolCallID: c.ID, Content: resultText(c)})
		}
	}

	var out []wireMessage
	if text.Len() > 0 || len(calls) > 0 {
		out = append(out, wireMessage{Role: string(m.Role), Content: text.String(), ToolCalls: calls})
	}
	out = append(out, toolResults...)
	return out
}

func resultText(c agent.MessageContent) string {
	if c.ToolErr != nil {
		return c.ToolErr.Message
	}
	var sb strings.Builder
	for _, item := range c.ToolResult {
		sb.WriteString(item.Text)
	}
	return sb.String()
}

// parseResponse converts the first choice back into an agent.Message.
func parseResponse(resp wireResponse) (agent.Message, agent.Usage) {
	msg := agent.Message{Role: agent.RoleAssistant}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.Content != "" {
			msg.Content = append(msg.Content, agent.MessageContent{Type: agent.ContentText, Text: choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			msg.Content = append(msg.Content, agent.MessageContent{
				Type:     agent.ContentToolRequest,
				ID:       tc.ID,
				ToolCall: &agent.ToolCall{Name: tc.Function.Name, Arguments: args},
			})
		}
	}
	in, out := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	total := resp.Usage.TotalTokens
	return msg, agent.Usage{InputTokens: &in, OutputTokens: &out, TotalTokens: &total}
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, system string, messages []agent.Message, tools []agent.Tool) (agent.Message, agent.Usage, *provider.Error) {
	wireReq := buildRequest(p.cfg, system, messages, tools)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: "http do", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return agent.Message{}, agent.Usage{}, statusError(resp.StatusCode, string(respBody))
	}

	var wireResp wireResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: "decode response", Err: err}
	}
	if wireResp.Error != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: wireResp.Error.Message}
	}

	msg, usage := parseResponse(wireResp)
	return msg, usage, nil
}

func statusError(status int, body string) *provider.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &provider.Error{Kind: provider.ErrAuthentication, Message: body}
	case status == http.StatusTooManyRequests:
		return &provider.Error{Kind: provider.ErrRateLimitExceeded, Message: body}
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(body), "context length"):
		return &provider.Error{Kind: provider.ErrContextLengthExceeded, Message: body}
	case status >= 500:
		return &provider.Error{Kind: provider.ErrServerError, Message: body}
	default:
		return &provider.Error{Kind: provider.ErrRequestFailed, Message: fmt.Sprintf("status %d: %s", status, body)}
	}
}
