// Package anthropic is the one reference Provider implementation the spec
// requires: it converts agent.Message <-> Anthropic's wire format and talks
// to the Messages API, grounded on the teacher's llms/anthropic.go request
// construction and SSE response handling, generalized from its flat
// "system + messages" shape to the full MessageContent tagged union
// (tool_use / tool_result / thinking / redacted_thinking blocks).
package anthropic

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

const defaultHost = "https://api.anthropic.com"
const apiVersion = "2023-06-01"

// Config configures one Provider instance.
type Config struct {
	APIKey          string
	Model           string
	Host            string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration
	ThinkingEnabled bool
	ThinkingBudget  int
}

// Provider implements provider.Provider against the Anthropic Messages API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New builds a Provider. APIKey and Model are required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
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
		Name:         "anthropic",
		DisplayName:  "Anthropic",
		Description:  "Claude models via the Anthropic Messages API",
		DefaultModel: "claude-3-5-sonnet-latest",
		KnownModels:  []string{"claude-3-5-sonnet-latest", "claude-3-opus-latest", "claude-3-haiku-latest"},
		DocURL:       "https://docs.anthropic.com",
		ConfigKeys:   []string{"ANTHROPIC_API_KEY", "ANTHROPIC_HOST"},
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

// wire types -----------------------------------------------------------

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type wireContent struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name,omitempty"`
	Input        map[string]any    `json:"input,omitempty"`
	ToolUseID    string            `json:"tool_use_id,omitempty"`
	Content      any               `json:"content,omitempty"`
	Signature    string            `json:"signature,omitempty"`
	Data         string            `json:"data,omitempty"`
	CacheControl map[string]string `json:"cache_control,omitempty"`
}

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	System      string        `json:"system,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type wireResponse struct {
	Content    []wireContent `json:"content"`
	Role       string        `json:"role"`
	StopReason string        `json:"stop_reason"`
	Usage      wireUsage     `json:"usage"`
	Error      *wireError    `json:"error,omitempty"`
}

// buildRequest converts internal messages to the wire format described in
// spec §4.3. If the outgoing message list would be empty, a single benign
// user message is synthesized. The last and second-to-last user messages
// are marked as ephemeral-cacheable checkpoints. The last tool definition is
// passed through withCacheHintSchema, which leaves it unchanged, so no tool
// definition carries a cache marker.
func buildRequest(cfg Config, system string, messages []agent.Message, tools []agent.Tool) wireRequest {
	wireMessages := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wc := toWireContent(m.Content)
		if len(wc) == 0 {
			continue
		}
		wireMessages = append(wireMessages, wireMessage{Role: string(m.Role), Content: wc})
	}

	if len(wireMessages) == 0 {
		wireMessages = append(wireMessages, wireMessage{
			Role:    string(agent.RoleUser),
			Content: []wireContent{{Type: "text", Text: "(no content)"}},
		})
	}

	markCacheableUserCheckpoints(wireMessages)

	wireTools := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		wireTools = append(wireTools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	if len(wireTools) > 0 {
		wireTools[len(wireTools)-1].InputSchema = withCacheHintSchema(wireTools[len(wireTools)-1].InputSchema)
	}

	return wireRequest{
		Model:       cfg.Model,
		Messages:    wireMessages,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		System:      system,
		Tools:       wireTools,
	}
}

// withCacheHintSchema returns schema unchanged. Anthropic's tool
// cache_control lives beside the tool definition, not inside its schema,
// and wireTool has no cache_control field, so the last tool definition is
// sent without a cache marker.
func withCacheHintSchema(schema map[string]any) map[string]any { return schema }

func markCacheableUserCheckpoints(messages []wireMessage) {
	userIdx := make([]int, 0, len(messages))
	for i, m := range messages {
		if m.Role == string(agent.RoleUser) {
			userIdx = append(userIdx, i)
		}
	}
	n := len(userIdx)
	for k := 0; k < 2 && k < n; k++ {
		idx := userIdx[n-1-k]
		content := messages[idx].Content
		if len(content) == 0 {
			continue
		}
		last := &content[len(content)-1]
		last.CacheControl = map[string]string{"type": "ephemeral"}
	}
}

func toWireContent(content []agent.MessageContent) []wireContent {
	out := make([]wireContent, 0, len(content))
	for _, c := range content {
		switch c.Type {
		case agent.ContentText:
			out = append(out, wireContent{Type: "text", Text: c.Text})
		case agent.ContentImage:
			out = append(out, wireContent{Type: "image", Data: c.Base64Data})
		case agent.ContentToolRequest, agent.ContentFrontendToolRequest:
			if c.ToolCall == nil {
				continue
			}
			out = append(out, wireContent{Type: "tool_use", ID: c.ID, Name: c.ToolCall.Name, Input: c.ToolCall.Arguments})
		case agent.ContentToolResponse:
			out = append(out, wireContent{Type: "tool_result", ToolUseID: c.ID, Content: resultToWire(c)})
		case agent.ContentThinking:
			out = append(out, wireContent{Type: "thinking", Text: c.Text, Signature: c.ThinkingSignature})
		case agent.ContentRedactedThinking:
			out = append(out, wireContent{Type: "redacted_thinking", Data: c.RedactedBlob})
		}
	}
	return out
}

func resultToWire(c agent.MessageContent) any {
	if c.ToolErr != nil {
		return c.ToolErr.Message
	}
	var sb string
	for _, item := range c.ToolResult {
		sb += item.Text
	}
	return sb
}

// parseResponse converts a wire response back into an agent.Message and
// Usage, the reverse half of the round-trip the spec's testable properties
// require.
func parseResponse(resp wireResponse) (agent.Message, agent.Usage) {
	msg := agent.Message{Role: agent.RoleAssistant}
	for _, c := range resp.Content {
		switch c.Type {
		case "text":
			msg.Content = append(msg.Content, agent.MessageContent{Type: agent.ContentText, Text: c.Text})
		case "tool_use":
			msg.Content = append(msg.Content, agent.MessageContent{
				Type:     agent.ContentToolRequest,
				ID:       c.ID,
				ToolCall: &agent.ToolCall{Name: c.Name, Arguments: c.Input},
			})
		case "thinking":
			msg.Content = append(msg.Content, agent.MessageContent{Type: agent.ContentThinking, Text: c.Text, ThinkingSignature: c.Signature})
		case "redacted_thinking":
			msg.Content = append(msg.Content, agent.MessageContent{Type: agent.ContentRedactedThinking, RedactedBlob: c.Data})
		}
	}
	in, out := resp.Usage.InputTokens, resp.Usage.OutputTokens
	total := in + out
	return msg, agent.Usage{InputTokens: &in, OutputTokens: &out, TotalTokens: &total}
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, system string, messages []agent.Message, tools []agent.Tool) (agent.Message, agent.Usage, *provider.Error) {
	wireReq := buildRequest(p.cfg, system, messages, tools)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

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
	case status == http.StatusBadRequest && contextLengthHint(body):
		return &provider.Error{Kind: provider.ErrContextLengthExceeded, Message: body}
	case status >= 500:
		return &provider.Error{Kind: provider.ErrServerError, Message: body}
	default:
		return &provider.Error{Kind: provider.ErrRequestFailed, Message: fmt.Sprintf("status %d: %s", status, body)}
	}
}

func contextLengthHint(body string) bool {
	lower := strings.ToLower(body)
	for _, needle := range []string{"context length", "too many tokens", "maximum context"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
