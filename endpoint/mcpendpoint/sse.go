package mcpendpoint

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/endpoint"
	"github.com/goosecore/agentcore/internal/httpclient"
)

// SSEConfig configures a remote MCP endpoint reached over an SSE-upgraded
// HTTPS stream, addressed as plain JSON-RPC-over-HTTP requests — grounded
// on the teacher's hand-rolled transport rather than a generated SDK, since
// the wire shape (one JSON-RPC object per HTTP POST, response read back
// either as a single JSON body or as the first `data:` frame of an SSE
// stream) is simple enough not to need one.
type SSEConfig struct {
	URI     string
	Headers map[string]string
	Timeout time.Duration
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

// SSEEndpoint implements endpoint.Endpoint over the JSON-RPC-over-HTTP(+SSE)
// transport described above. One mutex serializes requests the same way
// StdioEndpoint does.
type SSEEndpoint struct {
	mu     sync.Mutex
	cfg    SSEConfig
	http   *http.Client
	nextID int64
}

// NewSSE builds an SSEEndpoint. No network call happens until Initialize.
func NewSSE(cfg SSEConfig) *SSEEndpoint {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	cfg.Timeout = timeout
	return &SSEEndpoint{cfg: cfg, http: httpclient.New(timeout)}
}

func (e *SSEEndpoint) call(ctx context.Context, method string, params any, out any) *endpoint.Error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	id := atomic.AddInt64(&e.nextID, 1)
	reqBody, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: err.Error(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URI, bytes.NewReader(reqBody))
	if err != nil {
		return &endpoint.Error{Kind: endpoint.ErrTransport, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range e.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return &endpoint.Error{Kind: endpoint.ErrTimeout, Message: ctx.Err().Error(), Err: err}
		}
		return &endpoint.Error{Kind: endpoint.ErrTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &endpoint.Error{Kind: endpoint.ErrRemoteExecution, Message: fmt.Sprintf("http status %d", resp.StatusCode)}
	}

	rpcResp, perr := readRPCResponse(resp)
	if perr != nil {
		return &endpoint.Error{Kind: endpoint.ErrTransport, Message: perr.Error(), Err: perr}
	}
	if rpcResp.Error != nil {
		return &endpoint.Error{Kind: endpoint.ErrRemoteExecution, Message: rpcResp.Error.Message}
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return &endpoint.Error{Kind: endpoint.ErrTransport, Message: err.Error(), Err: err}
		}
	}
	return nil
}

// readRPCResponse accepts either a bare JSON body or an SSE stream whose
// first "data:" frame carries the JSON-RPC response, matching the teacher's
// readSSEResponse handling of streamable-HTTP MCP servers.
func readRPCResponse(resp *http.Response) (*jsonRPCResponse, error) {
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/event-stream") {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if after, ok := strings.CutPrefix(line, "data:"); ok {
				var out jsonRPCResponse
				if err := json.Unmarshal([]byte(strings.TrimSpace(after)), &out); err != nil {
					return nil, err
				}
				return &out, nil
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("sse stream closed before a data frame arrived")
	}

	var out jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *SSEEndpoint) Initialize(ctx context.Context, info endpoint.ClientInfo) (endpoint.InitializeResult, *endpoint.Error) {
	var raw struct {
		Instructions string `json:"instructions"`
		Capabilities struct {
			Resources json.RawMessage `json:"resources"`
			Tools     json.RawMessage `json:"tools"`
			Prompts   json.RawMessage `json:"prompts"`
		} `json:"capabilities"`
	}
	params := map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": info.Name, "version": info.Version},
	}
	if err := e.call(ctx, "initialize", params, &raw); err != nil {
		return endpoint.InitializeResult{}, err
	}
	return endpoint.InitializeResult{
		Instructions: raw.Instructions,
		Capabilities: endpoint.Capabilities{
			Resources: len(raw.Capabilities.Resources) > 0,
			Tools:     len(raw.Capabilities.Tools) > 0,
			Prompts:   len(raw.Capabilities.Prompts) > 0,
		},
	}, nil
}

func (e *SSEEndpoint) ListTools(ctx context.Context, cursor string) (endpoint.Page[agent.Tool], *endpoint.Error) {
	var raw struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
			Annotations struct {
				ReadOnlyHint    bool `json:"readOnlyHint"`
				DestructiveHint bool `json:"destructiveHint"`
			} `json:"annotations"`
		} `json:"tools"`
		NextCursor string `json:"nextCursor"`
	}
	if err := e.call(ctx, "tools/list", map[string]any{"cursor": cursor}, &raw); err != nil {
		return endpoint.Page[agent.Tool]{}, err
	}
	tools := make([]agent.Tool, 0, len(raw.Tools))
	for _, t := range raw.Tools {
		schema := map[string]any{}
		_ = json.Unmarshal(t.InputSchema, &schema)
		tools = append(tools, agent.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
			Annotations: agent.ToolAnnotations{
				ReadOnlyHint:    t.Annotations.ReadOnlyHint,
				DestructiveHint: t.Annotations.DestructiveHint,
			},
		})
	}
	return endpoint.Page[agent.Tool]{Items: tools, NextCursor: raw.NextCursor}, nil
}

func (e *SSEEndpoint) CallTool(ctx context.Context, name string, arguments map[string]any) ([]agent.Content, bool, *endpoint.Error) {
	var raw struct {
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text,omitempty"`
			MimeType string `json:"mimeType,omitempty"`
			Data     string `json:"data,omitempty"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	params := map[string]any{"name": name, "arguments": arguments}
	if err := e.call(ctx, "tools/call", params, &raw); err != nil {
		return nil, false, err
	}
	content := make([]agent.Content, 0, len(raw.Content))
	for _, c := range raw.Content {
		content = append(content, agent.Content{Type: c.Type, Text: c.Text, MimeType: c.MimeType, Data: c.Data})
	}
	return content, raw.IsError, nil
}

func (e *SSEEndpoint) ListResources(ctx context.Context, cursor string) (endpoint.Page[agent.Resource], *endpoint.Error) {
	var raw struct {
		Resources []struct {
			URI      string `json:"uri"`
			MimeType string `json:"mimeType"`
			Name     string `json:"name"`
		} `json:"resources"`
		NextCursor string `json:"nextCursor"`
	}
	if err := e.call(ctx, "resources/list", map[string]any{"cursor": cursor}, &raw); err != nil {
		return endpoint.Page[agent.Resource]{}, err
	}
	resources := make([]agent.Resource, 0, len(raw.Resources))
	for _, r := range raw.Resources {
		resources = append(resources, agent.Resource{URI: r.URI, MimeType: r.MimeType, Name: r.Name, IsActive: true})
	}
	return endpoint.Page[agent.Resource]{Items: resources, NextCursor: raw.NextCursor}, nil
}

func (e *SSEEndpoint) ReadResource(ctx context.Context, uri string) ([]agent.Content, *endpoint.Error) {
	var raw struct {
		Contents []struct {
			URI      string `json:"uri"`
			MimeType string `json:"mimeType"`
			Text     string `json:"text,omitempty"`
			Blob     string `json:"blob,omitempty"`
		} `json:"contents"`
	}
	if err := e.call(ctx, "resources/read", map[string]any{"uri": uri}, &raw); err != nil {
		return nil, err
	}
	content := make([]agent.Content, 0, len(raw.Contents))
	for _, c := range raw.Contents {
		content = append(content, agent.Content{Type: "resource", URI: c.URI, MimeType: c.MimeType, Text: c.Text, Blob: c.Blob})
	}
	return content, nil
}

func (e *SSEEndpoint) ListPrompts(ctx context.Context, cursor string) (endpoint.Page[endpoint.Prompt], *endpoint.Error) {
	var raw struct {
		Prompts []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"prompts"`
		NextCursor string `json:"nextCursor"`
	}
	if err := e.call(ctx, "prompts/list", map[string]any{"cursor": cursor}, &raw); err != nil {
		return endpoint.Page[endpoint.Prompt]{}, err
	}
	prompts := make([]endpoint.Prompt, 0, len(raw.Prompts))
	for _, p := range raw.Prompts {
		prompts = append(prompts, endpoint.Prompt{Name: p.Name, Description: p.Description})
	}
	return endpoint.Page[endpoint.Prompt]{Items: prompts, NextCursor: raw.NextCursor}, nil
}

func (e *SSEEndpoint) GetPrompt(ctx context.Context, name string, arguments map[string]any) (string, *endpoint.Error) {
	var raw struct {
		Messages []struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	params := map[string]any{"name": name, "arguments": arguments}
	if err := e.call(ctx, "prompts/get", params, &raw); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, m := range raw.Messages {
		sb.WriteString(m.Content.Text)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (e *SSEEndpoint) Close(ctx context.Context) error {
	return nil
}
