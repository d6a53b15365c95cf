// Package mcpendpoint implements the Tool Endpoint contract over the Model
// Context Protocol, grounded on the teacher's mcptoolset package: a stdio
// transport built directly on github.com/mark3labs/mcp-go's client, and a
// hand-rolled JSON-RPC-over-HTTP transport for SSE/streamable-HTTP servers
// layered on the shared internal/httpclient plumbing.
package mcpendpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/endpoint"
)

// StdioConfig configures a subprocess-backed MCP endpoint.
type StdioConfig struct {
	Cmd     string
	Args    []string
	Env     []string
	Timeout time.Duration
}

// StdioEndpoint wraps an mcp-go stdio client as an endpoint.Endpoint,
// serializing calls behind its own mutex so the manager's "never re-enter
// an endpoint until the previous call completed" guarantee holds even if a
// caller forgets to hold an outer lock.
type StdioEndpoint struct {
	mu      sync.Mutex
	client  *mcpclient.Client
	timeout time.Duration
}

// NewStdio spawns cmd as a child process speaking MCP over stdio; the
// initial handshake is deferred to Initialize, matching the
// spec's explicit add_extension(cfg) -> initialize(...) sequencing.
func NewStdio(cfg StdioConfig) (*StdioEndpoint, error) {
	c, err := mcpclient.NewStdioMCPClient(cfg.Cmd, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcpendpoint: spawn stdio client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &StdioEndpoint{client: c, timeout: timeout}, nil
}

func (e *StdioEndpoint) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

func (e *StdioEndpoint) Initialize(ctx context.Context, info endpoint.ClientInfo) (endpoint.InitializeResult, *endpoint.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ClientInfo = mcp.Implementation{Name: info.Name, Version: info.Version}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION

	res, err := e.client.Initialize(ctx, req)
	if err != nil {
		return endpoint.InitializeResult{}, transportErr(ctx, err)
	}
	return endpoint.InitializeResult{
		Instructions: res.Instructions,
		Capabilities: endpoint.Capabilities{
			Resources: res.Capabilities.Resources != nil,
			Tools:     res.Capabilities.Tools != nil,
			Prompts:   res.Capabilities.Prompts != nil,
		},
	}, nil
}

func (e *StdioEndpoint) ListTools(ctx context.Context, cursor string) (endpoint.Page[agent.Tool], *endpoint.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req := mcp.ListToolsRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)

	res, err := e.client.ListTools(ctx, req)
	if err != nil {
		return endpoint.Page[agent.Tool]{}, transportErr(ctx, err)
	}

	tools := make([]agent.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, convertTool(t))
	}
	return endpoint.Page[agent.Tool]{Items: tools, NextCursor: string(res.NextCursor)}, nil
}

func (e *StdioEndpoint) CallTool(ctx context.Context, name string, arguments map[string]any) ([]agent.Content, bool, *endpoint.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments

	res, err := e.client.CallTool(ctx, req)
	if err != nil {
		return nil, false, transportErr(ctx, err)
	}

	content := make([]agent.Content, 0, len(res.Content))
	for _, c := range res.Content {
		content = append(content, convertContent(c))
	}
	return content, res.IsError, nil
}

func (e *StdioEndpoint) ListResources(ctx context.Context, cursor string) (endpoint.Page[agent.Resource], *endpoint.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req := mcp.ListResourcesRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)

	res, err := e.client.ListResources(ctx, req)
	if err != nil {
		return endpoint.Page[agent.Resource]{}, transportErr(ctx, err)
	}

	resources := make([]agent.Resource, 0, len(res.Resources))
	for _, r := range res.Resources {
		resources = append(resources, agent.Resource{
			URI:      r.URI,
			MimeType: r.MIMEType,
			Name:     r.Name,
			IsActive: true,
		})
	}
	return endpoint.Page[agent.Resource]{Items: resources, NextCursor: string(res.NextCursor)}, nil
}

func (e *StdioEndpoint) ReadResource(ctx context.Context, uri string) ([]agent.Content, *endpoint.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	res, err := e.client.ReadResource(ctx, req)
	if err != nil {
		return nil, transportErr(ctx, err)
	}

	var out []agent.Content
	for _, c := range res.Contents {
		switch v := c.(type) {
		case mcp.TextResourceContents:
			out = append(out, agent.Content{Type: "resource", URI: v.URI, MimeType: v.MIMEType, Text: v.Text})
		case mcp.BlobResourceContents:
			out = append(out, agent.Content{Type: "resource", URI: v.URI, MimeType: v.MIMEType, Blob: v.Blob})
		}
	}
	return out, nil
}

func (e *StdioEndpoint) ListPrompts(ctx context.Context, cursor string) (endpoint.Page[endpoint.Prompt], *endpoint.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req := mcp.ListPromptsRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)

	res, err := e.client.ListPrompts(ctx, req)
	if err != nil {
		return endpoint.Page[endpoint.Prompt]{}, transportErr(ctx, err)
	}

	prompts := make([]endpoint.Prompt, 0, len(res.Prompts))
	for _, p := range res.Prompts {
		prompts = append(prompts, endpoint.Prompt{Name: p.Name, Description: p.Description})
	}
	return endpoint.Page[endpoint.Prompt]{Items: prompts, NextCursor: string(res.NextCursor)}, nil
}

func (e *StdioEndpoint) GetPrompt(ctx context.Context, name string, arguments map[string]any) (string, *endpoint.Error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	strArgs := make(map[string]string, len(arguments))
	for k, v := range arguments {
		if b, err := json.Marshal(v); err == nil {
			strArgs[k] = string(b)
		}
	}
	req.Params.Arguments = strArgs

	res, err := e.client.GetPrompt(ctx, req)
	if err != nil {
		return "", transportErr(ctx, err)
	}
	var sb []byte
	for _, m := range res.Messages {
		if tc, ok := m.Content.(mcp.TextContent); ok {
			sb = append(sb, []byte(tc.Text)...)
			sb = append(sb, '\n')
		}
	}
	return string(sb), nil
}

func (e *StdioEndpoint) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}

func transportErr(ctx context.Context, err error) *endpoint.Error {
	if ctx.Err() != nil {
		return &endpoint.Error{Kind: endpoint.ErrTimeout, Message: ctx.Err().Error(), Err: err}
	}
	return &endpoint.Error{Kind: endpoint.ErrTransport, Message: err.Error(), Err: err}
}

func convertTool(t mcp.Tool) agent.Tool {
	schema := map[string]any{}
	if b, err := json.Marshal(t.InputSchema); err == nil {
		_ = json.Unmarshal(b, &schema)
	}
	out := agent.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
	if t.Annotations.ReadOnlyHint != nil {
		out.Annotations.ReadOnlyHint = *t.Annotations.ReadOnlyHint
	}
	if t.Annotations.DestructiveHint != nil {
		out.Annotations.DestructiveHint = *t.Annotations.DestructiveHint
	}
	return out
}

func convertContent(c mcp.Content) agent.Content {
	switch v := c.(type) {
	case mcp.TextContent:
		return agent.Content{Type: "text", Text: v.Text}
	case mcp.ImageContent:
		return agent.Content{Type: "image", MimeType: v.MIMEType, Data: v.Data}
	case mcp.EmbeddedResource:
		switch r := v.Resource.(type) {
		case mcp.TextResourceContents:
			return agent.Content{Type: "resource", URI: r.URI, MimeType: r.MIMEType, Text: r.Text}
		case mcp.BlobResourceContents:
			return agent.Content{Type: "resource", URI: r.URI, MimeType: r.MIMEType, Blob: r.Blob}
		}
	}
	return agent.Content{Type: "text", Text: fmt.Sprintf("%v", c)}
}
