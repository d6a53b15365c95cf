package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	goosecore "github.com/goosecore/agentcore"
	"github.com/goosecore/agentcore/builtin"
	"github.com/goosecore/agentcore/endpoint"
)

// ServeCmd hosts one builtin extension (text_editor or shell) as a
// newline-delimited JSON-RPC 2.0 server on stdin/stdout, a sub-mode for
// hosting a builtin out of process (goose.Agent itself runs builtins
// in-process), grounded on
// the teacher's cmd/hector serve.go subcommand dispatch pattern. The wire
// shape mirrors mcpendpoint's own jsonRPCRequest/jsonRPCResponse framing so
// the same client transport that talks to an external MCP server can reach
// a re-exec'd goosecore instance.
type ServeCmd struct {
	Tool       string `arg:"" enum:"text_editor,shell" help:"Which builtin extension to host."`
	WorkingDir string `name:"working-dir" help:"Working directory the tool operates in." default:"."`
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	factory, ok := builtin.Registry(c.WorkingDir)[c.Tool]
	if !ok {
		return fmt.Errorf("unknown builtin %q", c.Tool)
	}
	ep := factory()
	defer ep.Close(context.Background())

	return serveStdio(os.Stdin, os.Stdout, ep)
}

func serveStdio(r *os.File, w *os.File, ep endpoint.Endpoint) error {
	ctx := context.Background()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: err.Error()}})
			continue
		}
		_ = enc.Encode(dispatch(ctx, ep, req))
	}
	return scanner.Err()
}

func dispatch(ctx context.Context, ep endpoint.Endpoint, req rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		result, err := ep.Initialize(ctx, endpoint.ClientInfo{Name: "goosecore", Version: goosecore.Version})
		if err != nil {
			resp.Error = toRPCError(err)
			return resp
		}
		resp.Result = map[string]any{
			"instructions": result.Instructions,
			"capabilities": map[string]any{
				"resources": result.Capabilities.Resources,
				"tools":     result.Capabilities.Tools,
				"prompts":   result.Capabilities.Prompts,
			},
		}
	case "tools/list":
		var params struct {
			Cursor string `json:"cursor"`
		}
		_ = json.Unmarshal(req.Params, &params)
		page, err := ep.ListTools(ctx, params.Cursor)
		if err != nil {
			resp.Error = toRPCError(err)
			return resp
		}
		tools := make([]map[string]any, 0, len(page.Items))
		for _, t := range page.Items {
			tools = append(tools, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"inputSchema": t.InputSchema,
				"annotations": map[string]any{
					"readOnlyHint":    t.Annotations.ReadOnlyHint,
					"destructiveHint": t.Annotations.DestructiveHint,
				},
			})
		}
		resp.Result = map[string]any{"tools": tools, "nextCursor": page.NextCursor}
	case "tools/call":
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &rpcError{Code: -32602, Message: err.Error()}
			return resp
		}
		content, isErr, err := ep.CallTool(ctx, params.Name, params.Arguments)
		if err != nil {
			resp.Error = toRPCError(err)
			return resp
		}
		items := make([]map[string]any, 0, len(content))
		for _, item := range content {
			items = append(items, map[string]any{"type": item.Type, "text": item.Text, "mimeType": item.MimeType})
		}
		resp.Result = map[string]any{"content": items, "isError": isErr}
	default:
		resp.Error = &rpcError{Code: -32601, Message: "method not found: " + req.Method}
	}
	return resp
}

func toRPCError(err *endpoint.Error) *rpcError {
	return &rpcError{Code: -32000, Message: err.Error()}
}
