package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosecore/agentcore/builtin"
)

func TestServeStdio_InitializeThenListToolsThenCall(t *testing.T) {
	ep := builtin.NewShell(t.TempDir())
	ep.AllowedCommands = nil

	var in bytes.Buffer
	requests := []rpcRequest{
		{JSONRPC: "2.0", ID: 1, Method: "initialize"},
		{JSONRPC: "2.0", ID: 2, Method: "tools/list"},
		{JSONRPC: "2.0", ID: 3, Method: "tools/call", Params: mustJSON(t, map[string]any{
			"name":      "shell",
			"arguments": map[string]any{"command": "echo hi"},
		})},
	}
	for _, r := range requests {
		b, err := json.Marshal(r)
		require.NoError(t, err)
		in.Write(b)
		in.WriteByte('\n')
	}

	var responses []rpcResponse
	ctx := context.Background()
	for _, r := range requests {
		responses = append(responses, dispatch(ctx, ep, r))
	}

	require.Len(t, responses, 3)
	for _, r := range responses {
		assert.Nil(t, r.Error)
	}
}

func TestDispatch_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	ep := builtin.NewTextEditor(t.TempDir())
	resp := dispatch(context.Background(), ep, rpcRequest{ID: 7, Method: "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
