package mcpendpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosecore/agentcore/endpoint"
)

func jsonRPCHandler(t *testing.T, results map[string]func(req jsonRPCRequest) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		build, ok := results[req.Method]
		require.True(t, ok, "unexpected method %q", req.Method)
		result, err := json.Marshal(build(req))
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
	}
}

func TestSSEEndpoint_ListTools_WalksEveryPage(t *testing.T) {
	pages := map[string]map[string]any{
		"": {
			"tools":      []map[string]any{{"name": "a"}},
			"nextCursor": "page2",
		},
		"page2": {
			"tools":      []map[string]any{{"name": "b"}},
			"nextCursor": "",
		},
	}
	srv := httptest.NewServer(jsonRPCHandler(t, map[string]func(jsonRPCRequest) any{
		"tools/list": func(req jsonRPCRequest) any {
			params, _ := req.Params.(map[string]any)
			cursor, _ := params["cursor"].(string)
			return pages[cursor]
		},
	}))
	defer srv.Close()

	ep := NewSSE(SSEConfig{URI: srv.URL, Timeout: 5 * time.Second})
	tools, err := endpoint.ListAllTools(context.Background(), ep)
	require.Nil(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "a", tools[0].Name)
	assert.Equal(t, "b", tools[1].Name)
}

func TestSSEEndpoint_Call_TimesOutWhenServerIsSlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: 1, Result: json.RawMessage(`{}`)})
	}))
	defer srv.Close()

	ep := NewSSE(SSEConfig{URI: srv.URL, Timeout: 10 * time.Millisecond})
	_, err := ep.Initialize(context.Background(), endpoint.ClientInfo{Name: "test", Version: "0"})
	require.NotNil(t, err)
	assert.Equal(t, endpoint.ErrTimeout, err.Kind)
}

func TestSSEEndpoint_Call_RemoteErrorSurfacesAsRemoteExecution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &jsonRPCError{Code: -32000, Message: "boom"},
		})
	}))
	defer srv.Close()

	ep := NewSSE(SSEConfig{URI: srv.URL, Timeout: 5 * time.Second})
	_, _, err := ep.CallTool(context.Background(), "whatever", nil)
	require.NotNil(t, err)
	assert.Equal(t, endpoint.ErrRemoteExecution, err.Kind)
	assert.Contains(t, err.Message, "boom")
}

func TestSSEEndpoint_ReadRPCResponse_AcceptsEventStreamFraming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp, _ := json.Marshal(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"uri":"file:///x"}`)})
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: " + string(resp) + "\n\n"))
	}))
	defer srv.Close()

	ep := NewSSE(SSEConfig{URI: srv.URL, Timeout: 5 * time.Second})
	content, err := ep.ReadResource(context.Background(), "file:///x")
	require.Nil(t, err)
	assert.Empty(t, content) // handler above returns a bare object, not a "contents" array
}
