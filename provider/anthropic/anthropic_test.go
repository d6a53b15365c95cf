package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/provider"
)

func TestComplete_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		var req wireRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-5-sonnet-latest", req.Model)

		resp := wireResponse{
			Content: []wireContent{{Type: "text", Text: "hello"}},
			Usage:   wireUsage{InputTokens: 10, OutputTokens: 5},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "test-key", Model: "claude-3-5-sonnet-latest", Host: srv.URL})
	require.NoError(t, err)

	msg, usage, perr := p.Complete(context.Background(), "be helpful", []agent.Message{agent.NewUserText("hi")}, nil)
	require.Nil(t, perr)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "hello", msg.Content[0].Text)
	require.NotNil(t, usage.InputTokens)
	assert.Equal(t, 10, *usage.InputTokens)
}

func TestComplete_RateLimitMapsToRateLimitExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "k", Model: "m", Host: srv.URL})
	require.NoError(t, err)

	_, _, perr := p.Complete(context.Background(), "", []agent.Message{agent.NewUserText("hi")}, nil)
	require.NotNil(t, perr)
	assert.Equal(t, provider.ErrRateLimitExceeded, perr.Kind)
}

func TestComplete_AuthFailureMapsToAuthentication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "bad", Model: "m", Host: srv.URL})
	require.NoError(t, err)

	_, _, perr := p.Complete(context.Background(), "", []agent.Message{agent.NewUserText("hi")}, nil)
	require.NotNil(t, perr)
	assert.Equal(t, provider.ErrAuthentication, perr.Kind)
}

func TestBuildRequest_EmptyMessagesSynthesizeBenignUser(t *testing.T) {
	req := buildRequest(Config{Model: "m", MaxTokens: 100}, "sys", nil, nil)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, string(agent.RoleUser), req.Messages[0].Role)
}

func TestBuildRequest_ToolUseAndToolResultRoundTrip(t *testing.T) {
	messages := []agent.Message{
		{Role: agent.RoleAssistant, Content: []agent.MessageContent{
			{Type: agent.ContentToolRequest, ID: "t1", ToolCall: &agent.ToolCall{Name: "search", Arguments: map[string]any{"q": "go"}}},
		}},
		{Role: agent.RoleUser, Content: []agent.MessageContent{
			{Type: agent.ContentToolResponse, ID: "t1", ToolResult: []agent.Content{agent.TextContent("result")}},
		}},
	}
	req := buildRequest(Config{Model: "m", MaxTokens: 100}, "", messages, nil)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "tool_use", req.Messages[0].Content[0].Type)
	assert.Equal(t, "tool_result", req.Messages[1].Content[0].Type)
	assert.Equal(t, "t1", req.Messages[1].Content[0].ToolUseID)
}
