package loop

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/permission"
	"github.com/goosecore/agentcore/provider"
)

// fakeProvider returns one queued response per Complete call, then repeats
// the last response forever (tests only ever drain a bounded number of
// turns before asserting).
type fakeProvider struct {
	responses []agent.Message
	i         int
}

func (p *fakeProvider) Metadata() provider.Metadata          { return provider.Metadata{Name: "fake"} }
func (p *fakeProvider) GetModelConfig() provider.ModelConfig { return provider.ModelConfig{} }

func (p *fakeProvider) Complete(ctx context.Context, system string, messages []agent.Message, tools []agent.Tool) (agent.Message, agent.Usage, *provider.Error) {
	idx := p.i
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.i++
	return p.responses[idx], agent.Usage{}, nil
}

// fakeTools is a minimal ToolLister: it reports whatever frontend tools a
// test configures and dispatches everything else by returning "ran <name>"
// as text.
type fakeTools struct {
	frontend map[string]agent.FrontendTool
	tools    []agent.Tool
}

func (f *fakeTools) GetPrefixedTools(ctx context.Context) ([]agent.Tool, error) { return f.tools, nil }
func (f *fakeTools) Instructions() string                                       { return "" }
func (f *fakeTools) FrontendTools() map[string]agent.FrontendTool {
	if f.frontend == nil {
		return map[string]agent.FrontendTool{}
	}
	return f.frontend
}
func (f *fakeTools) DispatchToolCall(ctx context.Context, call agent.ToolCall) ([]agent.Content, bool, error) {
	return []agent.Content{agent.TextContent(fmt.Sprintf("ran %s", call.Name))}, false, nil
}

func toolReqMessage(id, name string, args map[string]any) agent.Message {
	return agent.Message{
		Role:      agent.RoleAssistant,
		CreatedAt: time.Now().Unix(),
		Content: []agent.MessageContent{
			{Type: agent.ContentToolRequest, ID: id, ToolCall: &agent.ToolCall{Name: name, Arguments: args}},
		},
	}
}

func finalTextMessage(text string) agent.Message {
	return agent.Message{
		Role:      agent.RoleAssistant,
		CreatedAt: time.Now().Unix(),
		Content:   []agent.MessageContent{{Type: agent.ContentText, Text: text}},
	}
}

func drain(t *testing.T, ch <-chan agent.Message, n int) []agent.Message {
	t.Helper()
	var out []agent.Message
	for i := 0; i < n; i++ {
		select {
		case m, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d messages, wanted %d", len(out), n)
			}
			out = append(out, m)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d/%d", i+1, n)
		}
	}
	return out
}

// TestReply_NormalCompletionEndsWithNoToolRequests covers the ordinary
// ending: a response with no tool requests is emitted once, and the
// channel closes right after.
func TestReply_NormalCompletionEndsWithNoToolRequests(t *testing.T) {
	l := &Loop{
		Provider: &fakeProvider{responses: []agent.Message{finalTextMessage("all done")}},
		Tools:    &fakeTools{},
		Gate:     permission.New(nil),
		Mode:     agent.ModeAuto,
	}

	out := l.Reply(context.Background(), nil, nil)
	msgs := drain(t, out, 1)
	assert.Equal(t, "all done", msgs[0].Content[0].Text)

	_, ok := <-out
	assert.False(t, ok, "channel should be closed after the final message")
}

// TestReply_FrontendToolHandshake covers scenario 3: the assistant turn
// with a frontend tool request is filtered down to exclude it, a
// FrontendToolRequest is emitted separately, and the next User turn
// carries a ToolResponse built from whatever HandleToolResult delivers.
func TestReply_FrontendToolHandshake(t *testing.T) {
	l := &Loop{
		Provider: &fakeProvider{responses: []agent.Message{
			toolReqMessage("req-1", "show_diff", map[string]any{"path": "a.go"}),
			finalTextMessage("done"),
		}},
		Tools: &fakeTools{
			frontend: map[string]agent.FrontendTool{"show_diff": {Name: "show_diff"}},
		},
		Gate: permission.New(nil),
		Mode: agent.ModeAuto,
	}

	out := l.Reply(context.Background(), nil, nil)

	filtered := drain(t, out, 1)[0]
	assert.Empty(t, filtered.Content, "frontend tool request should be stripped from the filtered assistant turn")

	frontendReq := drain(t, out, 1)[0]
	require.Len(t, frontendReq.Content, 1)
	assert.Equal(t, agent.ContentFrontendToolRequest, frontendReq.Content[0].Type)
	assert.Equal(t, "req-1", frontendReq.Content[0].ID)

	l.HandleToolResult(ToolResultArrival{
		RequestID: "req-1",
		Result:    []agent.Content{agent.TextContent("diff shown")},
	})

	userMsg := drain(t, out, 1)[0]
	require.Equal(t, agent.RoleUser, userMsg.Role)
	require.Len(t, userMsg.Content, 1)
	assert.Equal(t, agent.ContentToolResponse, userMsg.Content[0].Type)
	assert.Equal(t, "req-1", userMsg.Content[0].ID)
	assert.Equal(t, "diff shown", userMsg.Content[0].ToolResult[0].Text)

	final := drain(t, out, 1)[0]
	assert.Equal(t, "done", final.Content[0].Text)
}

// fakeInstaller always fails to install, so handleEnableExtension's error
// path produces the exact wording scenario 4 requires.
type fakeInstaller struct{ err error }

func (f *fakeInstaller) Install(ctx context.Context, name string) error { return f.err }

// TestReply_EnableExtensionNotFound covers scenario 4: an enable_extension
// request is always gated regardless of mode, and a missing extension
// yields a ToolError whose message matches the required wording.
func TestReply_EnableExtensionNotFound(t *testing.T) {
	l := &Loop{
		Provider: &fakeProvider{responses: []agent.Message{
			toolReqMessage("req-1", ToolEnableExtension, map[string]any{"extension_name": "nonexistent"}),
			finalTextMessage("done"),
		}},
		Tools:     &fakeTools{},
		Gate:      permission.New(nil),
		Installer: &fakeInstaller{err: fmt.Errorf("unknown extension")},
		Mode:      agent.ModeAuto,
	}

	out := l.Reply(context.Background(), nil, nil)

	drain(t, out, 1) // filtered assistant turn (empty, enable_extension stripped)
	enableReq := drain(t, out, 1)[0]
	require.Len(t, enableReq.Content, 1)
	assert.Equal(t, agent.ContentEnableExtensionReq, enableReq.Content[0].Type)

	l.HandleConfirmation(Confirmation{RequestID: "req-1", Decision: agent.DecisionAllowOnce})

	userMsg := drain(t, out, 1)[0]
	require.Len(t, userMsg.Content, 1)
	toolErr := userMsg.Content[0].ToolErr
	require.NotNil(t, toolErr)
	assert.Equal(t, "Extension 'nonexistent' not found. unknown extension", toolErr.Message)
}

// TestReply_ChatModeSkipsEveryTool covers scenario 6: in chat mode no tool
// ever dispatches, and the synthesized response begins with the exact
// required sentence.
func TestReply_ChatModeSkipsEveryTool(t *testing.T) {
	l := &Loop{
		Provider: &fakeProvider{responses: []agent.Message{
			toolReqMessage("req-1", "shell", map[string]any{"cmd": "ls"}),
			finalTextMessage("done"),
		}},
		Tools: &fakeTools{},
		Gate:  permission.New(nil),
		Mode:  agent.ModeChat,
	}

	out := l.Reply(context.Background(), nil, nil)

	drain(t, out, 1) // filtered assistant turn

	userMsg := drain(t, out, 1)[0]
	require.Len(t, userMsg.Content, 1)
	require.NotNil(t, userMsg.Content[0].ToolResult)
	text := userMsg.Content[0].ToolResult[0].Text
	assert.Contains(t, text, "Let the user know the tool call was skipped in Goose chat mode.")
}

// TestReply_GatedApprovalEmitsConfirmationAndHonorsDecision covers approve
// mode: a ToolConfirmationRequest is emitted and the loop suspends until
// HandleConfirmation answers it.
func TestReply_GatedApprovalEmitsConfirmationAndHonorsDecision(t *testing.T) {
	l := &Loop{
		Provider: &fakeProvider{responses: []agent.Message{
			toolReqMessage("req-1", "shell", map[string]any{"cmd": "ls"}),
			finalTextMessage("done"),
		}},
		Tools: &fakeTools{},
		Gate:  permission.New(nil),
		Mode:  agent.ModeApprove,
	}

	out := l.Reply(context.Background(), nil, nil)

	drain(t, out, 1) // filtered assistant turn

	confirmMsg := drain(t, out, 1)[0]
	require.Len(t, confirmMsg.Content, 1)
	assert.Equal(t, agent.ContentToolConfirmation, confirmMsg.Content[0].Type)
	assert.Equal(t, "shell", confirmMsg.Content[0].ConfirmName)

	l.HandleConfirmation(Confirmation{RequestID: "req-1", Decision: agent.DecisionAllowOnce})

	userMsg := drain(t, out, 1)[0]
	require.Len(t, userMsg.Content, 1)
	require.NotNil(t, userMsg.Content[0].ToolResult)
	assert.Equal(t, "ran shell", userMsg.Content[0].ToolResult[0].Text)
}

// TestReply_ResponseOrderMatchesRequestOrder covers §5's ordering
// guarantee: tool responses in the aggregated User turn appear in the
// order their requests appeared in the prior assistant turn, regardless of
// which one's parallel dispatch finishes first.
func TestReply_ResponseOrderMatchesRequestOrder(t *testing.T) {
	assistantTurn := agent.Message{
		Role:      agent.RoleAssistant,
		CreatedAt: time.Now().Unix(),
		Content: []agent.MessageContent{
			{Type: agent.ContentToolRequest, ID: "a", ToolCall: &agent.ToolCall{Name: "alpha"}},
			{Type: agent.ContentToolRequest, ID: "b", ToolCall: &agent.ToolCall{Name: "beta"}},
		},
	}

	l := &Loop{
		Provider: &fakeProvider{responses: []agent.Message{assistantTurn, finalTextMessage("done")}},
		Tools:    &fakeTools{},
		Gate:     permission.New(nil),
		Mode:     agent.ModeAuto,
	}

	out := l.Reply(context.Background(), nil, nil)
	drain(t, out, 1) // filtered assistant turn

	userMsg := drain(t, out, 1)[0]
	require.Len(t, userMsg.Content, 2)
	assert.Equal(t, "a", userMsg.Content[0].ID)
	assert.Equal(t, "b", userMsg.Content[1].ID)
}
