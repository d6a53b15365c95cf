package extmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/endpoint"
)

// fakeEndpoint is a minimal in-memory endpoint.Endpoint for exercising the
// manager without a real subprocess or HTTP server.
type fakeEndpoint struct {
	tools  []agent.Tool
	calls  []string
	closed bool
}

func (f *fakeEndpoint) Initialize(ctx context.Context, info endpoint.ClientInfo) (endpoint.InitializeResult, *endpoint.Error) {
	return endpoint.InitializeResult{Capabilities: endpoint.Capabilities{Tools: true}}, nil
}
func (f *fakeEndpoint) ListTools(ctx context.Context, cursor string) (endpoint.Page[agent.Tool], *endpoint.Error) {
	return endpoint.Page[agent.Tool]{Items: f.tools}, nil
}
func (f *fakeEndpoint) CallTool(ctx context.Context, name string, arguments map[string]any) ([]agent.Content, bool, *endpoint.Error) {
	f.calls = append(f.calls, name)
	return []agent.Content{agent.TextContent("ok:" + name)}, false, nil
}
func (f *fakeEndpoint) ListResources(ctx context.Context, cursor string) (endpoint.Page[agent.Resource], *endpoint.Error) {
	return endpoint.Page[agent.Resource]{}, nil
}
func (f *fakeEndpoint) ReadResource(ctx context.Context, uri string) ([]agent.Content, *endpoint.Error) {
	return nil, &endpoint.Error{Kind: endpoint.ErrNotFound, What: uri}
}
func (f *fakeEndpoint) ListPrompts(ctx context.Context, cursor string) (endpoint.Page[endpoint.Prompt], *endpoint.Error) {
	return endpoint.Page[endpoint.Prompt]{}, nil
}
func (f *fakeEndpoint) GetPrompt(ctx context.Context, name string, arguments map[string]any) (string, *endpoint.Error) {
	return "", nil
}
func (f *fakeEndpoint) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func TestNormalize_IdempotentAndSanitizing(t *testing.T) {
	n1 := Normalize("My Client 🚀")
	assert.Equal(t, "my_client_", n1)
	assert.Equal(t, Normalize(n1), Normalize(Normalize(n1)), "normalizing twice must equal normalizing once")
}

// Scenario 5 from the spec: name prefixing and longest-prefix dispatch.
func TestDispatch_LongestPrefixMatch(t *testing.T) {
	m := New(nil)
	fe := &fakeEndpoint{tools: []agent.Tool{{Name: "search"}}}
	ctx := context.Background()

	_, err := m.AddExtension(ctx, "My Client 🚀", fe, agent.ExtensionStdio)
	require.NoError(t, err)

	prefixed := Prefix(Normalize("My Client 🚀"), "search")
	assert.Equal(t, "my_client___search", prefixed)

	_, isError, err := m.DispatchToolCall(ctx, agent.ToolCall{Name: prefixed})
	require.NoError(t, err)
	assert.False(t, isError)
	assert.Equal(t, []string{"search"}, fe.calls)
}

func TestDispatch_UnknownToolNotFound(t *testing.T) {
	m := New(nil)
	_, _, err := m.DispatchToolCall(context.Background(), agent.ToolCall{Name: "nope__tool"})
	require.Error(t, err)
	var epErr *endpoint.Error
	require.ErrorAs(t, err, &epErr)
	assert.Equal(t, endpoint.ErrNotFound, epErr.Kind)
}

func TestRemoveExtension_ClosesEndpoint(t *testing.T) {
	m := New(nil)
	fe := &fakeEndpoint{}
	ctx := context.Background()
	_, err := m.AddExtension(ctx, "dev", fe, agent.ExtensionStdio)
	require.NoError(t, err)

	require.NoError(t, m.RemoveExtension(ctx, "dev"))
	assert.True(t, fe.closed)
	assert.Empty(t, m.ListExtensions())
}

func TestGetPrefixedTools_InsertionOrder(t *testing.T) {
	m := New(nil)
	ctx := context.Background()
	a := &fakeEndpoint{tools: []agent.Tool{{Name: "one"}}}
	b := &fakeEndpoint{tools: []agent.Tool{{Name: "two"}}}
	_, err := m.AddExtension(ctx, "a", a, agent.ExtensionStdio)
	require.NoError(t, err)
	_, err = m.AddExtension(ctx, "b", b, agent.ExtensionStdio)
	require.NoError(t, err)

	tools, err := m.GetPrefixedTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "a__one", tools[0].Name)
	assert.Equal(t, "b__two", tools[1].Name)
}
