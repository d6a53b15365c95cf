package goose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/extmgr"
	"github.com/goosecore/agentcore/loop"
	"github.com/goosecore/agentcore/provider"
)

type stubProvider struct {
	answer string
}

func (p *stubProvider) Metadata() provider.Metadata          { return provider.Metadata{Name: "stub"} }
func (p *stubProvider) GetModelConfig() provider.ModelConfig { return provider.ModelConfig{} }
func (p *stubProvider) Complete(ctx context.Context, system string, messages []agent.Message, tools []agent.Tool) (agent.Message, agent.Usage, *provider.Error) {
	return agent.Message{Role: agent.RoleAssistant, Content: []agent.MessageContent{{Type: agent.ContentText, Text: p.answer}}}, agent.Usage{}, nil
}

func newTestAgent(mode agent.Mode, p provider.Provider) *Agent {
	l := &loop.Loop{Provider: p, Mode: mode}
	m := extmgr.New(nil)
	return New(l, m, "")
}

func TestAgent_AddExtension_BuiltinShellBecomesListable(t *testing.T) {
	a := newTestAgent(agent.ModeAuto, &stubProvider{})
	ctx := context.Background()

	_, err := a.AddExtension(ctx, agent.ExtensionConfig{Kind: agent.ExtensionBuiltin, Name: "shell"})
	require.NoError(t, err)

	tools, err := a.ListTools(ctx)
	require.NoError(t, err)
	names := make([]string, len(tools))
	for i, tl := range tools {
		names[i] = tl.Name
	}
	assert.Contains(t, names, "shell__shell")
}

func TestAgent_AddExtension_UnknownBuiltinFails(t *testing.T) {
	a := newTestAgent(agent.ModeAuto, &stubProvider{})
	_, err := a.AddExtension(context.Background(), agent.ExtensionConfig{Kind: agent.ExtensionBuiltin, Name: "nope"})
	assert.Error(t, err)
}

func TestInstaller_Install_UnregisteredNameFails(t *testing.T) {
	a := newTestAgent(agent.ModeApprove, &stubProvider{})
	err := (&installer{agent: a}).Install(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestInstaller_Install_RegisteredExtensionSucceeds(t *testing.T) {
	a := newTestAgent(agent.ModeApprove, &stubProvider{})
	a.RegisterKnownExtension(agent.ExtensionConfig{Kind: agent.ExtensionBuiltin, Name: "text_editor"})

	err := (&installer{agent: a}).Install(context.Background(), "text_editor")
	require.NoError(t, err)
	assert.Contains(t, a.ListExtensions(), "text_editor")
}

func TestNew_SmartApproveModeWiresDefaultClassifier(t *testing.T) {
	l := &loop.Loop{Provider: &stubProvider{}, Mode: agent.ModeSmartApprove}
	m := extmgr.New(nil)
	New(l, m, "")
	assert.NotNil(t, l.Classifier)
}

func TestReadOnlyClassifier_ParsesReadOnlyAnswer(t *testing.T) {
	c := NewReadOnlyClassifier(&stubProvider{answer: "read_only"})
	ok, err := c.ClassifyReadOnly(context.Background(), agent.ToolCall{Name: "list_files"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReadOnlyClassifier_ParsesMutatingAnswer(t *testing.T) {
	c := NewReadOnlyClassifier(&stubProvider{answer: "mutating"})
	ok, err := c.ClassifyReadOnly(context.Background(), agent.ToolCall{Name: "delete_file"})
	require.NoError(t, err)
	assert.False(t, ok)
}
