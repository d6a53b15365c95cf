// Package goose assembles the Agent surface (spec §6): the facade wiring
// the Extension Manager, the Agent Reply Loop, a Provider, and the Session
// Recorder into the operations a caller (the cmd/goosecore CLI, or any
// embedder) actually calls: add_extension, remove_extension, list_extensions,
// list_tools, reply, handle_confirmation, handle_tool_result,
// extend_system_prompt, override_system_prompt, list_extension_prompts,
// get_prompt. Grounded on the teacher's top-level agent.Agent type
// (agent/agent.go), which plays the same role wiring its reasoning engine,
// tool registry, and LLM provider together.
package goose

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/builtin"
	"github.com/goosecore/agentcore/endpoint"
	"github.com/goosecore/agentcore/endpoint/mcpendpoint"
	"github.com/goosecore/agentcore/extmgr"
	"github.com/goosecore/agentcore/loop"
)

// Agent is the Agent surface. The zero value is not usable; build with New.
type Agent struct {
	Loop    *loop.Loop
	Manager *extmgr.Manager

	builtins map[string]func() endpoint.Endpoint

	mu    sync.Mutex
	known map[string]agent.ExtensionConfig
}

// New builds an Agent wiring l and m together, registering the text_editor
// and shell Builtin tools under builtinWorkingDir for later add_extension
// calls by name.
func New(l *loop.Loop, m *extmgr.Manager, builtinWorkingDir string) *Agent {
	a := &Agent{
		Loop:     l,
		Manager:  m,
		builtins: builtin.Registry(builtinWorkingDir),
		known:    make(map[string]agent.ExtensionConfig),
	}
	l.Tools = m
	l.Installer = &installer{agent: a}
	if l.Mode == agent.ModeSmartApprove && l.Classifier == nil && l.Provider != nil {
		l.Classifier = NewReadOnlyClassifier(l.Provider)
	}
	return a
}

// RegisterKnownExtension makes cfg installable later by name via
// add_extension/enable_extension, without starting its transport yet.
func (a *Agent) RegisterKnownExtension(cfg agent.ExtensionConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.known[cfg.Name] = cfg
}

func (a *Agent) lookup(name string) (agent.ExtensionConfig, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg, ok := a.known[name]
	return cfg, ok
}

// buildEndpoint turns an ExtensionConfig's transport-specific fields into a
// real endpoint.Endpoint, per §4.1's Stdio/SSE/Builtin variants.
func (a *Agent) buildEndpoint(cfg agent.ExtensionConfig) (endpoint.Endpoint, error) {
	switch cfg.Kind {
	case agent.ExtensionStdio:
		env := make([]string, 0, len(cfg.Envs))
		for k, v := range cfg.Envs {
			env = append(env, k+"="+v)
		}
		return mcpendpoint.NewStdio(mcpendpoint.StdioConfig{Cmd: cfg.Cmd, Args: cfg.Args, Env: env, Timeout: cfg.Timeout})
	case agent.ExtensionSSE:
		return mcpendpoint.NewSSE(mcpendpoint.SSEConfig{URI: cfg.URI, Timeout: cfg.Timeout}), nil
	case agent.ExtensionBuiltin:
		factory, ok := a.builtins[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("goose: unknown builtin extension %q", cfg.Name)
		}
		return factory(), nil
	default:
		return nil, fmt.Errorf("goose: extension kind %q has no transport", cfg.Kind)
	}
}

// AddExtension instantiates cfg's transport (or registers it as a frontend
// extension, which has none) and installs it into the Extension Manager.
func (a *Agent) AddExtension(ctx context.Context, cfg agent.ExtensionConfig) (*endpoint.InitializeResult, error) {
	if cfg.Kind == agent.ExtensionFrontend {
		a.Manager.AddFrontendExtension(cfg)
		return &endpoint.InitializeResult{Instructions: cfg.Instructions, Capabilities: endpoint.Capabilities{Tools: true}}, nil
	}

	ep, err := a.buildEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	return a.Manager.AddExtension(ctx, cfg.Name, ep, cfg.Kind)
}

// RemoveExtension shuts down and forgets the named extension.
func (a *Agent) RemoveExtension(ctx context.Context, name string) error {
	return a.Manager.RemoveExtension(ctx, name)
}

// ListExtensions returns the normalized keys of every registered extension.
func (a *Agent) ListExtensions() []string {
	return a.Manager.ListExtensions()
}

// ListTools returns every prefixed tool across every registered extension
// plus any frontend tools, per get_prefixed_tools (§4.2).
func (a *Agent) ListTools(ctx context.Context) ([]agent.Tool, error) {
	return a.Manager.GetPrefixedTools(ctx)
}

// Reply drives one turn of the Agent Reply Loop.
func (a *Agent) Reply(ctx context.Context, messages []agent.Message, session *agent.SessionConfig) <-chan agent.Message {
	return a.Loop.Reply(ctx, messages, session)
}

// HandleConfirmation answers a pending ToolConfirmationRequest or
// EnableExtensionRequest.
func (a *Agent) HandleConfirmation(requestID string, decision agent.PermissionDecision) {
	a.Loop.HandleConfirmation(loop.Confirmation{RequestID: requestID, Decision: decision})
}

// HandleToolResult answers a pending FrontendToolRequest.
func (a *Agent) HandleToolResult(requestID string, result []agent.Content, toolErr *agent.ToolError) {
	a.Loop.HandleToolResult(loop.ToolResultArrival{RequestID: requestID, Result: result, Err: toolErr})
}

// ExtendSystemPrompt appends extra to the loop's base system prompt.
func (a *Agent) ExtendSystemPrompt(extra string) {
	a.Loop.SystemPrompt += "\n\n" + extra
}

// OverrideSystemPrompt replaces the loop's base system prompt wholesale.
func (a *Agent) OverrideSystemPrompt(prompt string) {
	a.Loop.SystemPrompt = prompt
}

// ListExtensionPrompts fans out list_prompts to every capable extension.
func (a *Agent) ListExtensionPrompts(ctx context.Context) (map[string][]endpoint.Prompt, error) {
	return a.Manager.ListPrompts(ctx)
}

// GetPrompt calls get_prompt against one named extension.
func (a *Agent) GetPrompt(ctx context.Context, extensionName, name string, arguments map[string]any) (string, error) {
	return a.Manager.GetPrompt(ctx, extensionName, name, arguments)
}

// installer is the concrete loop.ExtensionInstaller: it looks a name up in
// the Agent's known-extension registry and starts it the same way
// add_extension would. This is what makes scenario 4 (enable_extension) and
// smart_approve's "extension actually gets installed" path reachable end to
// end, closing the gap the maintainer review flagged.
type installer struct {
	agent *Agent
}

func (i *installer) Install(ctx context.Context, name string) error {
	cfg, ok := i.agent.lookup(name)
	if !ok {
		return fmt.Errorf("unknown extension")
	}
	_, err := i.agent.AddExtension(ctx, cfg)
	return err
}

var _ loop.ExtensionInstaller = (*installer)(nil)

// classificationTimeout bounds the auxiliary smart_approve classification
// call so a slow provider never stalls the gating decision indefinitely.
const classificationTimeout = 15 * time.Second
