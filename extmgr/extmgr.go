// Package extmgr implements the Extension Manager: it owns a set of named
// Tool Endpoints, normalizes their names, prefixes their tools, dispatches
// calls across them, and aggregates their prompts and resources.
package extmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/endpoint"
	"github.com/goosecore/agentcore/internal/logging"
)

// separator is the literal double underscore used to join an extension's
// normalized key to one of its tool names.
const separator = "__"

// PlatformReadResource and PlatformListResources are the two reserved,
// inline-handled tool names that dispatch_tool_call never routes to an
// endpoint.
const (
	PlatformReadResource  = "platform__read_resource"
	PlatformListResources = "platform__list_resources"
)

// Error mirrors extmgr-specific failures (TransportStart, InitializeFailed,
// Timeout from add_extension) as well as dispatch failures.
type Error struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// registeredEndpoint is one entry in the manager's registry: the endpoint
// handle plus everything recorded about it at add_extension time.
type registeredEndpoint struct {
	mu           sync.Mutex
	key          string
	kind         agent.ExtensionKind
	ep           endpoint.Endpoint
	instructions string
	resources    bool
	prompts      bool
	insertOrder  int
}

// Manager is the Extension Manager (component B). The zero value is not
// usable; construct with New.
type Manager struct {
	// outer guards the registry map and insertion order only; it is held
	// briefly (map mutation, lookups) and released before any long-running
	// endpoint call or suspension point, per the spec's concurrency model.
	outer sync.Mutex
	byKey map[string]*registeredEndpoint
	order []string
	next  int

	frontendTools map[string]agent.FrontendTool
	frontendInstr string

	log *slog.Logger
}

// New builds an empty Manager.
func New(log *slog.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		byKey:         make(map[string]*registeredEndpoint),
		frontendTools: make(map[string]agent.FrontendTool),
		log:           log,
	}
}

// Normalize produces the sanitized registry key for a user-chosen extension
// name: keep [A-Za-z0-9_-], drop whitespace, replace any other rune with
// '_', then lowercase.
func Normalize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return strings.ToLower(sb.String())
}

// Prefix joins a normalized extension key and a tool name with the literal
// double-underscore separator.
func Prefix(extKey, toolName string) string {
	return extKey + separator + toolName
}

// AddExtension takes an already-constructed endpoint.Endpoint (the caller
// builds it, e.g. via mcpendpoint.NewStdio/NewSSE, since transport
// construction is I/O-shaped and kind-specific), runs the initialize
// handshake, and registers it. If initialize fails the endpoint is shut
// down and nothing is registered.
func (m *Manager) AddExtension(ctx context.Context, name string, ep endpoint.Endpoint, kind agent.ExtensionKind) (*endpoint.InitializeResult, error) {
	key := Normalize(name)

	res, iErr := ep.Initialize(ctx, endpoint.ClientInfo{Name: "goosecore", Version: "0.1.0"})
	if iErr != nil {
		_ = ep.Close(ctx)
		return nil, &Error{Component: "extmgr", Action: "add_extension", Message: "initialize failed for " + key, Err: iErr}
	}

	m.outer.Lock()
	m.byKey[key] = &registeredEndpoint{
		key:          key,
		kind:         kind,
		ep:           ep,
		instructions: res.Instructions,
		resources:    res.Capabilities.Resources,
		prompts:      res.Capabilities.Prompts,
		insertOrder:  m.next,
	}
	m.order = append(m.order, key)
	m.next++
	m.outer.Unlock()

	return &res, nil
}

// AddFrontendExtension registers tools the caller (not any endpoint)
// dispatches. Adding a frontend extension replaces any prior instructions
// but merges the tool set, per the data model's ownership note.
func (m *Manager) AddFrontendExtension(cfg agent.ExtensionConfig) {
	m.outer.Lock()
	defer m.outer.Unlock()
	m.frontendInstr = cfg.Instructions
	for _, t := range cfg.Tools {
		m.frontendTools[t.Name] = agent.FrontendTool{Name: t.Name, Tool: t}
	}
}

// FrontendTools returns a snapshot of the registered frontend tools.
func (m *Manager) FrontendTools() map[string]agent.FrontendTool {
	m.outer.Lock()
	defer m.outer.Unlock()
	out := make(map[string]agent.FrontendTool, len(m.frontendTools))
	for k, v := range m.frontendTools {
		out[k] = v
	}
	return out
}

// RemoveExtension looks up key, shuts down its endpoint, and drops all
// cached metadata.
func (m *Manager) RemoveExtension(ctx context.Context, name string) error {
	key := Normalize(name)

	m.outer.Lock()
	re, ok := m.byKey[key]
	if ok {
		delete(m.byKey, key)
		for i, k := range m.order {
			if k == key {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.outer.Unlock()

	if !ok {
		return &Error{Component: "extmgr", Action: "remove_extension", Message: "unknown extension " + key}
	}
	re.mu.Lock()
	defer re.mu.Unlock()
	return re.ep.Close(ctx)
}

// ListExtensions returns the normalized keys of every registered endpoint,
// in insertion order.
func (m *Manager) ListExtensions() []string {
	m.outer.Lock()
	defer m.outer.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// snapshot returns the registered endpoints in insertion order, without
// holding the outer lock while callers iterate and make endpoint calls.
func (m *Manager) snapshot() []*registeredEndpoint {
	m.outer.Lock()
	defer m.outer.Unlock()
	out := make([]*registeredEndpoint, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.byKey[k])
	}
	return out
}

// GetPrefixedTools concatenates every endpoint's paginated tool list, each
// tool rewritten to its prefixed name, plus any frontend tools (unprefixed,
// since they are not dispatched through an endpoint). Order: endpoint
// insertion order, then endpoint-local order.
func (m *Manager) GetPrefixedTools(ctx context.Context) ([]agent.Tool, error) {
	var all []agent.Tool
	for _, re := range m.snapshot() {
		re.mu.Lock()
		tools, err := endpoint.ListAllTools(ctx, re.ep)
		re.mu.Unlock()
		if err != nil {
			return nil, &Error{Component: "extmgr", Action: "get_prefixed_tools", Message: "listing tools for " + re.key, Err: err}
		}
		for _, t := range tools {
			t.Name = Prefix(re.key, t.Name)
			all = append(all, t)
		}
	}
	for _, ft := range m.FrontendTools() {
		all = append(all, ft.Tool)
	}
	return all, nil
}

// resolve finds the registered endpoint whose key is the longest prefix of
// name followed by the separator, and returns the endpoint, its key, and
// the unprefixed tool name. This is the spec's corrected dispatch rule:
// longest-prefix-match over registered keys, not the arbitrary map-iteration
// order the original implementation used.
func (m *Manager) resolve(name string) (*registeredEndpoint, string, bool) {
	m.outer.Lock()
	defer m.outer.Unlock()

	var best *registeredEndpoint
	var bestKey string
	for key, re := range m.byKey {
		marker := key + separator
		if strings.HasPrefix(name, marker) {
			if best == nil || len(key) > len(bestKey) {
				best = re
				bestKey = key
			}
		}
	}
	if best == nil {
		return nil, "", false
	}
	return best, strings.TrimPrefix(name, bestKey+separator), true
}

// DispatchToolCall routes call to the endpoint whose key is the longest
// matching prefix of call.Name, per Normalize/Prefix above. The two
// reserved platform tool names are handled inline and never routed.
func (m *Manager) DispatchToolCall(ctx context.Context, call agent.ToolCall) ([]agent.Content, bool, error) {
	switch call.Name {
	case PlatformReadResource:
		uri, _ := call.Arguments["uri"].(string)
		extName, _ := call.Arguments["extension_name"].(string)
		content, err := m.ReadResource(ctx, extName, uri)
		return content, err != nil, err
	case PlatformListResources:
		extName, _ := call.Arguments["extension_name"].(string)
		resources, err := m.listResourcesForKey(ctx, extName)
		if err != nil {
			return nil, true, err
		}
		return resourcesToContent(resources), false, nil
	}

	re, toolName, ok := m.resolve(call.Name)
	if !ok {
		return nil, true, &endpoint.Error{Kind: endpoint.ErrNotFound, What: call.Name}
	}

	re.mu.Lock()
	defer re.mu.Unlock()
	content, isError, err := re.ep.CallTool(ctx, toolName, call.Arguments)
	if err != nil {
		return nil, true, err
	}
	return content, isError, nil
}

// ReadResource reads uri from extName's endpoint if given, otherwise from
// the first endpoint that advertised the resources capability and
// succeeds; if none succeed, fails with a message listing extensions that
// do advertise resources.
func (m *Manager) ReadResource(ctx context.Context, extName, uri string) ([]agent.Content, error) {
	if extName != "" {
		re, ok := m.lookupExact(Normalize(extName))
		if !ok {
			return nil, &Error{Component: "extmgr", Action: "read_resource", Message: "unknown extension " + extName}
		}
		re.mu.Lock()
		defer re.mu.Unlock()
		content, err := re.ep.ReadResource(ctx, uri)
		if err != nil {
			return nil, err
		}
		return content, nil
	}

	var candidates []string
	for _, re := range m.snapshot() {
		if !re.resources {
			continue
		}
		candidates = append(candidates, re.key)
		re.mu.Lock()
		content, err := re.ep.ReadResource(ctx, uri)
		re.mu.Unlock()
		if err == nil {
			return content, nil
		}
	}
	return nil, &Error{Component: "extmgr", Action: "read_resource", Message: fmt.Sprintf("no extension could read %q (tried: %s)", uri, strings.Join(candidates, ", "))}
}

// ListResources aggregates per-endpoint resource lists across every
// endpoint advertising the resources capability, running one errgroup per
// call. A failing endpoint is logged and skipped: the resources of the
// endpoints that succeeded are returned, and the per-endpoint errors are
// not returned to the caller.
func (m *Manager) ListResources(ctx context.Context) ([]agent.Resource, error) {
	return m.listResourcesForKey(ctx, "")
}

func (m *Manager) listResourcesForKey(ctx context.Context, extName string) ([]agent.Resource, error) {
	eps := m.snapshot()
	if extName != "" {
		re, ok := m.lookupExact(Normalize(extName))
		if !ok {
			return nil, &Error{Component: "extmgr", Action: "list_resources", Message: "unknown extension " + extName}
		}
		eps = []*registeredEndpoint{re}
	}

	perEndpoint := make([][]agent.Resource, len(eps))
	g, gctx := errgroup.WithContext(ctx)
	for i, re := range eps {
		i, re := i, re
		if !re.resources {
			continue
		}
		g.Go(func() error {
			re.mu.Lock()
			defer re.mu.Unlock()
			var collected []agent.Resource
			cursor := ""
			for {
				page, err := re.ep.ListResources(gctx, cursor)
				if err != nil {
					m.log.Warn("list_resources failed", "extension", re.key, "error", err)
					return nil // logged only; a partial failure here is not fatal to the aggregate
				}
				collected = append(collected, page.Items...)
				if page.NextCursor == "" {
					break
				}
				cursor = page.NextCursor
			}
			perEndpoint[i] = collected
			return nil
		})
	}
	_ = g.Wait()

	var all []agent.Resource
	for _, rs := range perEndpoint {
		all = append(all, rs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].EffectiveTimestamp().Before(all[j].EffectiveTimestamp())
	})
	return all, nil
}

func (m *Manager) lookupExact(key string) (*registeredEndpoint, bool) {
	m.outer.Lock()
	defer m.outer.Unlock()
	re, ok := m.byKey[key]
	return re, ok
}

// ListPrompts fans out to every endpoint advertising the prompts
// capability.
func (m *Manager) ListPrompts(ctx context.Context) (map[string][]endpoint.Prompt, error) {
	out := make(map[string][]endpoint.Prompt)
	for _, re := range m.snapshot() {
		if !re.prompts {
			continue
		}
		re.mu.Lock()
		var prompts []endpoint.Prompt
		cursor := ""
		for {
			page, err := re.ep.ListPrompts(ctx, cursor)
			if err != nil {
				m.log.Warn("list_prompts failed", "extension", re.key, "error", err)
				break
			}
			prompts = append(prompts, page.Items...)
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		re.mu.Unlock()
		out[re.key] = prompts
	}
	return out, nil
}

// GetPrompt calls get_prompt directly against extName's endpoint.
func (m *Manager) GetPrompt(ctx context.Context, extName, name string, arguments map[string]any) (string, error) {
	re, ok := m.lookupExact(Normalize(extName))
	if !ok {
		return "", &Error{Component: "extmgr", Action: "get_prompt", Message: "unknown extension " + extName}
	}
	re.mu.Lock()
	defer re.mu.Unlock()
	text, err := re.ep.GetPrompt(ctx, name, arguments)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Instructions concatenates every registered endpoint's recorded
// instructions plus the frontend instructions, for the reply loop's system
// prompt assembly.
func (m *Manager) Instructions() string {
	var sb strings.Builder
	for _, re := range m.snapshot() {
		if re.instructions == "" {
			continue
		}
		sb.WriteString(re.instructions)
		sb.WriteString("\n")
	}
	m.outer.Lock()
	instr := m.frontendInstr
	m.outer.Unlock()
	if instr != "" {
		sb.WriteString(instr)
	}
	return sb.String()
}

func resourcesToContent(resources []agent.Resource) []agent.Content {
	out := make([]agent.Content, 0, len(resources))
	for _, r := range resources {
		out = append(out, agent.Content{Type: "resource", URI: r.URI, MimeType: r.MimeType, Text: r.Name})
	}
	return out
}
