// Package endpoint defines the Tool Endpoint contract: the bidirectional
// request/response surface every extension (spawned subprocess over stdio,
// or SSE-upgraded HTTPS stream) must implement.
package endpoint

import (
	"context"
	"fmt"

	"github.com/goosecore/agentcore/agent"
)

// ErrorKind discriminates the typed errors an endpoint call can fail with.
type ErrorKind string

const (
	ErrNotInitialized  ErrorKind = "not_initialized"
	ErrTransport       ErrorKind = "transport"
	ErrTimeout         ErrorKind = "timeout"
	ErrRemoteExecution ErrorKind = "remote_execution"
	ErrNotFound        ErrorKind = "not_found"
	ErrInvalidParams   ErrorKind = "invalid_parameters"
)

// Error is the typed error every Endpoint method returns on failure.
type Error struct {
	Kind    ErrorKind
	What    string // populated for ErrNotFound
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNotFound:
		return fmt.Sprintf("not found: %s", e.What)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ToAgentToolError converts an endpoint Error into the agent package's
// ToolError, for embedding in a synthesized ToolResponse content item.
func (e *Error) ToAgentToolError() *agent.ToolError {
	return &agent.ToolError{Kind: string(e.Kind), Message: e.Error()}
}

// ClientInfo identifies the agent to an endpoint during initialize.
type ClientInfo struct {
	Name    string
	Version string
}

// Capabilities an endpoint may advertise in its InitializeResult.
type Capabilities struct {
	Resources bool
	Tools     bool
	Prompts   bool
}

// InitializeResult is returned by a successful initialize call.
type InitializeResult struct {
	Instructions string
	Capabilities Capabilities
}

// Prompt is a named, parameterized prompt template an endpoint can expose.
type Prompt struct {
	Name        string
	Description string
}

// Page is a generic cursor-paginated result; the manager must walk every
// page by re-calling with NextCursor until it is empty.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Endpoint is the contract every Tool Endpoint (component A) implements.
// The manager never re-enters an endpoint until the previous call on that
// endpoint has completed — callers are expected to serialize calls to a
// given Endpoint (typically with a per-endpoint mutex held by the caller,
// e.g. extmgr's registry).
type Endpoint interface {
	Initialize(ctx context.Context, info ClientInfo) (InitializeResult, *Error)
	ListTools(ctx context.Context, cursor string) (Page[agent.Tool], *Error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (content []agent.Content, isError bool, err *Error)
	ListResources(ctx context.Context, cursor string) (Page[agent.Resource], *Error)
	ReadResource(ctx context.Context, uri string) ([]agent.Content, *Error)
	ListPrompts(ctx context.Context, cursor string) (Page[Prompt], *Error)
	GetPrompt(ctx context.Context, name string, arguments map[string]any) (string, *Error)
	// Close shuts the endpoint's transport down (kills the child process, or
	// closes the SSE connection). Called by the manager on remove_extension
	// or when add_extension fails partway through.
	Close(ctx context.Context) error
}

// ListAllTools walks every page of e.ListTools and returns the concatenated
// result, in endpoint-local order.
func ListAllTools(ctx context.Context, e Endpoint) ([]agent.Tool, *Error) {
	var all []agent.Tool
	cursor := ""
	for {
		page, err := e.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}
