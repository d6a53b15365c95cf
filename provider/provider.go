// Package provider defines the polymorphic LLM adapter contract: convert
// internal messages to/from a wire format, call a remote model, and return
// an assistant message plus usage, or a typed error.
package provider

import (
	"context"
	"fmt"

	"github.com/goosecore/agentcore/agent"
)

// ErrorKind discriminates the typed errors a provider call can fail with.
type ErrorKind string

const (
	ErrAuthentication        ErrorKind = "authentication"
	ErrRequestFailed         ErrorKind = "request_failed"
	ErrRateLimitExceeded     ErrorKind = "rate_limit_exceeded"
	ErrServerError           ErrorKind = "server_error"
	ErrContextLengthExceeded ErrorKind = "context_length_exceeded"
	ErrUsageError            ErrorKind = "usage_error"
)

// Error is the typed error Provider.Complete returns on failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Metadata is the pure, static description of a provider implementation.
type Metadata struct {
	Name         string
	DisplayName  string
	Description  string
	DefaultModel string
	KnownModels  []string
	DocURL       string
	ConfigKeys   []string
}

// ModelConfig is the provider's resolved runtime configuration for one model.
type ModelConfig struct {
	ModelName     string
	TokenizerName string
	ContextLimit  *int
	Temperature   *float64
	MaxTokens     *int
	Toolshim      bool
	ToolshimModel string
}

// Provider is the contract every LLM adapter (component C) implements. A
// small closed set of operations behind an interface, per the design note
// preferring interface abstraction over a per-provider inheritance
// hierarchy.
type Provider interface {
	Metadata() Metadata
	GetModelConfig() ModelConfig
	Complete(ctx context.Context, system string, messages []agent.Message, tools []agent.Tool) (agent.Message, agent.Usage, *Error)
}
