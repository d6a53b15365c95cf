// Package agent holds the shared data model the rest of the module builds
// on: messages, tool calls, extension configuration, and the other types
// package loop, package permission, package provider, and package truncate
// all exchange.
package agent

import "time"

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType discriminates the MessageContent tagged union.
type ContentType string

const (
	ContentText                ContentType = "text"
	ContentImage               ContentType = "image"
	ContentToolRequest         ContentType = "tool_request"
	ContentToolResponse        ContentType = "tool_response"
	ContentToolConfirmation    ContentType = "tool_confirmation_request"
	ContentFrontendToolRequest ContentType = "frontend_tool_request"
	ContentThinking            ContentType = "thinking"
	ContentRedactedThinking    ContentType = "redacted_thinking"
	ContentEnableExtensionReq  ContentType = "enable_extension_request"
)

// ToolCall is a single tool invocation request: a name and JSON arguments.
// Name must match [A-Za-z0-9_-]+ once unprefixed from its extension.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolAnnotations carries hints an endpoint attaches to a Tool definition.
type ToolAnnotations struct {
	ReadOnlyHint    bool `json:"read_only_hint,omitempty"`
	DestructiveHint bool `json:"destructive_hint,omitempty"`
}

// Tool describes a callable exposed by an extension.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema map[string]any  `json:"input_schema"`
	Annotations ToolAnnotations `json:"annotations,omitempty"`
}

// ContentAudience tags who a result Content item is meant for.
type ContentAudience string

const (
	AudienceUser      ContentAudience = "user"
	AudienceAssistant ContentAudience = "assistant"
)

// Content is one item of a tool call's result (or a resource read result).
type Content struct {
	Type     string            `json:"type"` // "text" | "image" | "resource"
	Text     string            `json:"text,omitempty"`
	MimeType string            `json:"mime_type,omitempty"`
	Data     string            `json:"data,omitempty"` // base64, for images
	URI      string            `json:"uri,omitempty"`  // for resources
	Blob     string            `json:"blob,omitempty"`
	Audience []ContentAudience `json:"audience,omitempty"`
	Priority *float64          `json:"priority,omitempty"`
}

// TextContent is a convenience constructor mirroring the provider wire format's
// most common content item.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// RequestError is returned in place of a ToolCall when the provider emitted a
// request Goose could not parse (malformed arguments, unknown tool name, etc).
type RequestError struct {
	Message string `json:"message"`
}

func (e *RequestError) Error() string { return e.Message }

// ToolError mirrors endpoint.Error but is embedded in MessageContent so it can
// be serialized alongside a ToolResponse without an import cycle on endpoint.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string { return e.Kind + ": " + e.Message }

// MessageContent is the tagged union described in the data model: exactly one
// of the typed fields below is populated, selected by Type.
type MessageContent struct {
	Type ContentType `json:"type"`

	// Text
	Text string `json:"text,omitempty"`

	// Image
	MimeType   string `json:"mime_type,omitempty"`
	Base64Data string `json:"base64_data,omitempty"`

	// ToolRequest / FrontendToolRequest
	ID       string        `json:"id,omitempty"`
	ToolCall *ToolCall     `json:"tool_call,omitempty"`
	CallErr  *RequestError `json:"call_error,omitempty"`

	// ToolResponse
	ToolResult []Content  `json:"tool_result,omitempty"`
	ToolErr    *ToolError `json:"tool_error,omitempty"`

	// ToolConfirmationRequest
	ConfirmName      string         `json:"confirm_name,omitempty"`
	ConfirmArguments map[string]any `json:"confirm_arguments,omitempty"`
	ConfirmPrompt    string         `json:"confirm_prompt,omitempty"`

	// Thinking / RedactedThinking
	ThinkingSignature string `json:"thinking_signature,omitempty"`
	RedactedBlob      string `json:"redacted_blob,omitempty"`

	// EnableExtensionRequest
	ExtensionName string `json:"extension_name,omitempty"`
}

// IsToolRequest reports whether this item carries a dispatchable tool call
// (either a successfully parsed ToolCall or a RequestError standing in for one).
func (c MessageContent) IsToolRequest() bool {
	return c.Type == ContentToolRequest || c.Type == ContentFrontendToolRequest
}

// Message is one turn's worth of content, in emission order.
type Message struct {
	Role      Role             `json:"role"`
	CreatedAt int64            `json:"created_unix_ts"`
	Content   []MessageContent `json:"content"`
}

// NewUserText builds a single-content User message, the shape required at the
// head and tail of a well-formed truncated history.
func NewUserText(text string) Message {
	return Message{
		Role:      RoleUser,
		CreatedAt: time.Now().Unix(),
		Content:   []MessageContent{{Type: ContentText, Text: text}},
	}
}

// IsTextOnlyUser reports whether m is a User message whose content is
// exclusively Text items (the shape required at truncation boundaries).
func (m Message) IsTextOnlyUser() bool {
	if m.Role != RoleUser {
		return false
	}
	for _, c := range m.Content {
		if c.Type != ContentText {
			return false
		}
	}
	return true
}

// ToolRequestIDs returns the ids of every ToolRequest/FrontendToolRequest
// content item in m.
func (m Message) ToolRequestIDs() []string {
	var ids []string
	for _, c := range m.Content {
		if c.IsToolRequest() {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// ToolResponseIDs returns the ids of every ToolResponse content item in m.
func (m Message) ToolResponseIDs() []string {
	var ids []string
	for _, c := range m.Content {
		if c.Type == ContentToolResponse {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Usage reports token accounting for a single provider completion. Absent
// fields are nil, never synthesized to zero.
type Usage struct {
	InputTokens  *int `json:"input_tokens,omitempty"`
	OutputTokens *int `json:"output_tokens,omitempty"`
	TotalTokens  *int `json:"total_tokens,omitempty"`
}

// PermissionDecision is a remembered answer to a tool confirmation prompt.
type PermissionDecision string

const (
	DecisionAllowOnce   PermissionDecision = "allow_once"
	DecisionAlwaysAllow PermissionDecision = "always_allow"
	DecisionDenyOnce    PermissionDecision = "deny_once"
)

// ExtensionKind discriminates the ExtensionConfig tagged union.
type ExtensionKind string

const (
	ExtensionStdio    ExtensionKind = "stdio"
	ExtensionSSE      ExtensionKind = "sse"
	ExtensionBuiltin  ExtensionKind = "builtin"
	ExtensionFrontend ExtensionKind = "frontend"
)

// ExtensionConfig describes how to reach one Tool Endpoint.
type ExtensionConfig struct {
	Kind ExtensionKind `json:"kind"`
	Name string        `json:"name"`

	// Stdio
	Cmd  string   `json:"cmd,omitempty"`
	Args []string `json:"args,omitempty"`

	// Stdio / SSE
	Envs    map[string]string `json:"envs,omitempty"`
	EnvKeys []string          `json:"env_keys,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`

	// SSE
	URI string `json:"uri,omitempty"`

	// Frontend
	Tools        []Tool `json:"tools,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// FrontendTool pairs a tool definition with the frontend extension that
// announced it; dispatch of these never reaches an endpoint.
type FrontendTool struct {
	Name string `json:"name"`
	Tool Tool   `json:"tool"`
}

// Resource is a single named, URI-addressable piece of context an extension
// can surface. A zero Timestamp orders as 2020-01-01 per the data model.
type Resource struct {
	URI       string    `json:"uri"`
	MimeType  string    `json:"mime_type"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Priority  float64   `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// EffectiveTimestamp returns r.Timestamp, or the data model's documented
// default of 2020-01-01 if it is the zero value.
func (r Resource) EffectiveTimestamp() time.Time {
	if r.Timestamp.IsZero() {
		return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return r.Timestamp
}

// SessionConfig drives where session history is appended.
type SessionConfig struct {
	ID         string `json:"id"`
	WorkingDir string `json:"working_dir"`
}

// Mode selects the Permission Gate's dispatch policy.
type Mode string

const (
	ModeAuto         Mode = "auto"
	ModeApprove      Mode = "approve"
	ModeSmartApprove Mode = "smart_approve"
	ModeChat         Mode = "chat"
)
