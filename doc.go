// Package goosecore implements an AI coding agent's runtime core: the
// Agent Reply Loop, the Extension Manager and its Tool Endpoints (stdio and
// SSE MCP servers, plus the in-process text_editor and shell builtins), the
// Permission Gate, context-window truncation, the Session Recorder, and the
// Anthropic/Vertex providers, wired together by package goose into the
// surface cmd/goosecore exposes as a CLI.
//
// # Quick start
//
// Build and run against a config file:
//
//	go run ./cmd/goosecore run --config goosecore.yaml
//
// Or configure entirely from the environment:
//
//	GOOSE_PROVIDER=anthropic GOOSE_MODEL=claude-3-5-sonnet-latest \
//	ANTHROPIC_API_KEY=sk-... go run ./cmd/goosecore run
//
// # Key packages
//
//   - agent: the shared message/tool/extension data model
//   - loop: the Agent Reply Loop state machine
//   - extmgr: the Extension Manager
//   - endpoint / endpoint/mcpendpoint: the Tool Endpoint contract and its
//     stdio/SSE MCP transports
//   - builtin: the text_editor and shell in-process Tool Endpoints
//   - permission: the Permission Gate
//   - truncate: context-window truncation
//   - session: the Session Recorder
//   - provider / provider/anthropic: the Provider contract and its
//     Anthropic (direct and Vertex-routed) implementation
//   - vertex: GCP credential loading, token caching, and retry
//   - config: YAML + environment configuration, with fsnotify-backed
//     hot reload
//   - goose: the Agent surface assembling all of the above
package goosecore
