// Package builtin ships the two illustrative Builtin Tool Endpoints the
// cmd/goosecore demo registers out of the box: text_editor and shell.
// Neither talks MCP; both implement endpoint.Endpoint directly, in-process,
// the way a Builtin ExtensionConfig is documented to run.
package builtin

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflector is shared across both tools' schema generation so every
// produced schema follows the same draft/ref conventions.
var reflector = &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}

// schemaFor reflects a zero-valued argument struct into the map[string]any
// shape agent.Tool.InputSchema expects, exercising invopop/jsonschema
// instead of hand-written JSON schema literals.
func schemaFor(v any) map[string]any {
	s := reflector.Reflect(v)
	b, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}
