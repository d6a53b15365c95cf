package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/endpoint"
)

// TextEditor is a sandboxed read/write/str-replace tool endpoint, grounded
// on the shape of tools/file_writer.go and tools/search_replace.go: every
// path is resolved against WorkingDir and rejected if it would escape it.
type TextEditor struct {
	WorkingDir string
}

// NewTextEditor builds a TextEditor rooted at workingDir ("." if empty).
func NewTextEditor(workingDir string) *TextEditor {
	if workingDir == "" {
		workingDir = "."
	}
	return &TextEditor{WorkingDir: workingDir}
}

type readFileArgs struct {
	Path string `json:"path" mapstructure:"path" jsonschema:"required,description=File path relative to the sandboxed working directory"`
}

type writeFileArgs struct {
	Path    string `json:"path" mapstructure:"path" jsonschema:"required"`
	Content string `json:"content" mapstructure:"content" jsonschema:"required"`
}

type strReplaceArgs struct {
	Path    string `json:"path" mapstructure:"path" jsonschema:"required"`
	Find    string `json:"find" mapstructure:"find" jsonschema:"required,description=Exact text to locate; must match exactly once"`
	Replace string `json:"replace" mapstructure:"replace" jsonschema:"required"`
}

func (t *TextEditor) Initialize(ctx context.Context, info endpoint.ClientInfo) (endpoint.InitializeResult, *endpoint.Error) {
	return endpoint.InitializeResult{
		Instructions: "text_editor exposes read_file, write_file and str_replace, sandboxed under a working directory.",
		Capabilities: endpoint.Capabilities{Tools: true},
	}, nil
}

func (t *TextEditor) ListTools(ctx context.Context, cursor string) (endpoint.Page[agent.Tool], *endpoint.Error) {
	if cursor != "" {
		return endpoint.Page[agent.Tool]{}, nil
	}
	return endpoint.Page[agent.Tool]{Items: []agent.Tool{
		{
			Name:        "read_file",
			Description: "Read the full contents of a file under the working directory.",
			InputSchema: schemaFor(readFileArgs{}),
			Annotations: agent.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        "write_file",
			Description: "Create or overwrite a file under the working directory with the given content.",
			InputSchema: schemaFor(writeFileArgs{}),
		},
		{
			Name:        "str_replace",
			Description: "Replace the one exact occurrence of find with replace in a file.",
			InputSchema: schemaFor(strReplaceArgs{}),
		},
	}}, nil
}

// resolve maps a caller-supplied relative path to an absolute path guaranteed
// to fall under WorkingDir, rejecting absolute paths and any ".." traversal.
func (t *TextEditor) resolve(path string) (string, *endpoint.Error) {
	if path == "" {
		return "", &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: "path is required"}
	}
	if filepath.IsAbs(path) {
		return "", &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: "absolute paths are not allowed"}
	}
	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return "", &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: "path escapes the working directory"}
	}

	absWorkDir, err := filepath.Abs(t.WorkingDir)
	if err != nil {
		return "", &endpoint.Error{Kind: endpoint.ErrTransport, Message: err.Error(), Err: err}
	}
	full := filepath.Join(absWorkDir, cleaned)
	if !strings.HasPrefix(full, absWorkDir) {
		return "", &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: "path escapes the working directory"}
	}
	return full, nil
}

func (t *TextEditor) CallTool(ctx context.Context, name string, arguments map[string]any) ([]agent.Content, bool, *endpoint.Error) {
	switch name {
	case "read_file":
		var a readFileArgs
		if err := mapstructure.Decode(arguments, &a); err != nil {
			return nil, false, &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: err.Error(), Err: err}
		}
		full, perr := t.resolve(a.Path)
		if perr != nil {
			return nil, false, perr
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return []agent.Content{agent.TextContent(err.Error())}, true, nil
		}
		return []agent.Content{agent.TextContent(string(data))}, false, nil

	case "write_file":
		var a writeFileArgs
		if err := mapstructure.Decode(arguments, &a); err != nil {
			return nil, false, &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: err.Error(), Err: err}
		}
		full, perr := t.resolve(a.Path)
		if perr != nil {
			return nil, false, perr
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return []agent.Content{agent.TextContent(err.Error())}, true, nil
		}
		if err := os.WriteFile(full, []byte(a.Content), 0o644); err != nil {
			return []agent.Content{agent.TextContent(err.Error())}, true, nil
		}
		return []agent.Content{agent.TextContent(fmt.Sprintf("wrote %d bytes to %s", len(a.Content), a.Path))}, false, nil

	case "str_replace":
		var a strReplaceArgs
		if err := mapstructure.Decode(arguments, &a); err != nil {
			return nil, false, &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: err.Error(), Err: err}
		}
		full, perr := t.resolve(a.Path)
		if perr != nil {
			return nil, false, perr
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return []agent.Content{agent.TextContent(err.Error())}, true, nil
		}
		count := strings.Count(string(data), a.Find)
		if count != 1 {
			return []agent.Content{agent.TextContent(fmt.Sprintf("find text must match exactly once, matched %d times", count))}, true, nil
		}
		replaced := strings.Replace(string(data), a.Find, a.Replace, 1)
		if err := os.WriteFile(full, []byte(replaced), 0o644); err != nil {
			return []agent.Content{agent.TextContent(err.Error())}, true, nil
		}
		return []agent.Content{agent.TextContent(fmt.Sprintf("replaced 1 occurrence in %s", a.Path))}, false, nil

	default:
		return nil, false, &endpoint.Error{Kind: endpoint.ErrNotFound, What: name}
	}
}

func (t *TextEditor) ListResources(ctx context.Context, cursor string) (endpoint.Page[agent.Resource], *endpoint.Error) {
	return endpoint.Page[agent.Resource]{}, nil
}

func (t *TextEditor) ReadResource(ctx context.Context, uri string) ([]agent.Content, *endpoint.Error) {
	return nil, &endpoint.Error{Kind: endpoint.ErrNotFound, What: uri}
}

func (t *TextEditor) ListPrompts(ctx context.Context, cursor string) (endpoint.Page[endpoint.Prompt], *endpoint.Error) {
	return endpoint.Page[endpoint.Prompt]{}, nil
}

func (t *TextEditor) GetPrompt(ctx context.Context, name string, arguments map[string]any) (string, *endpoint.Error) {
	return "", &endpoint.Error{Kind: endpoint.ErrNotFound, What: name}
}

func (t *TextEditor) Close(ctx context.Context) error { return nil }
