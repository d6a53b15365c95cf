package builtin

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/endpoint"
)

// Shell runs a shell command with a bounded timeout, grounded on
// tools/command.go's allowlist-plus-timeout design. Unlike text_editor's
// read_file, no tool annotation marks this read-only, so it always goes
// through the Permission Gate's approve/smart_approve path.
type Shell struct {
	WorkingDir       string
	AllowedCommands  []string // empty means no allowlist restriction
	MaxExecutionTime time.Duration
}

// NewShell builds a Shell with the teacher's default allowlist and a 30s
// timeout.
func NewShell(workingDir string) *Shell {
	if workingDir == "" {
		workingDir = "."
	}
	return &Shell{
		WorkingDir: workingDir,
		AllowedCommands: []string{
			"cat", "head", "tail", "ls", "find", "grep", "wc", "pwd",
			"git", "go", "echo", "date",
		},
		MaxExecutionTime: 30 * time.Second,
	}
}

type shellArgs struct {
	Command    string `json:"command" mapstructure:"command" jsonschema:"required,description=Shell command to run (supports pipes and redirects)"`
	WorkingDir string `json:"working_dir,omitempty" mapstructure:"working_dir" jsonschema:"description=Overrides the endpoint's default working directory"`
}

func (s *Shell) Initialize(ctx context.Context, info endpoint.ClientInfo) (endpoint.InitializeResult, *endpoint.Error) {
	return endpoint.InitializeResult{
		Instructions: "shell runs a single allow-listed command per call, with a bounded execution timeout.",
		Capabilities: endpoint.Capabilities{Tools: true},
	}, nil
}

func (s *Shell) ListTools(ctx context.Context, cursor string) (endpoint.Page[agent.Tool], *endpoint.Error) {
	if cursor != "" {
		return endpoint.Page[agent.Tool]{}, nil
	}
	return endpoint.Page[agent.Tool]{Items: []agent.Tool{
		{
			Name:        "shell",
			Description: "Execute a shell command and return its combined stdout/stderr.",
			InputSchema: schemaFor(shellArgs{}),
		},
	}}, nil
}

// baseCommand extracts the first command word from a pipe/redirect/semicolon
// chain, matching tools/command.go's extractBaseCommand.
func baseCommand(command string) string {
	parts := strings.FieldsFunc(command, func(r rune) bool {
		return r == '|' || r == '>' || r == '<' || r == ';'
	})
	if len(parts) == 0 {
		return ""
	}
	fields := strings.Fields(strings.TrimSpace(parts[0]))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (s *Shell) allowed(command string) bool {
	if len(s.AllowedCommands) == 0 {
		return true
	}
	base := baseCommand(command)
	for _, allowed := range s.AllowedCommands {
		if base == allowed {
			return true
		}
	}
	return false
}

func (s *Shell) CallTool(ctx context.Context, name string, arguments map[string]any) ([]agent.Content, bool, *endpoint.Error) {
	if name != "shell" {
		return nil, false, &endpoint.Error{Kind: endpoint.ErrNotFound, What: name}
	}

	var a shellArgs
	if err := mapstructure.Decode(arguments, &a); err != nil {
		return nil, false, &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: err.Error(), Err: err}
	}
	if a.Command == "" {
		return nil, false, &endpoint.Error{Kind: endpoint.ErrInvalidParams, Message: "command is required"}
	}
	if !s.allowed(a.Command) {
		return []agent.Content{agent.TextContent(fmt.Sprintf("command not allowed: %s", baseCommand(a.Command)))}, true, nil
	}

	workDir := a.WorkingDir
	if workDir == "" {
		workDir = s.WorkingDir
	}

	timeout := s.MaxExecutionTime
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", a.Command)
	cmd.Dir = workDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() != nil {
			return nil, false, &endpoint.Error{Kind: endpoint.ErrTimeout, Message: runCtx.Err().Error(), Err: err}
		}
		return []agent.Content{agent.TextContent(string(output) + "\n" + err.Error())}, true, nil
	}
	return []agent.Content{agent.TextContent(string(output))}, false, nil
}

func (s *Shell) ListResources(ctx context.Context, cursor string) (endpoint.Page[agent.Resource], *endpoint.Error) {
	return endpoint.Page[agent.Resource]{}, nil
}

func (s *Shell) ReadResource(ctx context.Context, uri string) ([]agent.Content, *endpoint.Error) {
	return nil, &endpoint.Error{Kind: endpoint.ErrNotFound, What: uri}
}

func (s *Shell) ListPrompts(ctx context.Context, cursor string) (endpoint.Page[endpoint.Prompt], *endpoint.Error) {
	return endpoint.Page[endpoint.Prompt]{}, nil
}

func (s *Shell) GetPrompt(ctx context.Context, name string, arguments map[string]any) (string, *endpoint.Error) {
	return "", &endpoint.Error{Kind: endpoint.ErrNotFound, What: name}
}

func (s *Shell) Close(ctx context.Context) error { return nil }

// Registry maps a Builtin ExtensionConfig's name to its in-process
// constructor, so the Agent surface can turn an ExtensionConfig{Kind:
// ExtensionBuiltin} into a real endpoint.Endpoint without a re-exec.
func Registry(workingDir string) map[string]func() endpoint.Endpoint {
	return map[string]func() endpoint.Endpoint{
		"text_editor": func() endpoint.Endpoint { return NewTextEditor(workingDir) },
		"shell":       func() endpoint.Endpoint { return NewShell(workingDir) },
	}
}
