package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShell_RunsAllowedCommand(t *testing.T) {
	sh := NewShell(t.TempDir())
	content, isErr, err := sh.CallTool(context.Background(), "shell", map[string]any{"command": "echo hi"})
	require.Nil(t, err)
	require.False(t, isErr)
	require.Len(t, content, 1)
	assert.Contains(t, content[0].Text, "hi")
}

func TestShell_RejectsDisallowedCommand(t *testing.T) {
	sh := NewShell(t.TempDir())
	content, isErr, err := sh.CallTool(context.Background(), "shell", map[string]any{"command": "rm -rf /"})
	require.Nil(t, err)
	require.True(t, isErr)
	assert.Contains(t, content[0].Text, "not allowed")
}

func TestShell_TimesOutLongRunningCommand(t *testing.T) {
	sh := NewShell(t.TempDir())
	sh.AllowedCommands = nil
	sh.MaxExecutionTime = 20 * time.Millisecond

	_, _, err := sh.CallTool(context.Background(), "shell", map[string]any{"command": "sleep 5"})
	require.NotNil(t, err)
	assert.Equal(t, "timeout", string(err.Kind))
}

func TestShell_NoAllowlistMeansUnrestricted(t *testing.T) {
	sh := NewShell(t.TempDir())
	sh.AllowedCommands = nil
	content, isErr, err := sh.CallTool(context.Background(), "shell", map[string]any{"command": "whoami"})
	require.Nil(t, err)
	require.False(t, isErr)
	assert.NotEmpty(t, content[0].Text)
}
