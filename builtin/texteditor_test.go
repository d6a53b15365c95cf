package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextEditor_WriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	te := NewTextEditor(dir)
	ctx := context.Background()

	_, isErr, err := te.CallTool(ctx, "write_file", map[string]any{"path": "notes.txt", "content": "hello"})
	require.Nil(t, err)
	require.False(t, isErr)

	content, isErr, err := te.CallTool(ctx, "read_file", map[string]any{"path": "notes.txt"})
	require.Nil(t, err)
	require.False(t, isErr)
	require.Len(t, content, 1)
	assert.Equal(t, "hello", content[0].Text)
}

func TestTextEditor_ReadFileToolIsReadOnlyHinted(t *testing.T) {
	te := NewTextEditor(t.TempDir())
	page, err := te.ListTools(context.Background(), "")
	require.Nil(t, err)
	for _, tool := range page.Items {
		if tool.Name == "read_file" {
			assert.True(t, tool.Annotations.ReadOnlyHint)
			return
		}
	}
	t.Fatal("read_file tool not listed")
}

func TestTextEditor_PathEscapeRejected(t *testing.T) {
	te := NewTextEditor(t.TempDir())
	_, _, err := te.CallTool(context.Background(), "read_file", map[string]any{"path": "../../etc/passwd"})
	require.NotNil(t, err)
	assert.Equal(t, "invalid_parameters", string(err.Kind))
}

func TestTextEditor_StrReplaceRequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("foo foo"), 0o644))
	te := NewTextEditor(dir)

	content, isErr, err := te.CallTool(context.Background(), "str_replace", map[string]any{"path": "a.txt", "find": "foo", "replace": "bar"})
	require.Nil(t, err)
	require.True(t, isErr)
	assert.Contains(t, content[0].Text, "matched 2 times")
}

func TestTextEditor_StrReplaceAppliesSingleMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("foo bar"), 0o644))
	te := NewTextEditor(dir)

	_, isErr, err := te.CallTool(context.Background(), "str_replace", map[string]any{"path": "a.txt", "find": "foo", "replace": "baz"})
	require.Nil(t, err)
	require.False(t, isErr)

	data, readErr := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, readErr)
	assert.Equal(t, "baz bar", string(data))
}
