package session

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosecore/agentcore/agent"
)

func intPtr(i int) *int { return &i }

func TestRecorder_Persist_WritesHeaderThenMessages(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil)

	cfg := agent.SessionConfig{ID: "sess-1", WorkingDir: "/work"}
	messages := []agent.Message{
		agent.NewUserText("hello"),
		{Role: agent.RoleAssistant, Content: []agent.MessageContent{{Type: agent.ContentText, Text: "hi"}}},
	}
	usage := agent.Usage{InputTokens: intPtr(10), OutputTokens: intPtr(5)}

	r.Persist(context.Background(), cfg, messages, usage)

	f, err := os.Open(filepath.Join(dir, "sess-1.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var h header
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &h))
	assert.Equal(t, "/work", h.WorkingDir)
	assert.Equal(t, 15, h.TotalTokens)
	assert.Equal(t, 10, h.InputTokens)
	assert.Equal(t, 5, h.OutputTokens)
	assert.Equal(t, 2, h.MessageCount)

	var lines int
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestRecorder_Persist_IdempotentOverSameSnapshot(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil)

	cfg := agent.SessionConfig{ID: "sess-2", WorkingDir: "/work"}
	messages := []agent.Message{agent.NewUserText("hello")}
	usage := agent.Usage{InputTokens: intPtr(3)}

	r.Persist(context.Background(), cfg, messages, usage)
	first, err := os.ReadFile(filepath.Join(dir, "sess-2.jsonl"))
	require.NoError(t, err)

	r.Persist(context.Background(), cfg, messages, usage)
	second, err := os.ReadFile(filepath.Join(dir, "sess-2.jsonl"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecorder_Persist_EmptySessionIDLogsRatherThanPanics(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil)
	assert.NotPanics(t, func() {
		r.Persist(context.Background(), agent.SessionConfig{}, nil, agent.Usage{})
	})
}
