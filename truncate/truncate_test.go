package truncate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosecore/agentcore/agent"
)

func userText(text string) agent.Message {
	return agent.Message{Role: agent.RoleUser, Content: []agent.MessageContent{{Type: agent.ContentText, Text: text}}}
}

func assistantToolReq(id string) agent.Message {
	return agent.Message{Role: agent.RoleAssistant, Content: []agent.MessageContent{
		{Type: agent.ContentToolRequest, ID: id, ToolCall: &agent.ToolCall{Name: "t"}},
	}}
}

func userToolResp(id string) agent.Message {
	return agent.Message{Role: agent.RoleUser, Content: []agent.MessageContent{
		{Type: agent.ContentToolResponse, ID: id, ToolResult: []agent.Content{agent.TextContent("ok")}},
	}}
}

func assistantText(text string) agent.Message {
	return agent.Message{Role: agent.RoleAssistant, Content: []agent.MessageContent{{Type: agent.ContentText, Text: text}}}
}

// Scenario 1 from the spec: tool pair preservation.
func TestTruncate_ToolPairPreservation(t *testing.T) {
	messages := []agent.Message{
		userText("u1"),         // 10
		assistantToolReq("t1"), // 20
		userToolResp("t1"),     // 10
		userText("u2"),         // 10
		assistantText("a2"),    // 25
		userText("u3"),         // 5
	}
	counts := []int{10, 20, 10, 10, 25, 5}

	out, err := Truncate(messages, counts, 50)
	require.NoError(t, err)

	require.NotEmpty(t, out)
	assert.True(t, out[0].IsTextOnlyUser())
	assert.True(t, out[len(out)-1].IsTextOnlyUser())

	reqIDs := map[string]bool{}
	respIDs := map[string]bool{}
	for _, m := range out {
		for _, id := range m.ToolRequestIDs() {
			reqIDs[id] = true
		}
		for _, id := range m.ToolResponseIDs() {
			respIDs[id] = true
		}
	}
	assert.Equal(t, reqIDs, respIDs, "every surviving tool request must be paired with its response and vice versa")
}

func TestTruncate_NoTruncationWhenWithinBudget(t *testing.T) {
	messages := []agent.Message{userText("a"), assistantText("b"), userText("c")}
	counts := []int{5, 5, 5}
	out, err := Truncate(messages, counts, 100)
	require.NoError(t, err)
	assert.Equal(t, messages, out)
}

func TestTruncate_ExactlyAtBudgetNotTruncated(t *testing.T) {
	messages := []agent.Message{userText("a"), userText("b")}
	counts := []int{10, 10}
	out, err := Truncate(messages, counts, 20)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestTruncate_BudgetMinusOneTruncatesSmallestPrefix(t *testing.T) {
	messages := []agent.Message{userText("a"), userText("b")}
	counts := []int{10, 10}
	out, err := Truncate(messages, counts, 19)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Content[0].Text)
}

func TestTruncate_ImpossibleWhenSmallestMessageExceedsBudget(t *testing.T) {
	messages := []agent.Message{userText("a")}
	counts := []int{100}
	_, err := Truncate(messages, counts, 10)
	assert.ErrorIs(t, err, ErrNotPossible)
}

func TestTruncate_MismatchedLengthsErrorsWithoutMutating(t *testing.T) {
	messages := []agent.Message{userText("a")}
	counts := []int{1, 2}
	orig := append([]agent.Message(nil), messages...)
	_, err := Truncate(messages, counts, 10)
	require.Error(t, err)
	assert.Equal(t, orig, messages)
}

func TestTruncate_MultiToolChainDropsWholeChainAsUnit(t *testing.T) {
	messages := []agent.Message{
		userText("start"),
		assistantToolReq("a"),
		userToolResp("a"),
		assistantToolReq("b"),
		userToolResp("b"),
		userText("end"),
	}
	counts := []int{5, 5, 5, 5, 5, 5}
	out, err := Truncate(messages, counts, 10)
	require.NoError(t, err)
	assert.True(t, out[0].IsTextOnlyUser())
	assert.True(t, out[len(out)-1].IsTextOnlyUser())
}
