package goose

import (
	"context"
	"fmt"
	"strings"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/loop"
	"github.com/goosecore/agentcore/provider"
)

// classifyPrompt is the deterministic single-turn prompt smart_approve's
// auxiliary pass sends, grounded on the teacher's reasoning package using an
// LLM call as a classifier (reasoning/chain_of_thought.go's buildPrompt)
// rather than a hand-rolled heuristic.
const classifyPrompt = `Tool call: %s
Arguments: %v

Does invoking this tool only read or inspect state, with no side effects on
the filesystem, network, or any external system? Answer with exactly one
word: "read_only" or "mutating".`

// ReadOnlyClassifier is the concrete loop.ReadOnlyClassifier smart_approve
// mode uses for tools an endpoint did not annotate with read_only_hint. It
// reuses the same provider.Provider the reply loop completes against,
// rather than a second model, per §4.6's domain-stack note.
type ReadOnlyClassifier struct {
	Provider provider.Provider
}

// NewReadOnlyClassifier builds a classifier backed by p.
func NewReadOnlyClassifier(p provider.Provider) *ReadOnlyClassifier {
	return &ReadOnlyClassifier{Provider: p}
}

func (c *ReadOnlyClassifier) ClassifyReadOnly(ctx context.Context, call agent.ToolCall) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, classificationTimeout)
	defer cancel()

	prompt := fmt.Sprintf(classifyPrompt, call.Name, call.Arguments)
	messages := []agent.Message{agent.NewUserText(prompt)}

	msg, _, perr := c.Provider.Complete(ctx, "You are a terse tool-safety classifier. Answer with a single word.", messages, nil)
	if perr != nil {
		return false, perr
	}

	var sb strings.Builder
	for _, content := range msg.Content {
		if content.Type == agent.ContentText {
			sb.WriteString(content.Text)
		}
	}
	answer := strings.ToLower(strings.TrimSpace(sb.String()))
	return strings.Contains(answer, "read_only") && !strings.Contains(answer, "not read_only"), nil
}

var _ loop.ReadOnlyClassifier = (*ReadOnlyClassifier)(nil)
