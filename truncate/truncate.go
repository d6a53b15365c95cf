// Package truncate implements the context-window truncation strategy: it
// shrinks a message list to fit a token budget while preserving tool-call /
// tool-response pairing and the text-only-User shape required at both ends
// of the surviving sequence.
package truncate

import (
	"errors"
	"fmt"

	"github.com/goosecore/agentcore/agent"
)

// ErrNotPossible is returned when even the smallest single text-only User
// message exceeds the budget.
var ErrNotPossible = errors.New("truncate: not possible to truncate within context limit")

// ErrExhausted is returned when, after removing everything it can while
// preserving well-formedness, the list is still over budget or empty.
var ErrExhausted = errors.New("truncate: unable to truncate within context window")

// Tokens counts one message's cost against the budget. Implementations pass
// a tiktoken-backed estimator; a constant func is fine for tests.
type Tokens func(m agent.Message) int

// Truncate applies the oldest-first strategy described in the spec:
//  1. if already within budget and well-formed, return unchanged;
//  2. fail ErrNotPossible if the smallest text-only User message alone
//     exceeds budget;
//  3. walk oldest-to-newest marking messages for removal until the running
//     total is within budget, collecting touched tool ids as we go;
//  4. a second pass marks any remaining message whose tool ids intersect
//     the collected set, so a pair is always removed atomically;
//  5. apply removals, then trim the head/tail until both boundaries are
//     text-only User messages;
//  6. fail ErrExhausted if that leaves nothing, or still over budget.
//
// messages and counts must have the same length; Truncate never mutates its
// input slices.
func Truncate(messages []agent.Message, counts []int, budget int) ([]agent.Message, error) {
	if len(messages) != len(counts) {
		return nil, fmt.Errorf("truncate: message/count length mismatch (%d vs %d)", len(messages), len(counts))
	}
	if len(messages) == 0 {
		return nil, ErrExhausted
	}

	total := sum(counts)
	if total <= budget && wellFormedBoundaries(messages) {
		return append([]agent.Message(nil), messages...), nil
	}

	if minTextOnlyUserCost(messages, counts) > budget {
		return nil, ErrNotPossible
	}

	remove := make([]bool, len(messages))
	touched := map[string]bool{}

	running := total
	for i := 0; i < len(messages) && running > budget; i++ {
		remove[i] = true
		running -= counts[i]
		for _, id := range messages[i].ToolRequestIDs() {
			touched[id] = true
		}
		for _, id := range messages[i].ToolResponseIDs() {
			touched[id] = true
		}
	}

	for i, m := range messages {
		if remove[i] {
			continue
		}
		for _, id := range m.ToolRequestIDs() {
			if touched[id] {
				remove[i] = true
				break
			}
		}
		if remove[i] {
			continue
		}
		for _, id := range m.ToolResponseIDs() {
			if touched[id] {
				remove[i] = true
				break
			}
		}
	}

	var kept []agent.Message
	var keptCounts []int
	for i, m := range messages {
		if !remove[i] {
			kept = append(kept, m)
			keptCounts = append(keptCounts, counts[i])
		}
	}

	kept, keptCounts = trimToTextOnlyUserBoundaries(kept, keptCounts)

	if len(kept) == 0 {
		return nil, ErrExhausted
	}
	if sum(keptCounts) > budget {
		return nil, ErrExhausted
	}

	return kept, nil
}

func wellFormedBoundaries(messages []agent.Message) bool {
	if len(messages) == 0 {
		return false
	}
	return messages[0].IsTextOnlyUser() && messages[len(messages)-1].IsTextOnlyUser()
}

func minTextOnlyUserCost(messages []agent.Message, counts []int) int {
	min := -1
	for i, m := range messages {
		if !m.IsTextOnlyUser() {
			continue
		}
		if min == -1 || counts[i] < min {
			min = counts[i]
		}
	}
	if min == -1 {
		// No text-only User message exists at all: truncation can never
		// reach a well-formed boundary, so treat as impossible.
		return 1 << 30
	}
	return min
}

func trimToTextOnlyUserBoundaries(messages []agent.Message, counts []int) ([]agent.Message, []int) {
	start := 0
	for start < len(messages) && !messages[start].IsTextOnlyUser() {
		start++
	}
	end := len(messages) - 1
	for end >= start && !messages[end].IsTextOnlyUser() {
		end--
	}
	if start > end {
		return nil, nil
	}
	return messages[start : end+1], counts[start : end+1]
}

func sum(counts []int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}
