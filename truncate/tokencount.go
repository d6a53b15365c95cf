package truncate

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/goosecore/agentcore/agent"
)

// NewTiktokenCounter builds a Tokens estimator backed by tiktoken-go,
// grounded on the teacher's utils.TokenCounter (pkg/utils/tokens.go): per
// OpenAI's counting convention each message costs a flat 3-token overhead
// plus the encoded length of its role and text content. Falls back to the
// cl100k_base encoding when modelName isn't recognized, matching the
// teacher's own fallback.
func NewTiktokenCounter(modelName string) (Tokens, error) {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	var mu sync.Mutex
	return func(m agent.Message) int {
		mu.Lock()
		defer mu.Unlock()

		total := 3 + len(enc.Encode(string(m.Role), nil, nil))
		for _, c := range m.Content {
			total += len(enc.Encode(c.Text, nil, nil))
			if c.ToolCall != nil {
				total += len(enc.Encode(c.ToolCall.Name, nil, nil))
			}
		}
		return total
	}, nil
}
