package anthropic

import (
	"context"
	"encoding/json"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/provider"
	"github.com/goosecore/agentcore/vertex"
)

// VertexProvider completes against Claude-on-Vertex rather than the direct
// Anthropic Messages API: same wire request/response shapes buildRequest and
// parseResponse already implement, posted through component D's
// credential/retry/location-fallback client (vertex.Client) instead of a
// bare API key. Grounded on vertex/client.go's endpointURL, which already
// targets the anthropic publisher's rawPredict route.
type VertexProvider struct {
	cfg    Config
	client *vertex.Client
}

// NewOnVertex builds a VertexProvider. Model and MaxTokens/Temperature
// defaults are applied the same way New applies them; APIKey is unused (the
// Vertex client authenticates via the credential chain instead).
func NewOnVertex(client *vertex.Client, cfg Config) *VertexProvider {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &VertexProvider{cfg: cfg, client: client}
}

func (p *VertexProvider) Metadata() provider.Metadata {
	return provider.Metadata{
		Name:         "anthropic-vertex",
		DisplayName:  "Claude on Vertex AI",
		Description:  "Claude models served through GCP Vertex AI",
		DefaultModel: p.cfg.Model,
		DocURL:       "https://cloud.google.com/vertex-ai/generative-ai/docs/partner-models/use-claude",
		ConfigKeys:   []string{"GCP_PROJECT_ID", "GCP_LOCATION"},
	}
}

func (p *VertexProvider) GetModelConfig() provider.ModelConfig {
	maxTokens := p.cfg.MaxTokens
	temp := p.cfg.Temperature
	return provider.ModelConfig{
		ModelName:     p.cfg.Model,
		TokenizerName: "cl100k_base",
		MaxTokens:     &maxTokens,
		Temperature:   &temp,
	}
}

// Complete implements provider.Provider the same way Provider.Complete does,
// swapping the transport for the Vertex client's retrying Post.
func (p *VertexProvider) Complete(ctx context.Context, system string, messages []agent.Message, tools []agent.Tool) (agent.Message, agent.Usage, *provider.Error) {
	wireReq := buildRequest(p.cfg, system, messages, tools)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: "marshal request", Err: err}
	}

	respBody, perr := p.client.Post(ctx, body)
	if perr != nil {
		return agent.Message{}, agent.Usage{}, perr
	}

	var wireResp wireResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: "decode response", Err: err}
	}
	if wireResp.Error != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: wireResp.Error.Message}
	}

	msg, usage := parseResponse(wireResp)
	return msg, usage, nil
}
