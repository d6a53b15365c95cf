// Package vertex implements component D: GCP credential loading, token
// caching, exponential-backoff retry, and known-location fallback, shared
// by any provider whose transport is a Vertex AI endpoint.
package vertex

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/goosecore/agentcore/provider"
)

// knownGoodLocations maps a model name to the region it is known to work in,
// used as the single fallback attempt §4.4's location-fallback rule allows.
// Grounded on original_source/gcpvertexai.rs's hard-coded per-model table.
var knownGoodLocations = map[string]string{
	"claude-3-5-sonnet-v2@20241022": "us-east5",
	"claude-3-opus@20240229":        "us-east5",
	"gemini-1.5-pro":                "us-central1",
}

// Client wraps one Vertex AI endpoint configuration: project, region,
// model, and the token cache/retry machinery needed to call it.
type Client struct {
	ProjectID string
	Location  string
	Model     string

	http     *http.Client
	tokens   *TokenCache
	retryCfg RetryConfig

	// endpointURLOverride lets tests point at an httptest server instead of
	// the real aiplatform.googleapis.com host. Nil in production.
	endpointURLOverride func(location string) string
}

// NewClient builds a Client. retryCfg defaults to DefaultRetryConfig when
// zero-valued.
func NewClient(projectID, location, model string, tokens *TokenCache, httpClient *http.Client, retryCfg RetryConfig) *Client {
	if retryCfg.MaxRetries == 0 && retryCfg.InitialInterval == 0 {
		retryCfg = DefaultRetryConfig()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{ProjectID: projectID, Location: location, Model: model, http: httpClient, tokens: tokens, retryCfg: retryCfg}
}

func (c *Client) endpointURL(location string) string {
	if c.endpointURLOverride != nil {
		return c.endpointURLOverride(location)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:rawPredict",
		location, c.ProjectID, location, c.Model,
	)
}

// Post issues body against c.Location, retrying on 429 per the backoff
// schedule. If the response maps to RequestFailed and the model has a known
// good location other than the one configured, the request is retried
// exactly once against that location before giving up.
func (c *Client) Post(ctx context.Context, body []byte) ([]byte, *provider.Error) {
	resp, _, perr := c.postAt(ctx, c.Location, body)
	if perr == nil {
		return resp, nil
	}
	if perr.Kind != provider.ErrRequestFailed {
		return nil, perr
	}

	fallback, ok := knownGoodLocations[c.Model]
	if !ok || fallback == c.Location {
		return nil, perr
	}

	resp, _, perr = c.postAt(ctx, fallback, body)
	return resp, perr
}

func (c *Client) postAt(ctx context.Context, location string, body []byte) ([]byte, int, *provider.Error) {
	buildReq := func(ctx context.Context) (*http.Request, error) {
		token, err := c.tokens.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("vertex: get token: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(location), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	}

	return PostWithRetry(ctx, c.http, buildReq, c.retryCfg)
}
