package vertex

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/goosecore/agentcore/provider"
)

// RetryConfig holds the backoff constants from §4.4, overridable via the
// GCP_MAX_RETRIES / GCP_INITIAL_RETRY_INTERVAL_MS / GCP_BACKOFF_MULTIPLIER /
// GCP_MAX_RETRY_INTERVAL_MS configuration keys.
type RetryConfig struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxRetries      int
}

// DefaultRetryConfig matches the spec's literal defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 5000 * time.Millisecond,
		Multiplier:      2.0,
		MaxInterval:     320000 * time.Millisecond,
		MaxRetries:      6,
	}
}

// jitteredBackOff implements backoff.BackOff with the exact delay formula
// from §4.4: the first NextBackOff call (attempt 0) returns no delay;
// attempt n>=1 is initial*multiplier^(n-1) capped at max, scaled by a
// uniform jitter in [0.8, 1.2]. Used in place of backoff/v5's own
// ExponentialBackOff, whose randomization factor produces a
// differently-shaped jitter window than the spec calls for.
type jitteredBackOff struct {
	cfg     RetryConfig
	attempt int
	jitter  func() float64
}

var _ backoff.BackOff = (*jitteredBackOff)(nil)

func newJitteredBackOff(cfg RetryConfig) *jitteredBackOff {
	return &jitteredBackOff{cfg: cfg, jitter: defaultJitter}
}

func (b *jitteredBackOff) NextBackOff() time.Duration {
	n := b.attempt
	b.attempt++
	if n <= 0 {
		return 0
	}
	base := float64(b.cfg.InitialInterval) * pow(b.cfg.Multiplier, float64(n-1))
	if base > float64(b.cfg.MaxInterval) {
		base = float64(b.cfg.MaxInterval)
	}
	return time.Duration(base * b.jitter())
}

func (b *jitteredBackOff) Reset() { b.attempt = 0 }

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

func defaultJitter() float64 {
	return 0.8 + rand.Float64()*0.4
}

// PostWithRetry issues the request built by buildReq (rebuilt on every
// attempt, since http.Request bodies are single-use) and retries on HTTP
// 429 per §4.4's backoff schedule, sleeping for the duration a
// backoff.BackOff produces between attempts. Any non-429 status is
// returned immediately with the status mapping in §4.4. After MaxRetries
// 429s it returns RateLimitExceeded with the last observed body.
func PostWithRetry(ctx context.Context, client *http.Client, buildReq func(ctx context.Context) (*http.Request, error), cfg RetryConfig) ([]byte, int, *provider.Error) {
	bo := newJitteredBackOff(cfg)

	var lastBody []byte
	var lastStatus int

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			d := bo.NextBackOff()
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, 0, &provider.Error{Kind: provider.ErrRequestFailed, Message: ctx.Err().Error(), Err: ctx.Err()}
			case <-timer.C:
			}
		} else {
			bo.NextBackOff()
		}

		req, err := buildReq(ctx)
		if err != nil {
			return nil, 0, &provider.Error{Kind: provider.ErrRequestFailed, Message: "build request", Err: err}
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, 0, &provider.Error{Kind: provider.ErrRequestFailed, Message: "http do", Err: err}
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		lastBody, lastStatus = body, resp.StatusCode

		if resp.StatusCode != http.StatusTooManyRequests {
			return body, resp.StatusCode, statusToProviderError(resp.StatusCode, string(body))
		}
		if attempt >= cfg.MaxRetries {
			return nil, lastStatus, &provider.Error{Kind: provider.ErrRateLimitExceeded, Message: string(lastBody)}
		}
	}
}

func statusToProviderError(status int, body string) *provider.Error {
	if status >= 200 && status < 300 {
		return nil
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &provider.Error{Kind: provider.ErrAuthentication, Message: body}
	default:
		return &provider.Error{Kind: provider.ErrRequestFailed, Message: fmt.Sprintf("status %d: %s", status, body)}
	}
}
