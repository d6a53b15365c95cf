package vertex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosecore/agentcore/provider"
)

// TestPostWithRetry_TwoRateLimitsThenSuccess reproduces the spec's literal
// scenario 2: a 429, then another 429, then a 200. The two retry delays are
// attempt 1 (~5000ms * jitter) and attempt 2 (~10000ms * jitter), whose
// jittered sum must fall within [12000ms, 18000ms] given the [0.8,1.2]
// jitter window (unjittered sum is 15000ms).
func TestPostWithRetry_TwoRateLimitsThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := DefaultRetryConfig()
	start := time.Now()
	body, status, perr := PostWithRetry(context.Background(), srv.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}, cfg)
	elapsed := time.Since(start)

	require.Nil(t, perr)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, elapsed, 12*time.Second)
	assert.LessOrEqual(t, elapsed, 18*time.Second)
}

func TestPostWithRetry_ExhaustsRetriesReturnsRateLimitExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := RetryConfig{InitialInterval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxRetries: 2}
	_, _, perr := PostWithRetry(context.Background(), srv.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}, cfg)

	require.NotNil(t, perr)
	assert.Equal(t, provider.ErrRateLimitExceeded, perr.Kind)
}

func TestPostWithRetry_FirstAttemptHasNoDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultRetryConfig()
	start := time.Now()
	_, status, perr := PostWithRetry(context.Background(), srv.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}, cfg)
	elapsed := time.Since(start)

	require.Nil(t, perr)
	assert.Equal(t, http.StatusOK, status)
	assert.Less(t, elapsed, time.Second)
}

func TestPostWithRetry_AuthFailureMapsToAuthentication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := DefaultRetryConfig()
	_, _, perr := PostWithRetry(context.Background(), srv.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}, cfg)

	require.NotNil(t, perr)
	assert.Equal(t, provider.ErrAuthentication, perr.Kind)
}
