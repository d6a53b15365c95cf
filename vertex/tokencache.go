package vertex

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// refreshMargin is subtracted from a token's reported expiry so get_token
// always returns with enough of the token's lifetime left to use it.
const refreshMargin = 30 * time.Second

// TokenCache holds a single cached access token per provider instance, with
// double-checked-locking refresh: GetToken takes a read lock and returns
// the cached token if it has not expired; otherwise it upgrades to a write
// lock, re-checks (in case a racing writer already refreshed), and refreshes
// exactly once.
type TokenCache struct {
	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time

	creds  *Credentials
	client *http.Client
}

// NewTokenCache builds an empty cache for creds, refreshed lazily on first
// GetToken.
func NewTokenCache(creds *Credentials, client *http.Client) *TokenCache {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenCache{creds: creds, client: client}
}

// GetToken returns a valid access token, refreshing it if necessary. At
// most one token-exchange network call is in flight at any instant across
// concurrent callers, since the refresh path is serialized by mu's write
// lock and every racing goroutine re-checks freshness after acquiring it.
func (c *TokenCache) GetToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if time.Now().Before(c.expiresAt) {
		token := c.accessToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	token, expiresIn, err := Exchange(ctx, c.client, c.creds)
	if err != nil {
		return "", err
	}

	c.accessToken = token
	c.expiresAt = time.Now().Add(expiresIn - refreshMargin)
	return c.accessToken, nil
}
