// Package enrich augments aggregated insights with Spotify catalog
// metadata, fetched in batches under a shared client-credentials token.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenFreshness is the window after which the shared bearer token is
// refreshed before use. Spotify client-credentials tokens live one hour;
// refreshing at 50 minutes keeps a session from straddling expiry.
const tokenFreshness = 50 * time.Minute

// tokenCache is a single-slot cache for the process-wide bearer token.
// Refresh is coalesced: the mutex admits one refresher at a time, and
// waiters observe the token it fetched instead of issuing their own
// refresh calls.
type tokenCache struct {
	fetch func(ctx context.Context) (*oauth2.Token, error)
	now   func() time.Time

	mu        sync.Mutex
	token     *oauth2.Token
	fetchedAt time.Time
}

func newTokenCache(cfg *clientcredentials.Config) *tokenCache {
	return &tokenCache{
		fetch: cfg.Token,
		now:   time.Now,
	}
}

// Token returns the cached token, refreshing it first when it is older
// than the freshness window.
func (c *tokenCache) Token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && c.now().Sub(c.fetchedAt) < tokenFreshness {
		return c.token, nil
	}

	token, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching access token: %w", err)
	}

	c.token = token
	c.fetchedAt = c.now()
	return token, nil
}
