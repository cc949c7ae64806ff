// Package identity resolves user IDs to display names via the external
// identity provider. Resolution is best-effort: a failed lookup degrades
// display, never bookkeeping.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Resolver maps a user ID to a display name.
type Resolver interface {
	Lookup(ctx context.Context, userID string) (string, error)
}

// HTTPResolver queries an identity endpoint: GET {base}/{userID} returning
// {"name": "..."}.
type HTTPResolver struct {
	base   string
	client *http.Client
}

// NewHTTPResolver creates a resolver against the given base URL.
func NewHTTPResolver(base string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

// Lookup fetches the display name for one user.
func (r *HTTPResolver) Lookup(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/"+userID, nil)
	if err != nil {
		return "", fmt.Errorf("build identity request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity lookup for %s: status %d", userID, resp.StatusCode)
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode identity response: %w", err)
	}
	if body.Name == "" {
		return "", fmt.Errorf("identity lookup for %s: empty name", userID)
	}
	return body.Name, nil
}

// Cached wraps a Resolver with an expiring LRU so flush-time refreshes do
// not hammer the identity provider.
type Cached struct {
	inner  Resolver
	cache  *expirable.LRU[string, string]
	logger zerolog.Logger
}

// NewCached creates a caching resolver.
func NewCached(inner Resolver, size int, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		cache:  expirable.NewLRU[string, string](size, nil, ttl),
		logger: logger.With().Str("component", "identity-cache").Logger(),
	}
}

// Lookup returns the cached name or falls through to the inner resolver.
func (c *Cached) Lookup(ctx context.Context, userID string) (string, error) {
	if name, ok := c.cache.Get(userID); ok {
		return name, nil
	}

	name, err := c.inner.Lookup(ctx, userID)
	if err != nil {
		return "", err
	}

	c.cache.Add(userID, name)
	return name, nil
}

// ResolveAll looks up every user ID, returning the names that resolved.
// Failures are logged and skipped.
func ResolveAll(ctx context.Context, r Resolver, userIDs []string, logger zerolog.Logger) map[string]string {
	names := make(map[string]string, len(userIDs))
	for _, userID := range userIDs {
		name, err := r.Lookup(ctx, userID)
		if err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("Display name lookup failed")
			continue
		}
		names[userID] = name
	}
	return names
}

// Static resolves from a fixed map, for deployments without an identity
// endpoint and for tests.
type Static map[string]string

// Lookup returns the mapped name.
func (s Static) Lookup(_ context.Context, userID string) (string, error) {
	name, ok := s[userID]
	if !ok {
		return "", fmt.Errorf("no name for user %s", userID)
	}
	return name, nil
}
