package auth

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// UserInfoFetcher returns the identity provider's profile for an access token
type UserInfoFetcher interface {
	Fetch(ctx context.Context, accessToken string) (map[string]any, error)
}

// UserInfoClient calls {issuer}userinfo. Responses are cached per token in a
// bounded LRU whose keys are BLAKE2b digests, so raw tokens are never held
// as map keys.
type UserInfoClient struct {
	url        string
	httpClient *http.Client
	cache      *expirable.LRU[string, map[string]any]
	sf         singleflight.Group
}

func NewUserInfoClient(issuer string, httpClient *http.Client, size int, ttl time.Duration) *UserInfoClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if size <= 0 {
		size = 1000
	}
	return &UserInfoClient{
		url:        issuer + "userinfo",
		httpClient: httpClient,
		cache:      expirable.NewLRU[string, map[string]any](size, nil, ttl),
	}
}

func (c *UserInfoClient) Fetch(ctx context.Context, accessToken string) (map[string]any, error) {
	key := cacheKey(accessToken)
	if profile, ok := c.cache.Get(key); ok {
		return profile, nil
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		profile, err := c.fetch(context.WithoutCancel(ctx), accessToken)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, profile)
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func (c *UserInfoClient) fetch(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var profile map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return profile, nil
}

func cacheKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
