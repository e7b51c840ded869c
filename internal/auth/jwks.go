package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnknownKeyID means the kid is absent from the key set even after a refresh
var ErrUnknownKeyID = errors.New("unknown key ID")

// minRefreshInterval bounds how often an unknown kid may force a refetch
const minRefreshInterval = 30 * time.Second

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
	Use string `json:"use"`
}

// parseJWKS returns the RSA signing keys of a JWKS document by kid.
// Non-RSA and encryption keys are skipped.
func parseJWKS(data []byte) (map[string]*rsa.PublicKey, error) {
	var response jwksResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS JSON: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(response.Keys))
	for _, jwk := range response.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") || jwk.Kid == "" {
			continue
		}

		pubKey, err := parseRSAPublicKey(jwk.N, jwk.E)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA key %s: %w", jwk.Kid, err)
		}
		keys[jwk.Kid] = pubKey
	}

	return keys, nil
}

func parseRSAPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, errors.New("invalid modulus or exponent length")
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

// KeySet fetches and caches an issuer's JWKS. Keys are refetched when the
// cache is older than ttl or a token names a kid the cache does not hold.
// Concurrent refreshes collapse into one request.
type KeySet struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	sf singleflight.Group
}

// NewKeySet does not fetch; the first verification does
func NewKeySet(jwksURL string, httpClient *http.Client, ttl time.Duration) *KeySet {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySet{
		url:        jwksURL,
		httpClient: httpClient,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Key returns the public key for kid. A stale cached key is still served
// when the refresh fails; a missing one is reported as ErrKeySetUnavailable.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	key, ok := k.keys[kid]
	fetchedAt := k.fetchedAt
	k.mu.RUnlock()

	now := k.now()
	expired := fetchedAt.IsZero() || (k.ttl > 0 && now.Sub(fetchedAt) > k.ttl)

	if ok && !expired {
		return key, nil
	}
	if !ok && !expired && now.Sub(fetchedAt) < minRefreshInterval {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
	}

	if err := k.refresh(ctx); err != nil {
		if ok {
			return key, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}

	k.mu.RLock()
	key, ok = k.keys[kid]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
	}
	return key, nil
}

func (k *KeySet) refresh(ctx context.Context) error {
	_, err, _ := k.sf.Do("refresh", func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others
		return nil, k.fetch(context.WithoutCancel(ctx))
	})
	return err
}

func (k *KeySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS from %s: %w", k.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read JWKS response: %w", err)
	}

	keys, err := parseJWKS(body)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.keys = keys
	k.fetchedAt = k.now()
	k.mu.Unlock()

	return nil
}
