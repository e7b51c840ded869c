package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://toiletmap.eu.auth0.com/"
	testAudience = "https://www.toiletmap.org.uk/api"
	testClientID = "client-123"
)

var (
	keyOnce sync.Once
	keyA    *rsa.PrivateKey
	keyB    *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		if keyA, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
		if keyB, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return keyA, keyB
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jwkFor(kid string, pub *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// jwksServer serves whatever keys are currently installed and counts hits
type jwksServer struct {
	*httptest.Server
	mu   sync.Mutex
	keys map[string]*rsa.PublicKey
	hits atomic.Int32
	fail atomic.Bool
}

func newJWKSServer(t *testing.T, keys map[string]*rsa.PublicKey) *jwksServer {
	t.Helper()
	s := &jwksServer{keys: keys}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if s.fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		var out []map[string]string
		for kid, pub := range s.keys {
			out = append(out, jwkFor(kid, pub))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": out})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys map[string]*rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims(aud any) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": testIssuer,
		"sub": "auth0|user-1",
		"aud": aud,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

// fakeVerifier maps token -> audience -> claims; anything else fails
type fakeVerifier struct {
	mu     sync.Mutex
	tokens map[string]map[string]jwt.MapClaims
	calls  []string
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{tokens: map[string]map[string]jwt.MapClaims{}}
}

func (f *fakeVerifier) allow(token, audience string, claims jwt.MapClaims) {
	if f.tokens[token] == nil {
		f.tokens[token] = map[string]jwt.MapClaims{}
	}
	f.tokens[token][audience] = claims
}

func (f *fakeVerifier) Verify(_ context.Context, token, audience string) (jwt.MapClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, token+"@"+audience)
	if claims, ok := f.tokens[token][audience]; ok {
		return claims, nil
	}
	return nil, ErrInvalidSignature
}

// fakeUserInfo returns a fixed profile and counts calls
type fakeUserInfo struct {
	profile map[string]any
	err     error
	calls   atomic.Int32
}

func (f *fakeUserInfo) Fetch(_ context.Context, _ string) (map[string]any, error) {
	f.calls.Add(1)
	return f.profile, f.err
}

// fakeLookup returns canned permissions and counts calls
type fakeLookup struct {
	mu    sync.Mutex
	perms map[string][]string
	err   error
	calls int
}

func (f *fakeLookup) UserPermissions(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.perms[userID], nil
}

func (f *fakeLookup) setPerms(userID string, perms []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms[userID] = perms
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
