package auth

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toiletmap/toiletmap-api/internal/models"
	pkglogger "github.com/toiletmap/toiletmap-api/pkg/logger"
)

type middlewareFixture struct {
	mw       *Middleware
	verifier *fakeVerifier
	lookup   *fakeLookup
	audit    *bytes.Buffer
}

func newMiddlewareFixture(withLookup bool) *middlewareFixture {
	v := newFakeVerifier()
	store := newTestStore()
	res := NewResolver(v, store, nil, testAudience, testClientID, discardLogger())

	f := &middlewareFixture{verifier: v, audit: &bytes.Buffer{}}
	var lookup PermissionLookup
	if withLookup {
		f.lookup = &fakeLookup{perms: map[string][]string{}}
		lookup = f.lookup
	}
	gate := NewGate("access:admin", lookup, nil, discardLogger())
	audit := pkglogger.NewAuditLogger(slog.New(slog.NewJSONHandler(f.audit, nil)))
	f.mw = NewMiddleware(res, gate, store, audit, nil, discardLogger())
	return f
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Dataset Explorer"))
})

func TestResolve_StoresResultInContext(t *testing.T) {
	f := newMiddlewareFixture(false)
	f.verifier.allow("tok", testAudience, claimsFor("auth0|1", nil))

	var seen *models.AuthResult
	h := f.mw.Resolve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AuthResultFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer tok")
	h.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, seen)
	assert.Equal(t, "auth0|1", seen.User.Sub)
}

func TestResolve_RunsOnce(t *testing.T) {
	f := newMiddlewareFixture(false)
	f.verifier.allow("tok", testAudience, claimsFor("auth0|1", nil))

	h := f.mw.Resolve(f.mw.Resolve(okHandler))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer tok")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Len(t, f.verifier.calls, 1)
}

func TestResolve_AuditsRejectedCredentials(t *testing.T) {
	f := newMiddlewareFixture(false)

	var seen *models.AuthResult
	h := f.mw.Resolve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AuthResultFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer forged")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Nil(t, seen)
	assert.Contains(t, f.audit.String(), `"event_type":"session_rejected"`)
	assert.Contains(t, f.audit.String(), `"success":false`)
}

func TestRequireUser(t *testing.T) {
	f := newMiddlewareFixture(false)
	h := f.mw.Resolve(RequireUser(okHandler))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/loos", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"Unauthorized"}`, w.Body.String())
}

func TestRequireAdmin_API(t *testing.T) {
	f := newMiddlewareFixture(false)
	f.verifier.allow("admin", testAudience, claimsFor("auth0|a", map[string]any{"permissions": []interface{}{"access:admin"}}))
	f.verifier.allow("plain", testAudience, claimsFor("auth0|p", nil))
	h := f.mw.Resolve(f.mw.RequireAdmin(okHandler))

	tests := []struct {
		name   string
		token  string
		status int
		body   string
	}{
		{"anonymous", "", http.StatusUnauthorized, `{"message":"Unauthorized"}`},
		{"not admin", "plain", http.StatusForbidden, `{"message":"Forbidden: Admin role required"}`},
		{"admin", "admin", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodDelete, "/api/loos/1", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequireAdminPage_RedirectsAnonymous(t *testing.T) {
	f := newMiddlewareFixture(true)
	h := f.mw.Resolve(f.mw.RequireAdminPage(okHandler))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, AdminLoginPath, w.Header().Get("Location"))
}

func TestRequireAdminPage_RevokedSession(t *testing.T) {
	f := newMiddlewareFixture(true)
	f.verifier.allow("id-token", testClientID, claimsFor("auth0|admin", map[string]any{
		"permissions": []interface{}{"access:admin"},
	}))
	f.lookup.setPerms("auth0|admin", []string{"access:admin"})
	h := f.mw.Resolve(f.mw.RequireAdminPage(okHandler))

	session := models.SessionData{IDToken: "id-token", User: &models.SessionUser{Sub: "auth0|admin"}}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, sessionRequest(t, session))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Dataset Explorer")

	// Permission removed server-side and the cached decision evicted
	f.lookup.setPerms("auth0|admin", nil)
	f.mw.gate.Evict("auth0|admin")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, sessionRequest(t, session))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.True(t, clearedCookies(w), "session cookies must be cleared")

	_, cached := f.mw.gate.cache.Get("auth0|admin")
	assert.False(t, cached, "revocation evicts the cache entry")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(f.audit.Bytes(), &entry))
	assert.Equal(t, pkglogger.EventAdminRevoked, entry["event_type"])
}

func TestRequireAdminPage_TokenFallbackDoesNotClear(t *testing.T) {
	f := newMiddlewareFixture(false)
	f.verifier.allow("id-token", testClientID, claimsFor("auth0|u", nil))
	h := f.mw.Resolve(f.mw.RequireAdminPage(okHandler))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, sessionRequest(t, models.SessionData{IDToken: "id-token"}))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, clearedCookies(w))
}
