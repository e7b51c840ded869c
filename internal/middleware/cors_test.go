package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://www.toiletmap.org.uk"}))(okHandler())

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed string
	}{
		{"allowed origin", http.MethodGet, "https://www.toiletmap.org.uk", false, http.StatusOK, "https://www.toiletmap.org.uk"},
		{"unknown origin", http.MethodGet, "https://evil.example", false, http.StatusOK, ""},
		{"no origin", http.MethodGet, "", false, http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://www.toiletmap.org.uk", true, http.StatusNoContent, "https://www.toiletmap.org.uk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/loos/search", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllowed, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_ExposesRateLimitHeaders(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"http://localhost:5173"}))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining")
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
}

func TestOriginAllowed_WildcardSubdomain(t *testing.T) {
	allowed := []string{"https://www.toiletmap.org.uk", "https://*.toiletmap.netlify.app"}

	tests := map[string]bool{
		"https://www.toiletmap.org.uk":            true,
		"https://deploy-42.toiletmap.netlify.app": true,
		"https://toiletmap.netlify.app":           false,
		"http://deploy-42.toiletmap.netlify.app":  false,
		"https://eviltoiletmap.netlify.app":       false,
		"https://.toiletmap.netlify.app":          false,
		"":                                        false,
	}
	for origin, want := range tests {
		assert.Equal(t, want, originAllowed(origin, allowed), origin)
	}
}
