package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/toiletmap/toiletmap-api/internal/models"
)

// Session cookie names
const (
	IDTokenCookie     = "id_token"
	AccessTokenCookie = "access_token"
	UserInfoCookie    = "user_info"
	StateCookie       = "auth_state"
)

const (
	DefaultSessionMaxAge = 86400
	stateMaxAge          = 600
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
	MaxAge   int    // seconds; 0 means DefaultSessionMaxAge
}

// SessionStore persists the login session between requests
type SessionStore interface {
	Get(r *http.Request) (*models.SessionData, bool)
	Save(w http.ResponseWriter, data models.SessionData)
	Clear(w http.ResponseWriter)
}

// CookieStore keeps the session in three HTTP-only cookies: the ID token,
// the access token and a base64 JSON copy of the user profile.
type CookieStore struct {
	config CookieConfig
	now    func() time.Time
}

func NewCookieStore(config CookieConfig) *CookieStore {
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultSessionMaxAge
	}
	if config.SameSite == "" {
		config.SameSite = "lax"
	}
	return &CookieStore{config: config, now: time.Now}
}

// Get returns the session when at least one token cookie is present.
// A malformed user_info cookie is ignored; the tokens remain usable.
func (s *CookieStore) Get(r *http.Request) (*models.SessionData, bool) {
	data := &models.SessionData{
		IDToken:     cookieValue(r, IDTokenCookie),
		AccessToken: cookieValue(r, AccessTokenCookie),
	}
	if data.IDToken == "" && data.AccessToken == "" {
		return nil, false
	}

	if raw := cookieValue(r, UserInfoCookie); raw != "" {
		if user, err := decodeUserInfo(raw); err == nil {
			data.User = user
		}
	}

	return data, true
}

// Save writes all three cookies. Empty tokens are written as deletions so a
// stale token from an earlier login cannot linger.
func (s *CookieStore) Save(w http.ResponseWriter, data models.SessionData) {
	s.setOrClear(w, IDTokenCookie, data.IDToken)
	s.setOrClear(w, AccessTokenCookie, data.AccessToken)

	userInfo := ""
	if data.User != nil {
		userInfo = encodeUserInfo(data.User)
	}
	s.setOrClear(w, UserInfoCookie, userInfo)
}

// Clear expires every session cookie
func (s *CookieStore) Clear(w http.ResponseWriter) {
	for _, name := range []string{IDTokenCookie, AccessTokenCookie, UserInfoCookie} {
		s.clear(w, name)
	}
}

// SetState stores the OAuth state parameter for the login round trip
func (s *CookieStore) SetState(w http.ResponseWriter, state string) {
	s.set(w, StateCookie, state, stateMaxAge)
}

// TakeState returns the stored OAuth state and deletes the cookie
func (s *CookieStore) TakeState(w http.ResponseWriter, r *http.Request) string {
	state := cookieValue(r, StateCookie)
	s.clear(w, StateCookie)
	return state
}

func (s *CookieStore) setOrClear(w http.ResponseWriter, name, value string) {
	if value == "" {
		s.clear(w, name)
		return
	}
	s.set(w, name, value, s.config.MaxAge)
}

func (s *CookieStore) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.config.Domain,
		Expires:  s.now().Add(time.Duration(maxAge) * time.Second),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: parseSameSite(s.config.SameSite),
	})
}

func (s *CookieStore) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   s.config.Domain,
		MaxAge:   -1, // serialised as Max-Age=0
		HttpOnly: true,
		Secure:   s.config.Secure,
		SameSite: parseSameSite(s.config.SameSite),
	})
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func encodeUserInfo(user *models.SessionUser) string {
	b, err := json.Marshal(user)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeUserInfo(raw string) (*models.SessionUser, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		// Tolerate the standard alphabet too
		if b, err = base64.StdEncoding.DecodeString(raw); err != nil {
			return nil, err
		}
	}

	var user models.SessionUser
	if err := json.Unmarshal(b, &user); err != nil {
		return nil, err
	}
	if user.Sub == "" {
		return nil, models.NewValidationError("sub", "missing")
	}
	return &user, nil
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
