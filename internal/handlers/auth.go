package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/toiletmap/toiletmap-api/internal/auth"
	"github.com/toiletmap/toiletmap-api/internal/metrics"
	"github.com/toiletmap/toiletmap-api/internal/models"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
	pkglogger "github.com/toiletmap/toiletmap-api/pkg/logger"
	"golang.org/x/oauth2"
)

// LoginSessions is the session store plus the OAuth state round trip
type LoginSessions interface {
	auth.SessionStore
	SetState(w http.ResponseWriter, state string)
	TakeState(w http.ResponseWriter, r *http.Request) string
}

// PermissionEvictor forgets cached admin decisions
type PermissionEvictor interface {
	Evict(sub string)
}

// AuthHandlerConfig holds the identity provider settings the login flow needs
type AuthHandlerConfig struct {
	Issuer     string // normalized, with trailing slash
	ClientID   string
	Audience   string
	BaseURL    string
	Env        string
	HTTPClient *http.Client
}

// AuthHandler runs the browser login against Auth0 and owns the session
// cookies' creation and destruction
type AuthHandler struct {
	oauth    *oauth2.Config
	verifier auth.TokenVerifier
	sessions LoginSessions
	evictor  PermissionEvictor
	audit    *pkglogger.AuditLogger
	ipConfig *pkghttp.IPConfig
	config   AuthHandlerConfig
	logger   *slog.Logger
}

func NewAuthHandler(
	oauth *oauth2.Config,
	verifier auth.TokenVerifier,
	sessions LoginSessions,
	evictor PermissionEvictor,
	audit *pkglogger.AuditLogger,
	ipConfig *pkghttp.IPConfig,
	config AuthHandlerConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		oauth:    oauth,
		verifier: verifier,
		sessions: sessions,
		evictor:  evictor,
		audit:    audit,
		ipConfig: ipConfig,
		config:   config,
		logger:   logger,
	}
}

// NewOAuthConfig builds the authorization code flow config for the tenant
func NewOAuthConfig(issuer, clientID, clientSecret, baseURL, scope string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   issuer + "authorize",
			TokenURL:  issuer + "oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: baseURL + "/admin/callback",
		Scopes:      strings.Fields(scope),
	}
}

// Login handles GET /admin/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		h.logger.Error("failed to generate oauth state", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	h.sessions.SetState(w, state)

	opts := []oauth2.AuthCodeOption{}
	if h.config.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", h.config.Audience))
	}
	http.Redirect(w, r, h.oauth.AuthCodeURL(state, opts...), http.StatusFound)
}

// Callback handles GET /admin/callback: exchanges the code, verifies the ID
// token, stores the session and sends the browser to /admin
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expected := h.sessions.TakeState(w, r)

	if providerErr := q.Get("error"); providerErr != "" {
		h.loginFailed(r, "", "provider error: "+providerErr)
		pkghttp.WriteUnauthorized(w)
		return
	}

	state := q.Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		h.loginFailed(r, "", "state mismatch")
		pkghttp.WriteBadRequest(w, "Invalid login state")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.loginFailed(r, "", "missing code")
		pkghttp.WriteBadRequest(w, "Missing authorization code")
		return
	}

	ctx := r.Context()
	if h.config.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, h.config.HTTPClient)
	}

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		metrics.RecordUpstreamFailure("auth0", "code_exchange")
		h.logger.Warn("authorization code exchange failed", slog.Any("error", err))
		h.loginFailed(r, "", "code exchange failed")
		pkghttp.WriteUnauthorized(w)
		return
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		h.loginFailed(r, "", "no id_token in token response")
		pkghttp.WriteUnauthorized(w)
		return
	}

	claims, err := h.verifier.Verify(r.Context(), idToken, h.config.ClientID)
	if err != nil {
		h.loginFailed(r, "", "id token rejected")
		pkghttp.WriteUnauthorized(w)
		return
	}

	user := sessionUserFromClaims(claims)
	h.sessions.Save(w, models.SessionData{
		IDToken:     idToken,
		AccessToken: token.AccessToken,
		User:        user,
	})

	// A fresh login must not inherit a stale admin decision
	h.evictor.Evict(user.Sub)

	h.logger.Info("admin login",
		slog.String("sub", user.Sub),
		pkglogger.RedactedAttr("email", user.Email, h.config.Env),
	)
	if h.audit != nil {
		event := pkglogger.AuditEvent{
			EventType: pkglogger.EventLogin,
			UserID:    user.Sub,
			IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
			UserAgent: r.UserAgent(),
			Success:   true,
		}
		if user.Email != "" {
			event.Metadata = map[string]string{"email": pkglogger.SanitizedEmail(user.Email)}
		}
		h.audit.LogAuthAttempt(r.Context(), event)
	}

	http.Redirect(w, r, "/admin", http.StatusFound)
}

// Logout handles GET /admin/logout: clears the session and the cached admin
// decision, then ends the Auth0 session too
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sub := ""
	if session, ok := h.sessions.Get(r); ok && session.User != nil {
		sub = session.User.Sub
	}
	if sub == "" {
		if user := auth.GetUserFromContext(r); user != nil {
			sub = user.Sub
		}
	}

	h.sessions.Clear(w)
	if sub != "" {
		h.evictor.Evict(sub)
	}

	if h.audit != nil {
		h.audit.LogAuthAttempt(r.Context(), pkglogger.AuditEvent{
			EventType: pkglogger.EventLogout,
			UserID:    sub,
			IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
			UserAgent: r.UserAgent(),
			Success:   true,
		})
	}

	http.Redirect(w, r, h.logoutURL(), http.StatusFound)
}

func (h *AuthHandler) logoutURL() string {
	v := url.Values{}
	v.Set("client_id", h.config.ClientID)
	v.Set("returnTo", h.config.BaseURL+"/admin")
	return h.config.Issuer + "v2/logout?" + v.Encode()
}

func (h *AuthHandler) loginFailed(r *http.Request, sub, reason string) {
	if h.audit == nil {
		return
	}
	h.audit.LogAuthAttempt(r.Context(), pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		UserID:        sub,
		IPAddress:     pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: reason,
	})
}

func sessionUserFromClaims(claims jwt.MapClaims) *models.SessionUser {
	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}
	return &models.SessionUser{
		Sub:      str("sub"),
		Email:    str("email"),
		Name:     str("name"),
		Nickname: str("nickname"),
	}
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
