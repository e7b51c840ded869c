package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/toiletmap/toiletmap-api/internal/metrics"
	"github.com/toiletmap/toiletmap-api/internal/models"
)

// Options tune a single resolution
type Options struct {
	// SkipUserInfo disables the /userinfo enrichment call
	SkipUserInfo bool
}

type outcome int

const (
	outcomeNext outcome = iota
	outcomeSuccess
	outcomeTerminal
)

type attempt struct {
	outcome outcome
	result  *models.AuthResult
	err     error
}

func pass() attempt                         { return attempt{outcome: outcomeNext} }
func reject(err error) attempt              { return attempt{outcome: outcomeTerminal, err: err} }
func accept(res *models.AuthResult) attempt { return attempt{outcome: outcomeSuccess, result: res} }

// request is the per-call state the providers share
type request struct {
	w       http.ResponseWriter
	r       *http.Request
	session *models.SessionData
}

type provider func(ctx context.Context, req *request) attempt

// Resolver finds the caller behind a request. Credentials are tried in a
// fixed order: Authorization header, session access token, session ID token.
// The first success wins; a terminal failure stops the chain.
type Resolver struct {
	verifier TokenVerifier
	sessions SessionStore
	userInfo UserInfoFetcher
	audience string
	clientID string
	logger   *slog.Logger

	providers []provider
}

// NewResolver wires a resolver. userInfo may be nil.
func NewResolver(verifier TokenVerifier, sessions SessionStore, userInfo UserInfoFetcher, audience, clientID string, logger *slog.Logger) *Resolver {
	res := &Resolver{
		verifier: verifier,
		sessions: sessions,
		userInfo: userInfo,
		audience: audience,
		clientID: clientID,
		logger:   logger,
	}
	res.providers = []provider{res.fromHeader, res.fromSessionAccessToken, res.fromSessionIDToken}
	return res
}

// Resolve returns the authenticated caller, or nil when there is none.
// A non-nil error explains why presented credentials were rejected; the
// request should then be treated as anonymous.
func (res *Resolver) Resolve(w http.ResponseWriter, r *http.Request, opts Options) (*models.AuthResult, error) {
	ctx := r.Context()
	req := &request{w: w, r: r}
	if session, ok := res.sessions.Get(r); ok {
		req.session = session
	}

	for _, p := range res.providers {
		a := p(ctx, req)
		switch a.outcome {
		case outcomeNext:
			continue
		case outcomeTerminal:
			metrics.RecordAuth("none", "rejected")
			return nil, a.err
		case outcomeSuccess:
			res.enrich(ctx, a.result, opts)
			metrics.RecordAuth(a.result.Source, "success")
			return a.result, nil
		}
	}

	metrics.RecordAuth("none", "anonymous")
	return nil, nil
}

func (res *Resolver) fromHeader(ctx context.Context, req *request) attempt {
	header := req.r.Header.Get("Authorization")
	if header == "" {
		return pass()
	}

	token, ok := bearerToken(header)
	if !ok {
		return reject(fmt.Errorf("%w: malformed authorization header", ErrInvalidToken))
	}

	claims, err := res.verifier.Verify(ctx, token, res.audience)
	if err != nil {
		// The session is left alone: the header belongs to another client
		return reject(err)
	}

	return accept(&models.AuthResult{
		User:   userFromClaims(claims),
		Token:  token,
		Source: models.SourceAuthorizationHeader,
	})
}

func (res *Resolver) fromSessionAccessToken(ctx context.Context, req *request) attempt {
	if req.session == nil || req.session.AccessToken == "" {
		return pass()
	}

	claims, err := res.verifier.Verify(ctx, req.session.AccessToken, res.audience)
	if err != nil {
		if req.session.IDToken != "" {
			res.logger.Warn("session access token rejected, trying ID token", slog.Any("error", err))
			return pass()
		}
		res.sessions.Clear(req.w)
		return reject(err)
	}

	return accept(&models.AuthResult{
		User:    userFromClaims(claims),
		Token:   req.session.AccessToken,
		Source:  models.SourceSessionAccessToken,
		Session: req.session,
	})
}

func (res *Resolver) fromSessionIDToken(ctx context.Context, req *request) attempt {
	if req.session == nil || req.session.IDToken == "" {
		return pass()
	}

	claims, err := res.verifier.Verify(ctx, req.session.IDToken, res.clientID)
	if err != nil {
		res.sessions.Clear(req.w)
		return reject(err)
	}

	return accept(&models.AuthResult{
		User:    userFromClaims(claims),
		Token:   req.session.IDToken,
		Source:  models.SourceSessionIDToken,
		Session: req.session,
	})
}

// enrich fills profile fields. A session profile for the same subject wins;
// otherwise access tokens are exchanged at /userinfo. ID tokens already
// carry the profile and are never sent there.
func (res *Resolver) enrich(ctx context.Context, result *models.AuthResult, opts Options) {
	if s := result.Session; s != nil && s.User != nil && s.User.Sub == result.User.Sub {
		mergeProfile(result.User, map[string]any{
			"name":     s.User.Name,
			"nickname": s.User.Nickname,
			"email":    s.User.Email,
		}, true)
		return
	}

	if opts.SkipUserInfo || res.userInfo == nil || result.Source == models.SourceSessionIDToken {
		return
	}

	profile, err := res.userInfo.Fetch(ctx, result.Token)
	if err != nil {
		metrics.RecordUpstreamFailure("auth0", "userinfo")
		res.logger.Warn("userinfo lookup failed", slog.String("sub", result.User.Sub), slog.Any("error", err))
		return
	}
	mergeProfile(result.User, profile, false)
}

// mergeProfile copies primitive values into the user. With override set,
// non-empty values replace existing ones; otherwise they only fill gaps.
// sub is never touched.
func mergeProfile(user *models.RequestUser, profile map[string]any, override bool) {
	for key, raw := range profile {
		if key == "sub" {
			continue
		}
		switch raw.(type) {
		case string, bool, float64, int, int64:
		default:
			continue
		}

		if s, ok := raw.(string); ok && s == "" {
			continue
		}

		if user.Profile == nil {
			user.Profile = make(map[string]any)
		}
		if _, exists := user.Profile[key]; !exists || override {
			user.Profile[key] = raw
		}

		s, _ := raw.(string)
		switch key {
		case "name":
			if override || user.Name == "" {
				user.Name = s
			}
		case "nickname":
			if override || user.Nickname == "" {
				user.Nickname = s
			}
		case "email":
			if override || user.Email == "" {
				user.Email = s
			}
		}
	}
}

func userFromClaims(claims jwt.MapClaims) *models.RequestUser {
	sub, _ := claims.GetSubject()
	user := &models.RequestUser{
		Sub:         sub,
		Name:        stringClaim(claims, "name"),
		Nickname:    stringClaim(claims, "nickname"),
		Email:       stringClaim(claims, "email"),
		Permissions: permissionsClaim(claims),
	}
	return user
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// permissionsClaim reads the RBAC permissions array Auth0 adds to access tokens
func permissionsClaim(claims jwt.MapClaims) []string {
	raw, ok := claims["permissions"].([]interface{})
	if !ok {
		return []string{}
	}
	perms := make([]string, 0, len(raw))
	for _, p := range raw {
		if s, ok := p.(string); ok {
			perms = append(perms, s)
		}
	}
	return models.NormalizePermissions(perms)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
