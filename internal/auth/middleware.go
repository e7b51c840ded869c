package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/toiletmap/toiletmap-api/internal/models"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
	pkglogger "github.com/toiletmap/toiletmap-api/pkg/logger"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AuthResultContextKey holds the *models.AuthResult of a resolved request
	AuthResultContextKey contextKey = "auth_result"
	resolvedContextKey   contextKey = "auth_resolved"
)

const (
	AdminLoginPath        = "/admin/login"
	forbiddenAdminMessage = "Forbidden: Admin role required"
)

// WithAuthResult stores the resolution in ctx. A nil result marks the
// request as resolved and anonymous.
func WithAuthResult(ctx context.Context, result *models.AuthResult) context.Context {
	ctx = context.WithValue(ctx, resolvedContextKey, true)
	if result == nil {
		return ctx
	}
	return context.WithValue(ctx, AuthResultContextKey, result)
}

// AuthResultFromContext returns the resolution stored by Resolve, if any
func AuthResultFromContext(ctx context.Context) *models.AuthResult {
	result, _ := ctx.Value(AuthResultContextKey).(*models.AuthResult)
	return result
}

// GetUserFromContext extracts the request user from request context
func GetUserFromContext(r *http.Request) *models.RequestUser {
	if result := AuthResultFromContext(r.Context()); result != nil {
		return result.User
	}
	return nil
}

func isResolved(ctx context.Context) bool {
	resolved, _ := ctx.Value(resolvedContextKey).(bool)
	return resolved
}

// Middleware turns the resolver and admin gate into HTTP middleware
type Middleware struct {
	resolver *Resolver
	gate     *Gate
	sessions SessionStore
	audit    *pkglogger.AuditLogger
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewMiddleware(resolver *Resolver, gate *Gate, sessions SessionStore, audit *pkglogger.AuditLogger, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *Middleware {
	return &Middleware{
		resolver: resolver,
		gate:     gate,
		sessions: sessions,
		audit:    audit,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Resolve authenticates the request if it can and always continues.
// A request resolved earlier in the chain is not resolved again.
func (m *Middleware) Resolve(next http.Handler) http.Handler {
	return m.ResolveWith(Options{})(next)
}

// ResolveWith is Resolve with per-route options
func (m *Middleware) ResolveWith(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isResolved(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}

			result, err := m.resolver.Resolve(w, r, opts)
			if err != nil {
				m.logger.Debug("credentials rejected",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				if m.audit != nil {
					m.audit.LogAuthAttempt(r.Context(), pkglogger.AuditEvent{
						EventType:     pkglogger.EventSessionRejected,
						IPAddress:     pkghttp.ExtractClientIP(r, m.ipConfig),
						UserAgent:     r.UserAgent(),
						Success:       false,
						FailureReason: err.Error(),
					})
				}
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), result)))
		})
	}
}

// RequireUser rejects anonymous requests with 401. Use after Resolve.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserFromContext(r) == nil {
			pkghttp.WriteUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin guards API routes: 401 for anonymous callers and 403 for
// callers without the admin permission. Use after Resolve.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r)
		if user == nil {
			pkghttp.WriteUnauthorized(w)
			return
		}

		status := m.gate.CurrentAdmin(r.Context(), user)
		if !status.Admin {
			if status.Revoked() {
				m.revoke(w, r)
			}
			pkghttp.WriteForbidden(w, forbiddenAdminMessage)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdminPage guards browser routes: anonymous visitors are sent to
// the login page, signed-in users without the permission get 403.
func (m *Middleware) RequireAdminPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r)
		if user == nil {
			http.Redirect(w, r, AdminLoginPath, http.StatusFound)
			return
		}

		status := m.gate.CurrentAdmin(r.Context(), user)
		if !status.Admin {
			if status.Revoked() {
				m.revoke(w, r)
			}
			http.Error(w, forbiddenAdminMessage, http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// revoke ends a session whose admin permission was withdrawn server-side.
// Header-authenticated callers have no session to clear.
func (m *Middleware) revoke(w http.ResponseWriter, r *http.Request) {
	result := AuthResultFromContext(r.Context())
	if result == nil {
		return
	}

	m.gate.Evict(result.User.Sub)
	if result.Source != models.SourceAuthorizationHeader {
		m.sessions.Clear(w)
	}

	if m.audit != nil {
		m.audit.LogAuthAttempt(r.Context(), pkglogger.AuditEvent{
			EventType:     pkglogger.EventAdminRevoked,
			UserID:        result.User.Sub,
			IPAddress:     pkghttp.ExtractClientIP(r, m.ipConfig),
			UserAgent:     r.UserAgent(),
			Success:       false,
			FailureReason: "admin permission revoked",
			Metadata:      map[string]string{"source": result.Source},
		})
	}
}
