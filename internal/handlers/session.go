package handlers

import (
	"net/http"

	"github.com/toiletmap/toiletmap-api/internal/auth"
	"github.com/toiletmap/toiletmap-api/internal/models"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
)

// SessionResponse describes who the caller is and which credential proved it
type SessionResponse struct {
	User    *models.RequestUser `json:"user"`
	Source  string              `json:"source"`
	IsAdmin bool                `json:"isAdmin"`
}

// AdminChecker reports token-derived admin status
type AdminChecker interface {
	HasAdminRole(user *models.RequestUser) bool
}

type SessionHandler struct {
	admin AdminChecker
}

func NewSessionHandler(admin AdminChecker) *SessionHandler {
	return &SessionHandler{admin: admin}
}

// Get handles GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	result := auth.AuthResultFromContext(r.Context())
	if result == nil {
		pkghttp.WriteUnauthorized(w)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{
		User:    result.User,
		Source:  result.Source,
		IsAdmin: h.admin != nil && h.admin.HasAdminRole(result.User),
	})
}
