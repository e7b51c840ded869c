package handlers

import (
	"context"
	"net/http"

	"github.com/toiletmap/toiletmap-api/internal/models"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
)

type AreaService interface {
	List(ctx context.Context, areaType string) ([]*models.Area, error)
}

type AreaHandler struct {
	service AreaService
}

func NewAreaHandler(service AreaService) *AreaHandler {
	return &AreaHandler{service: service}
}

// List handles GET /api/areas?type=
func (h *AreaHandler) List(w http.ResponseWriter, r *http.Request) {
	areas, err := h.service.List(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, err, "Area not found")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"data": areas})
}
