package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/toiletmap/toiletmap-api/internal/auth"
	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/search"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
	pkglogger "github.com/toiletmap/toiletmap-api/pkg/logger"
)

// LooService defines the interface for loo business logic
type LooService interface {
	Search(ctx context.Context, f search.Filters) (search.Page[*models.Loo], error)
	Metrics(ctx context.Context, f search.Filters, recentDays int) (*models.LooMetrics, error)
	Get(ctx context.Context, id string) (*models.Loo, error)
	Create(ctx context.Context, user *models.RequestUser, in *models.LooInput) (*models.Loo, error)
	Update(ctx context.Context, user *models.RequestUser, id string, in *models.LooInput) (*models.Loo, error)
	Delete(ctx context.Context, id string) error
}

const looNotFound = "Loo not found"

// LooHandler handles loo HTTP requests
type LooHandler struct {
	service LooService
	audit   *pkglogger.AuditLogger
}

func NewLooHandler(service LooService, audit *pkglogger.AuditLogger) *LooHandler {
	return &LooHandler{service: service, audit: audit}
}

// Search handles GET /api/loos/search
func (h *LooHandler) Search(w http.ResponseWriter, r *http.Request) {
	f, err := search.ParseFilters(r.URL.Query())
	if err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	page, err := h.service.Search(r.Context(), f)
	if err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, page)
}

// Metrics handles GET /api/loos/metrics
func (h *LooHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	f, recentDays, err := search.ParseMetricsRequest(r.URL.Query())
	if err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	m, err := h.service.Metrics(r.Context(), f, recentDays)
	if err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, m)
}

// Get handles GET /api/loos/{id}
func (h *LooHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := looID(w, r)
	if !ok {
		return
	}

	loo, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, loo)
}

// Create handles POST /api/loos. Requires a resolved user.
func (h *LooHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w)
		return
	}

	in, err := decodeLooInput(w, r)
	if err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	loo, err := h.service.Create(r.Context(), user, in)
	if err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	h.logChange(r, pkglogger.EventLooCreated, user.Sub, loo.ID)
	w.Header().Set("Location", "/api/loos/"+loo.ID)
	pkghttp.WriteJSON(w, http.StatusCreated, loo)
}

// Update handles PUT /api/loos/{id}. Requires a resolved user.
func (h *LooHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w)
		return
	}

	id, ok := looID(w, r)
	if !ok {
		return
	}

	in, err := decodeLooInput(w, r)
	if err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	loo, err := h.service.Update(r.Context(), user, id, in)
	if err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	h.logChange(r, pkglogger.EventLooUpdated, user.Sub, id)
	pkghttp.WriteJSON(w, http.StatusOK, loo)
}

// Delete handles DELETE /api/loos/{id}. Mounted behind the admin gate.
func (h *LooHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := looID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, looNotFound)
		return
	}

	sub := ""
	if user := auth.GetUserFromContext(r); user != nil {
		sub = user.Sub
	}
	h.logChange(r, pkglogger.EventLooDeleted, sub, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *LooHandler) logChange(r *http.Request, event, sub, id string) {
	if h.audit != nil {
		h.audit.LogDataChange(r.Context(), event, sub, id)
	}
}

// looID reads the {id} path parameter; anything but a UUID cannot exist
func looID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		pkghttp.WriteNotFound(w, looNotFound)
		return "", false
	}
	return id, true
}

func decodeLooInput(w http.ResponseWriter, r *http.Request) (*models.LooInput, error) {
	var in models.LooInput
	if err := decodeJSON(w, r, &in); err != nil {
		return nil, err
	}
	if err := ValidateRequest(in); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return nil, verr
		}
		return nil, models.ErrBadRequest
	}
	return &in, nil
}
