package handlers

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/toiletmap/toiletmap-api/internal/auth"
	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/search"
)

//go:embed templates/admin.html
var templateFS embed.FS

var adminTemplate = template.Must(template.ParseFS(templateFS, "templates/admin.html"))

// DatasetStats supplies the dashboard numbers
type DatasetStats interface {
	Metrics(ctx context.Context, f search.Filters, recentDays int) (*models.LooMetrics, error)
}

// AdminHandler renders the server-side admin page
type AdminHandler struct {
	stats  DatasetStats
	logger *slog.Logger
}

func NewAdminHandler(stats DatasetStats, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{stats: stats, logger: logger}
}

type adminPage struct {
	DisplayName string
	Metrics     *models.LooMetrics
}

// Page handles GET /admin. Mounted behind RequireAdminPage.
func (h *AdminHandler) Page(w http.ResponseWriter, r *http.Request) {
	page := adminPage{DisplayName: "unknown"}
	if user := auth.GetUserFromContext(r); user != nil {
		page.DisplayName = user.ContributorName()
	}

	// The page still renders without numbers
	m, err := h.stats.Metrics(r.Context(), search.DefaultFilters(), search.DefaultRecentWindowDays)
	if err != nil {
		h.logger.Warn("admin dashboard metrics unavailable", slog.Any("error", err))
	} else {
		page.Metrics = m
	}

	var buf bytes.Buffer
	if err := adminTemplate.Execute(&buf, page); err != nil {
		h.logger.Error("failed to render admin page", slog.Any("error", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
