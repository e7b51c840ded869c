package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/search"
)

func TestAdminHandler_Page(t *testing.T) {
	var gotDays int
	stats := &MockLooService{
		MetricsFunc: func(ctx context.Context, f search.Filters, recentDays int) (*models.LooMetrics, error) {
			gotDays = recentDays
			return &models.LooMetrics{Total: 1234, Active: 1000, RecentWindowDays: recentDays}, nil
		},
	}
	h := NewAdminHandler(stats, discardLogger())

	w := httptest.NewRecorder()
	h.Page(w, WithUser(httptest.NewRequest(http.MethodGet, "/admin", nil), alice))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "Dataset Explorer")
	assert.Contains(t, body, "alice")
	assert.Contains(t, body, "1234")
	assert.Contains(t, body, "/admin/logout")
	assert.Equal(t, search.DefaultRecentWindowDays, gotDays)
}

func TestAdminHandler_PageWithoutMetrics(t *testing.T) {
	stats := &MockLooService{
		MetricsFunc: func(ctx context.Context, f search.Filters, recentDays int) (*models.LooMetrics, error) {
			return nil, errors.New("db down")
		},
	}
	h := NewAdminHandler(stats, discardLogger())

	w := httptest.NewRecorder()
	h.Page(w, WithUser(httptest.NewRequest(http.MethodGet, "/admin", nil), alice))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Dataset Explorer")
	assert.Contains(t, w.Body.String(), "unavailable")
}
