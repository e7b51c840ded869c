package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/search"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
)

var alice = &models.RequestUser{Sub: "auth0|alice", Nickname: "alice"}

func TestLooHandler_Search(t *testing.T) {
	var got search.Filters
	svc := &MockLooService{
		SearchFunc: func(ctx context.Context, f search.Filters) (search.Page[*models.Loo], error) {
			got = f
			return search.NewPage([]*models.Loo{{ID: testLooID}}, 1, f), nil
		},
	}
	h := NewLooHandler(svc, nil)

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/api/loos/search?active=true&sort=name-asc&limit=10", nil))

	var page search.Page[*models.Loo]
	AssertJSONResponse(t, w, http.StatusOK, &page)
	assert.Equal(t, search.TriTrue, got.Active)
	assert.Equal(t, search.SortNameAsc, got.Sort)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, 1, page.Count)
	assert.False(t, page.HasMore)
}

func TestLooHandler_SearchRejectsInvalidFilters(t *testing.T) {
	called := false
	svc := &MockLooService{
		SearchFunc: func(ctx context.Context, f search.Filters) (search.Page[*models.Loo], error) {
			called = true
			return search.Page[*models.Loo]{}, nil
		},
	}
	h := NewLooHandler(svc, nil)

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/api/loos/search?active=maybe&sort=random&limit=500", nil))

	var resp pkghttp.ErrorResponse
	AssertJSONResponse(t, w, http.StatusBadRequest, &resp)
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Contains(t, resp.Issues, "active")
	assert.Contains(t, resp.Issues, "sort")
	assert.Contains(t, resp.Issues, "limit")
	assert.False(t, called)
}

func TestLooHandler_Metrics(t *testing.T) {
	var gotDays int
	svc := &MockLooService{
		MetricsFunc: func(ctx context.Context, f search.Filters, recentDays int) (*models.LooMetrics, error) {
			gotDays = recentDays
			return &models.LooMetrics{Total: 12, RecentWindowDays: recentDays}, nil
		},
	}
	h := NewLooHandler(svc, nil)

	w := httptest.NewRecorder()
	h.Metrics(w, httptest.NewRequest(http.MethodGet, "/api/loos/metrics?recentWindowDays=7&radar=null", nil))

	var m models.LooMetrics
	AssertJSONResponse(t, w, http.StatusOK, &m)
	assert.Equal(t, 7, gotDays)
	assert.Equal(t, int64(12), m.Total)

	w = httptest.NewRecorder()
	h.Metrics(w, httptest.NewRequest(http.MethodGet, "/api/loos/metrics?recentWindowDays=400", nil))
	AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
}

func TestLooHandler_Get(t *testing.T) {
	svc := &MockLooService{
		GetFunc: func(ctx context.Context, id string) (*models.Loo, error) {
			if id == testLooID {
				return &models.Loo{ID: id}, nil
			}
			return nil, models.ErrNotFound
		},
	}
	h := NewLooHandler(svc, nil)

	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"found", testLooID, http.StatusOK},
		{"missing", "00000000-0000-0000-0000-000000000000", http.StatusNotFound},
		{"not a uuid", "abc", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := WithURLParam(httptest.NewRequest(http.MethodGet, "/api/loos/"+tt.id, nil), "id", tt.id)
			w := httptest.NewRecorder()
			h.Get(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestLooHandler_Create(t *testing.T) {
	var gotUser *models.RequestUser
	svc := &MockLooService{
		CreateFunc: func(ctx context.Context, user *models.RequestUser, in *models.LooInput) (*models.Loo, error) {
			gotUser = user
			return &models.Loo{ID: testLooID, Name: in.Name}, nil
		},
	}
	h := NewLooHandler(svc, nil)

	body := map[string]any{
		"name":     "Albert Road",
		"active":   true,
		"location": map[string]float64{"lat": 51.5, "lng": -0.14},
	}
	req := WithUser(NewTestRequest(t, http.MethodPost, "/api/loos", body), alice)
	w := httptest.NewRecorder()
	h.Create(w, req)

	var loo models.Loo
	AssertJSONResponse(t, w, http.StatusCreated, &loo)
	assert.Equal(t, "/api/loos/"+testLooID, w.Header().Get("Location"))
	assert.Equal(t, "Albert Road", *loo.Name)
	assert.Equal(t, alice, gotUser)
}

func TestLooHandler_CreateValidation(t *testing.T) {
	h := NewLooHandler(&MockLooService{}, nil)

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"latitude out of range", `{"location":{"lat":95,"lng":0}}`, "location.lat"},
		{"bad area id", `{"areaId":"camden"}`, "areaId"},
		{"wrong type", `{"active":"yes"}`, "active"},
		{"not json", `{`, "body"},
		{"empty", ``, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := WithUser(httptest.NewRequest(http.MethodPost, "/api/loos", strings.NewReader(tt.body)), alice)
			w := httptest.NewRecorder()
			h.Create(w, req)

			var resp pkghttp.ErrorResponse
			AssertJSONResponse(t, w, http.StatusBadRequest, &resp)
			assert.Contains(t, resp.Issues, tt.wantField)
		})
	}
}

func TestLooHandler_CreateRequiresUser(t *testing.T) {
	h := NewLooHandler(&MockLooService{}, nil)

	w := httptest.NewRecorder()
	h.Create(w, NewTestRequest(t, http.MethodPost, "/api/loos", map[string]string{"name": "x"}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"Unauthorized"}`, w.Body.String())
}

func TestLooHandler_Update(t *testing.T) {
	svc := &MockLooService{
		UpdateFunc: func(ctx context.Context, user *models.RequestUser, id string, in *models.LooInput) (*models.Loo, error) {
			return &models.Loo{ID: id, Name: in.Name, Contributors: []string{user.ContributorName()}}, nil
		},
	}
	h := NewLooHandler(svc, nil)

	req := NewTestRequest(t, http.MethodPut, "/api/loos/"+testLooID, map[string]any{"name": "Renamed"})
	req = WithURLParam(WithUser(req, alice), "id", testLooID)
	w := httptest.NewRecorder()
	h.Update(w, req)

	var loo models.Loo
	AssertJSONResponse(t, w, http.StatusOK, &loo)
	assert.Equal(t, []string{"alice"}, loo.Contributors)
}

func TestLooHandler_Delete(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"deleted", nil, http.StatusNoContent},
		{"missing", models.ErrNotFound, http.StatusNotFound},
		{"failure", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockLooService{DeleteFunc: func(ctx context.Context, id string) error { return tt.err }}
			h := NewLooHandler(svc, nil)

			req := WithURLParam(WithUser(httptest.NewRequest(http.MethodDelete, "/api/loos/"+testLooID, nil), alice), "id", testLooID)
			w := httptest.NewRecorder()
			h.Delete(w, req)

			require.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAreaHandler_List(t *testing.T) {
	var gotType string
	svc := &MockAreaService{
		ListFunc: func(ctx context.Context, areaType string) ([]*models.Area, error) {
			gotType = areaType
			return []*models.Area{{ID: "a1", Name: "Camden", Type: areaType}}, nil
		},
	}

	w := httptest.NewRecorder()
	NewAreaHandler(svc).List(w, httptest.NewRequest(http.MethodGet, "/api/areas?type=London+Borough", nil))

	var resp struct {
		Data []models.Area `json:"data"`
	}
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "London Borough", gotType)
	assert.Len(t, resp.Data, 1)
}
