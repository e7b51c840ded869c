package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/toiletmap/toiletmap-api/internal/auth"
	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/search"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithUser marks the request as resolved to user via the bearer header
func WithUser(req *http.Request, user *models.RequestUser) *http.Request {
	result := &models.AuthResult{User: user, Token: "token", Source: models.SourceAuthorizationHeader}
	return req.WithContext(auth.WithAuthResult(req.Context(), result))
}

// WithURLParam sets a chi path parameter as the router would
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testLooID = "3f0b6a4e-8d1c-4a57-9a3e-2f6f1b1c9d10"

// MockLooService implements LooService for testing
type MockLooService struct {
	SearchFunc  func(ctx context.Context, f search.Filters) (search.Page[*models.Loo], error)
	MetricsFunc func(ctx context.Context, f search.Filters, recentDays int) (*models.LooMetrics, error)
	GetFunc     func(ctx context.Context, id string) (*models.Loo, error)
	CreateFunc  func(ctx context.Context, user *models.RequestUser, in *models.LooInput) (*models.Loo, error)
	UpdateFunc  func(ctx context.Context, user *models.RequestUser, id string, in *models.LooInput) (*models.Loo, error)
	DeleteFunc  func(ctx context.Context, id string) error
}

func (m *MockLooService) Search(ctx context.Context, f search.Filters) (search.Page[*models.Loo], error) {
	if m.SearchFunc == nil {
		return search.NewPage[*models.Loo](nil, 0, f), nil
	}
	return m.SearchFunc(ctx, f)
}

func (m *MockLooService) Metrics(ctx context.Context, f search.Filters, recentDays int) (*models.LooMetrics, error) {
	if m.MetricsFunc == nil {
		return &models.LooMetrics{RecentWindowDays: recentDays}, nil
	}
	return m.MetricsFunc(ctx, f, recentDays)
}

func (m *MockLooService) Get(ctx context.Context, id string) (*models.Loo, error) {
	if m.GetFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetFunc(ctx, id)
}

func (m *MockLooService) Create(ctx context.Context, user *models.RequestUser, in *models.LooInput) (*models.Loo, error) {
	if m.CreateFunc == nil {
		return &models.Loo{ID: testLooID, Name: in.Name}, nil
	}
	return m.CreateFunc(ctx, user, in)
}

func (m *MockLooService) Update(ctx context.Context, user *models.RequestUser, id string, in *models.LooInput) (*models.Loo, error) {
	if m.UpdateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateFunc(ctx, user, id, in)
}

func (m *MockLooService) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc == nil {
		return nil
	}
	return m.DeleteFunc(ctx, id)
}

// MockAreaService implements AreaService for testing
type MockAreaService struct {
	ListFunc func(ctx context.Context, areaType string) ([]*models.Area, error)
}

func (m *MockAreaService) List(ctx context.Context, areaType string) ([]*models.Area, error) {
	if m.ListFunc == nil {
		return []*models.Area{}, nil
	}
	return m.ListFunc(ctx, areaType)
}
