package services

import (
	"context"
	"io"
	"log/slog"

	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/search"
)

// MockLooRepository implements LooRepository for testing
type MockLooRepository struct {
	SearchFunc  func(ctx context.Context, p search.Params) ([]*models.Loo, int64, error)
	MetricsFunc func(ctx context.Context, p search.MetricsParams) (*models.LooMetrics, error)
	GetByIDFunc func(ctx context.Context, id string) (*models.Loo, error)
	CreateFunc  func(ctx context.Context, in *models.LooInput, contributor string) (*models.Loo, error)
	UpdateFunc  func(ctx context.Context, id string, in *models.LooInput, contributor string) (*models.Loo, error)
	DeleteFunc  func(ctx context.Context, id string) error
}

func (m *MockLooRepository) Search(ctx context.Context, p search.Params) ([]*models.Loo, int64, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, p)
	}
	return []*models.Loo{}, 0, nil
}

func (m *MockLooRepository) Metrics(ctx context.Context, p search.MetricsParams) (*models.LooMetrics, error) {
	if m.MetricsFunc != nil {
		return m.MetricsFunc(ctx, p)
	}
	return &models.LooMetrics{RecentWindowDays: p.RecentWindowDays}, nil
}

func (m *MockLooRepository) GetByID(ctx context.Context, id string) (*models.Loo, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockLooRepository) Create(ctx context.Context, in *models.LooInput, contributor string) (*models.Loo, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, in, contributor)
	}
	return nil, models.ErrInternalServer
}

func (m *MockLooRepository) Update(ctx context.Context, id string, in *models.LooInput, contributor string) (*models.Loo, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, in, contributor)
	}
	return nil, models.ErrNotFound
}

func (m *MockLooRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockAreaRepository implements AreaRepository for testing
type MockAreaRepository struct {
	ListFunc func(ctx context.Context, areaType string) ([]*models.Area, error)
}

func (m *MockAreaRepository) List(ctx context.Context, areaType string) ([]*models.Area, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, areaType)
	}
	return []*models.Area{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }
