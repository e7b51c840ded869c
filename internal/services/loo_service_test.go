package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/search"
)

func TestLooService_SearchBuildsPage(t *testing.T) {
	var got search.Params
	repo := &MockLooRepository{
		SearchFunc: func(ctx context.Context, p search.Params) ([]*models.Loo, int64, error) {
			got = p
			loos := make([]*models.Loo, 50)
			for i := range loos {
				loos[i] = &models.Loo{ID: "loo"}
			}
			return loos, 125, nil
		},
	}
	svc := NewLooService(repo, testLogger())

	f := search.DefaultFilters()
	f.Page = 2
	page, err := svc.Search(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, 50, got.Offset)
	assert.Equal(t, 50, page.Count)
	assert.Equal(t, int64(125), page.Total)
	assert.True(t, page.HasMore)
}

func TestLooService_SearchHidesRepositoryErrors(t *testing.T) {
	repo := &MockLooRepository{
		SearchFunc: func(ctx context.Context, p search.Params) ([]*models.Loo, int64, error) {
			return nil, 0, errors.New("pq: relation does not exist")
		},
	}

	_, err := NewLooService(repo, testLogger()).Search(context.Background(), search.DefaultFilters())
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestLooService_MetricsClampsWindow(t *testing.T) {
	var got search.MetricsParams
	repo := &MockLooRepository{
		MetricsFunc: func(ctx context.Context, p search.MetricsParams) (*models.LooMetrics, error) {
			got = p
			return &models.LooMetrics{Total: 3, RecentWindowDays: p.RecentWindowDays}, nil
		},
	}

	m, err := NewLooService(repo, testLogger()).Metrics(context.Background(), search.DefaultFilters(), 0)
	require.NoError(t, err)
	assert.Equal(t, search.DefaultRecentWindowDays, got.RecentWindowDays)
	assert.Equal(t, int64(3), m.Total)
}

func TestLooService_CreditsContributor(t *testing.T) {
	tests := []struct {
		name string
		user *models.RequestUser
		want string
	}{
		{"nickname", &models.RequestUser{Sub: "auth0|1", Name: "Alice Smith", Nickname: "alice"}, "alice"},
		{"name", &models.RequestUser{Sub: "auth0|1", Name: "Alice Smith"}, "Alice Smith"},
		{"sub", &models.RequestUser{Sub: "auth0|1"}, "auth0|1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var credited string
			repo := &MockLooRepository{
				CreateFunc: func(ctx context.Context, in *models.LooInput, contributor string) (*models.Loo, error) {
					credited = contributor
					return &models.Loo{ID: "new", Name: in.Name}, nil
				},
			}

			loo, err := NewLooService(repo, testLogger()).Create(context.Background(), tt.user, &models.LooInput{Name: strPtr("Albert Road")})
			require.NoError(t, err)
			assert.Equal(t, "new", loo.ID)
			assert.Equal(t, tt.want, credited)
		})
	}
}

func TestLooService_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		want    error
	}{
		{"not found", models.ErrNotFound, models.ErrNotFound},
		{"bad request", models.ErrBadRequest, models.ErrBadRequest},
		{"conflict", models.ErrConflict, models.ErrConflict},
		{"wrapped not found", errors.Join(errors.New("scan"), models.ErrNotFound), models.ErrNotFound},
		{"unexpected", errors.New("connection reset"), models.ErrInternalServer},
	}

	user := &models.RequestUser{Sub: "auth0|1"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockLooRepository{
				UpdateFunc: func(ctx context.Context, id string, in *models.LooInput, contributor string) (*models.Loo, error) {
					return nil, tt.repoErr
				},
				DeleteFunc: func(ctx context.Context, id string) error { return tt.repoErr },
			}
			svc := NewLooService(repo, testLogger())

			_, err := svc.Update(context.Background(), user, "loo-a", &models.LooInput{})
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, svc.Delete(context.Background(), "loo-a"), tt.want)
		})
	}
}

func TestAreaService_List(t *testing.T) {
	repo := &MockAreaRepository{
		ListFunc: func(ctx context.Context, areaType string) ([]*models.Area, error) {
			if areaType == "broken" {
				return nil, errors.New("timeout")
			}
			return []*models.Area{{ID: "a1", Name: "Camden", Type: areaType}}, nil
		},
	}
	svc := NewAreaService(repo, testLogger())

	areas, err := svc.List(context.Background(), "London Borough")
	require.NoError(t, err)
	assert.Len(t, areas, 1)

	_, err = svc.List(context.Background(), "broken")
	assert.ErrorIs(t, err, models.ErrInternalServer)
}
