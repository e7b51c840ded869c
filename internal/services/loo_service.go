package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/search"
)

// LooRepository defines the interface for loo data access
type LooRepository interface {
	Search(ctx context.Context, p search.Params) ([]*models.Loo, int64, error)
	Metrics(ctx context.Context, p search.MetricsParams) (*models.LooMetrics, error)
	GetByID(ctx context.Context, id string) (*models.Loo, error)
	Create(ctx context.Context, in *models.LooInput, contributor string) (*models.Loo, error)
	Update(ctx context.Context, id string, in *models.LooInput, contributor string) (*models.Loo, error)
	Delete(ctx context.Context, id string) error
}

// LooService handles loo business logic
type LooService struct {
	repo   LooRepository
	logger *slog.Logger
}

func NewLooService(repo LooRepository, logger *slog.Logger) *LooService {
	return &LooService{repo: repo, logger: logger}
}

// Search returns one page of loos matching f
func (s *LooService) Search(ctx context.Context, f search.Filters) (search.Page[*models.Loo], error) {
	loos, total, err := s.repo.Search(ctx, search.BuildSearchParams(f))
	if err != nil {
		s.logger.Error("failed to search loos", slog.String("filters", f.Values().Encode()), slog.Any("error", err))
		return search.Page[*models.Loo]{}, models.ErrInternalServer
	}
	return search.NewPage(loos, total, f), nil
}

// Metrics aggregates the loos matching f over a recent window of recentDays
func (s *LooService) Metrics(ctx context.Context, f search.Filters, recentDays int) (*models.LooMetrics, error) {
	m, err := s.repo.Metrics(ctx, search.BuildMetricsParams(f, recentDays))
	if err != nil {
		s.logger.Error("failed to aggregate loos", slog.String("filters", f.Values().Encode()), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return m, nil
}

func (s *LooService) Get(ctx context.Context, id string) (*models.Loo, error) {
	loo, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError("get", id, err)
	}
	return loo, nil
}

// Create stores a new loo credited to user
func (s *LooService) Create(ctx context.Context, user *models.RequestUser, in *models.LooInput) (*models.Loo, error) {
	loo, err := s.repo.Create(ctx, in, user.ContributorName())
	if err != nil {
		return nil, s.mapError("create", "", err)
	}
	s.logger.Info("loo created", slog.String("loo_id", loo.ID), slog.String("sub", user.Sub))
	return loo, nil
}

// Update replaces the writable fields of loo id on behalf of user
func (s *LooService) Update(ctx context.Context, user *models.RequestUser, id string, in *models.LooInput) (*models.Loo, error) {
	loo, err := s.repo.Update(ctx, id, in, user.ContributorName())
	if err != nil {
		return nil, s.mapError("update", id, err)
	}
	s.logger.Info("loo updated", slog.String("loo_id", id), slog.String("sub", user.Sub))
	return loo, nil
}

func (s *LooService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapError("delete", id, err)
	}
	return nil
}

// mapError passes client errors through and hides everything else
func (s *LooService) mapError(op, id string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return models.ErrNotFound
	case errors.Is(err, models.ErrBadRequest):
		return models.ErrBadRequest
	case errors.Is(err, models.ErrConflict):
		return models.ErrConflict
	}
	s.logger.Error("loo operation failed",
		slog.String("op", op),
		slog.String("loo_id", id),
		slog.Any("error", err),
	)
	return fmt.Errorf("%w: %s loo: %v", models.ErrInternalServer, op, err)
}
