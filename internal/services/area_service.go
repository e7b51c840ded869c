package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/toiletmap/toiletmap-api/internal/models"
)

type AreaRepository interface {
	List(ctx context.Context, areaType string) ([]*models.Area, error)
}

type AreaService struct {
	repo   AreaRepository
	logger *slog.Logger
}

func NewAreaService(repo AreaRepository, logger *slog.Logger) *AreaService {
	return &AreaService{repo: repo, logger: logger}
}

func (s *AreaService) List(ctx context.Context, areaType string) ([]*models.Area, error) {
	areas, err := s.repo.List(ctx, areaType)
	if err != nil {
		s.logger.Error("failed to list areas", slog.String("type", areaType), slog.Any("error", err))
		return nil, fmt.Errorf("%w: list areas: %v", models.ErrInternalServer, err)
	}
	return areas, nil
}
