package repositories

import (
	"context"
	"fmt"

	"github.com/toiletmap/toiletmap-api/internal/database"
	"github.com/toiletmap/toiletmap-api/internal/models"
)

type AreaRepository struct {
	db database.DBTX
}

func NewAreaRepository(db database.DBTX) *AreaRepository {
	return &AreaRepository{db: db}
}

// List returns areas ordered by name, optionally restricted to one type
func (r *AreaRepository) List(ctx context.Context, areaType string) ([]*models.Area, error) {
	query := `SELECT id, name, type, dataset_id FROM areas`
	var args []any
	if areaType != "" {
		query += ` WHERE type = $1`
		args = append(args, areaType)
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query areas: %w", err)
	}
	defer rows.Close()

	areas := make([]*models.Area, 0)
	for rows.Next() {
		var area models.Area
		if err := rows.Scan(&area.ID, &area.Name, &area.Type, &area.DatasetID); err != nil {
			return nil, fmt.Errorf("failed to scan area: %w", err)
		}
		areas = append(areas, &area)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return areas, nil
}
