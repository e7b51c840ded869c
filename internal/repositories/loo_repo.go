package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/toiletmap/toiletmap-api/internal/database"
	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/search"
)

type LooRepository struct {
	db database.DBTX
}

func NewLooRepository(db database.DBTX) *LooRepository {
	return &LooRepository{db: db}
}

// looColumns is read from loos aliased l joined to areas aliased a
const looColumns = `l.id, l.name, l.area_id, a.name, a.type,
	l.active, l.accessible, l.all_gender, l.men, l.women, l.urinal_only, l.children,
	l.baby_change, l.radar, l.automatic, l.no_payment, l.payment_details, l.notes,
	l.removal_reason, l.attended, l.opening_times, l.lat, l.lng, l.verified_at,
	l.created_at, l.updated_at, l.contributors`

const looFrom = `FROM loos l LEFT JOIN areas a ON a.id = l.area_id`

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLooRow(scanner rowScanner) (*models.Loo, error) {
	var loo models.Loo
	var areaID, areaName, areaType *string
	var lat, lng *float64
	var openingTimes []byte

	err := scanner.Scan(
		&loo.ID, &loo.Name, &areaID, &areaName, &areaType,
		&loo.Active, &loo.Accessible, &loo.AllGender, &loo.Men, &loo.Women, &loo.UrinalOnly, &loo.Children,
		&loo.BabyChange, &loo.Radar, &loo.Automatic, &loo.NoPayment, &loo.PaymentDetails, &loo.Notes,
		&loo.RemovalReason, &loo.Attended, &openingTimes, &lat, &lng, &loo.VerifiedAt,
		&loo.CreatedAt, &loo.UpdatedAt, &loo.Contributors,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if areaID != nil {
		loo.Area = &models.AreaRef{ID: *areaID, Name: deref(areaName), Type: deref(areaType)}
	}
	if lat != nil && lng != nil {
		loo.Location = &models.Location{Lat: *lat, Lng: *lng}
	}
	if len(openingTimes) > 0 {
		loo.OpeningTimes = openingTimes
	}
	if loo.Contributors == nil {
		loo.Contributors = []string{}
	}

	return &loo, nil
}

func scanLooRows(rows pgx.Rows) ([]*models.Loo, error) {
	defer rows.Close()

	loos := make([]*models.Loo, 0)
	for rows.Next() {
		loo, err := scanLooRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loo: %w", err)
		}
		loos = append(loos, loo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return loos, nil
}

// Search returns one page of loos matching p and the total number of matches
func (r *LooRepository) Search(ctx context.Context, p search.Params) ([]*models.Loo, int64, error) {
	where, args := p.Where(1)

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s %s", looFrom, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count loos: %w", err)
	}

	if total == 0 || int64(p.Offset) >= total {
		return []*models.Loo{}, total, nil
	}

	query := fmt.Sprintf("SELECT %s %s %s ORDER BY %s LIMIT $%d OFFSET $%d",
		looColumns, looFrom, where, p.OrderBy, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query loos: %w", err)
	}

	loos, err := scanLooRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return loos, total, nil
}

// Metrics aggregates the loos matching p in a single pass
func (r *LooRepository) Metrics(ctx context.Context, p search.MetricsParams) (*models.LooMetrics, error) {
	where, args := p.Where(2)

	query := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE l.active),
			COUNT(*) FILTER (WHERE l.verified_at IS NOT NULL),
			COUNT(*) FILTER (WHERE l.accessible),
			COUNT(*) FILTER (WHERE l.baby_change),
			COUNT(*) FILTER (WHERE l.radar),
			COUNT(*) FILTER (WHERE l.no_payment),
			COUNT(*) FILTER (WHERE l.all_gender),
			COUNT(*) FILTER (WHERE l.lat IS NOT NULL AND l.lng IS NOT NULL),
			COUNT(*) FILTER (WHERE l.updated_at >= NOW() - make_interval(days => $1))
		%s %s`, looFrom, where)

	m := models.LooMetrics{RecentWindowDays: p.RecentWindowDays}
	err := r.db.QueryRow(ctx, query, append([]any{p.RecentWindowDays}, args...)...).Scan(
		&m.Total, &m.Active, &m.Verified, &m.Accessible, &m.BabyChange,
		&m.Radar, &m.NoPayment, &m.AllGender, &m.WithLocation, &m.RecentlyUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate loos: %w", err)
	}
	return &m, nil
}

func (r *LooRepository) GetByID(ctx context.Context, id string) (*models.Loo, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE l.id = $1", looColumns, looFrom)
	return scanLooRow(r.db.QueryRow(ctx, query, id))
}

// Create inserts a loo credited to contributor and returns it with its area
func (r *LooRepository) Create(ctx context.Context, in *models.LooInput, contributor string) (*models.Loo, error) {
	id := uuid.New().String()

	query := fmt.Sprintf(`
		WITH l AS (
			INSERT INTO loos (id, name, area_id, active, accessible, all_gender, men, women,
				urinal_only, children, baby_change, radar, automatic, no_payment, payment_details,
				notes, removal_reason, attended, opening_times, lat, lng, verified_at, contributors,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
				$18, $19, $20, $21,
				CASE WHEN $22::boolean THEN $24::timestamptz ELSE NULL END,
				$23, $24, $24)
			RETURNING *
		)
		SELECT %s FROM l LEFT JOIN areas a ON a.id = l.area_id`, looColumns)

	args := append([]any{id}, writableArgs(in)...)
	args = append(args, in.Verified, []string{contributor}, time.Now().UTC())

	return scanLooRow(r.db.QueryRow(ctx, query, args...))
}

// Update replaces the writable fields of loo id and credits contributor
// once. A missing loo is models.ErrNotFound.
func (r *LooRepository) Update(ctx context.Context, id string, in *models.LooInput, contributor string) (*models.Loo, error) {
	query := fmt.Sprintf(`
		WITH l AS (
			UPDATE loos SET
				name = $2, area_id = $3, active = $4, accessible = $5, all_gender = $6,
				men = $7, women = $8, urinal_only = $9, children = $10, baby_change = $11,
				radar = $12, automatic = $13, no_payment = $14, payment_details = $15,
				notes = $16, removal_reason = $17, attended = $18, opening_times = $19,
				lat = $20, lng = $21,
				verified_at = CASE
					WHEN $22::boolean IS NULL THEN verified_at
					WHEN $22::boolean THEN $24::timestamptz
					ELSE NULL
				END,
				contributors = CASE
					WHEN $23::text = ANY(contributors) THEN contributors
					ELSE array_append(contributors, $23::text)
				END,
				updated_at = $24
			WHERE id = $1
			RETURNING *
		)
		SELECT %s FROM l LEFT JOIN areas a ON a.id = l.area_id`, looColumns)

	args := append([]any{id}, writableArgs(in)...)
	args = append(args, in.Verified, contributor, time.Now().UTC())

	return scanLooRow(r.db.QueryRow(ctx, query, args...))
}

func (r *LooRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM loos WHERE id = $1", id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// writableArgs are $2..$21 of the insert and update statements
func writableArgs(in *models.LooInput) []any {
	var lat, lng any
	if in.Location != nil {
		lat, lng = in.Location.Lat, in.Location.Lng
	}
	var openingTimes any
	if len(in.OpeningTimes) > 0 && string(in.OpeningTimes) != "null" {
		openingTimes = string(in.OpeningTimes)
	}

	return []any{
		in.Name, in.AreaID, in.Active, in.Accessible, in.AllGender,
		in.Men, in.Women, in.UrinalOnly, in.Children, in.BabyChange,
		in.Radar, in.Automatic, in.NoPayment, in.PaymentDetails,
		in.Notes, in.RemovalReason, in.Attended, openingTimes,
		lat, lng,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
