package search

import (
	"fmt"
	"strings"
)

// Op is the comparison a Condition applies
type Op int

const (
	OpEquals Op = iota
	OpIsNull
	OpIsNotNull
	OpContains // case-insensitive substring, any of Columns
)

// Condition constrains one or more columns. Value is unused for the null checks.
type Condition struct {
	Columns []string
	Op      Op
	Value   any
}

// Params are the datastore parameters for one page of search results
type Params struct {
	Conditions []Condition
	OrderBy    string
	Limit      int
	Offset     int
}

// MetricsParams reuse the search conditions without pagination
type MetricsParams struct {
	Conditions       []Condition
	RecentWindowDays int
}

// Column references assume loos aliased as l and areas as a
var triStateColumns = []struct {
	name   string
	column string
	get    func(Filters) TriState
}{
	{"active", "l.active", func(f Filters) TriState { return f.Active }},
	{"accessible", "l.accessible", func(f Filters) TriState { return f.Accessible }},
	{"allGender", "l.all_gender", func(f Filters) TriState { return f.AllGender }},
	{"radar", "l.radar", func(f Filters) TriState { return f.Radar }},
	{"babyChange", "l.baby_change", func(f Filters) TriState { return f.BabyChange }},
	{"noPayment", "l.no_payment", func(f Filters) TriState { return f.NoPayment }},
}

var sortOrders = map[Sort]string{
	SortUpdatedDesc:  "l.updated_at DESC, l.id ASC",
	SortUpdatedAsc:   "l.updated_at ASC, l.id ASC",
	SortCreatedDesc:  "l.created_at DESC, l.id ASC",
	SortCreatedAsc:   "l.created_at ASC, l.id ASC",
	SortVerifiedDesc: "l.verified_at DESC NULLS LAST, l.id ASC",
	SortVerifiedAsc:  "l.verified_at ASC NULLS LAST, l.id ASC",
	SortNameAsc:      "l.name ASC NULLS LAST, l.id ASC",
	SortNameDesc:     "l.name DESC NULLS LAST, l.id ASC",
}

// BuildSearchParams maps validated filters to query parameters
func BuildSearchParams(f Filters) Params {
	order, ok := sortOrders[f.Sort]
	if !ok {
		order = sortOrders[DefaultSort]
	}
	return Params{
		Conditions: buildConditions(f),
		OrderBy:    order,
		Limit:      f.Limit,
		Offset:     f.Offset(),
	}
}

// BuildMetricsParams maps filters to the aggregate query. A non-positive
// window takes the default; larger than the maximum is capped.
func BuildMetricsParams(f Filters, recentDays int) MetricsParams {
	switch {
	case recentDays < 1:
		recentDays = DefaultRecentWindowDays
	case recentDays > MaxRecentWindowDays:
		recentDays = MaxRecentWindowDays
	}
	return MetricsParams{
		Conditions:       buildConditions(f),
		RecentWindowDays: recentDays,
	}
}

func buildConditions(f Filters) []Condition {
	var conds []Condition

	if f.Search != "" {
		conds = append(conds, Condition{
			Columns: []string{"l.name", "l.notes", "l.id::text"},
			Op:      OpContains,
			Value:   f.Search,
		})
	}
	if f.AreaName != "" {
		conds = append(conds, Condition{Columns: []string{"a.name"}, Op: OpContains, Value: f.AreaName})
	}
	if f.AreaType != "" {
		conds = append(conds, Condition{Columns: []string{"a.type"}, Op: OpEquals, Value: f.AreaType})
	}

	for _, tc := range triStateColumns {
		switch tc.get(f) {
		case TriTrue:
			conds = append(conds, Condition{Columns: []string{tc.column}, Op: OpEquals, Value: true})
		case TriFalse:
			conds = append(conds, Condition{Columns: []string{tc.column}, Op: OpEquals, Value: false})
		case TriNull:
			conds = append(conds, Condition{Columns: []string{tc.column}, Op: OpIsNull})
		}
	}

	switch f.Verified {
	case BoolTrue:
		conds = append(conds, Condition{Columns: []string{"l.verified_at"}, Op: OpIsNotNull})
	case BoolFalse:
		conds = append(conds, Condition{Columns: []string{"l.verified_at"}, Op: OpIsNull})
	}

	switch f.HasLocation {
	case BoolTrue:
		conds = append(conds, Condition{Columns: []string{"l.lat", "l.lng"}, Op: OpIsNotNull})
	case BoolFalse:
		conds = append(conds, Condition{Columns: []string{"l.lat", "l.lng"}, Op: OpIsNull})
	}

	return conds
}

// Where renders the conditions as a WHERE clause with placeholders numbered
// from startArg. It returns an empty string when nothing is constrained.
func Where(conds []Condition, startArg int) (string, []any) {
	if len(conds) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))
	next := startArg

	for _, c := range conds {
		switch c.Op {
		case OpEquals:
			parts = append(parts, fmt.Sprintf("%s = $%d", c.Columns[0], next))
			args = append(args, c.Value)
			next++
		case OpIsNull:
			parts = append(parts, joinEach(c.Columns, "%s IS NULL", " OR "))
		case OpIsNotNull:
			parts = append(parts, joinEach(c.Columns, "%s IS NOT NULL", " AND "))
		case OpContains:
			placeholder := fmt.Sprintf("$%d", next)
			ors := make([]string, len(c.Columns))
			for i, col := range c.Columns {
				ors[i] = col + " ILIKE " + placeholder
			}
			parts = append(parts, "("+strings.Join(ors, " OR ")+")")
			args = append(args, "%"+escapeLike(fmt.Sprint(c.Value))+"%")
			next++
		}
	}

	return "WHERE " + strings.Join(parts, " AND "), args
}

// Where renders the search conditions; see the package-level Where
func (p Params) Where(startArg int) (string, []any) {
	return Where(p.Conditions, startArg)
}

func (p MetricsParams) Where(startArg int) (string, []any) {
	return Where(p.Conditions, startArg)
}

func joinEach(columns []string, format, sep string) string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = fmt.Sprintf(format, col)
	}
	if len(out) == 1 {
		return out[0]
	}
	return "(" + strings.Join(out, sep) + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Page is the search response envelope
type Page[T any] struct {
	Data     []T   `json:"data"`
	Count    int   `json:"count"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	HasMore  bool  `json:"hasMore"`
}

// NewPage wraps one page of results. HasMore is derived from the offset,
// the rows actually returned and the total.
func NewPage[T any](data []T, total int64, f Filters) Page[T] {
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data:     data,
		Count:    len(data),
		Total:    total,
		Page:     f.Page,
		PageSize: f.Limit,
		HasMore:  int64(f.Offset()+len(data)) < total,
	}
}
