// Package search turns loo search query strings into SQL parameters and
// wraps result pages in the response envelope.
package search

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/toiletmap/toiletmap-api/internal/models"
)

// TriState filters a nullable boolean column
type TriState string

const (
	TriAny   TriState = "any"
	TriTrue  TriState = "true"
	TriFalse TriState = "false"
	TriNull  TriState = "null"
)

// BoolFilter filters a derived yes/no property that has no unknown state
type BoolFilter string

const (
	BoolAny   BoolFilter = "any"
	BoolTrue  BoolFilter = "true"
	BoolFalse BoolFilter = "false"
)

type Sort string

const (
	SortUpdatedDesc  Sort = "updated-desc"
	SortUpdatedAsc   Sort = "updated-asc"
	SortCreatedDesc  Sort = "created-desc"
	SortCreatedAsc   Sort = "created-asc"
	SortVerifiedDesc Sort = "verified-desc"
	SortVerifiedAsc  Sort = "verified-asc"
	SortNameAsc      Sort = "name-asc"
	SortNameDesc     Sort = "name-desc"
)

const (
	DefaultLimit            = 50
	MaxLimit                = 200
	DefaultPage             = 1
	MaxPage                 = 1000000 // keeps (MaxPage-1)*MaxLimit well inside int
	DefaultSort             = SortUpdatedDesc
	DefaultRecentWindowDays = 30
	MaxRecentWindowDays     = 365
)

// Filters is the validated form of a search query string
type Filters struct {
	Search   string `query:"search" validate:"max=200"`
	AreaName string `query:"areaName" validate:"max=200"`
	AreaType string `query:"areaType" validate:"max=100"`

	Active     TriState `query:"active" validate:"oneof=any true false null"`
	Accessible TriState `query:"accessible" validate:"oneof=any true false null"`
	AllGender  TriState `query:"allGender" validate:"oneof=any true false null"`
	Radar      TriState `query:"radar" validate:"oneof=any true false null"`
	BabyChange TriState `query:"babyChange" validate:"oneof=any true false null"`
	NoPayment  TriState `query:"noPayment" validate:"oneof=any true false null"`

	Verified    BoolFilter `query:"verified" validate:"oneof=any true false"`
	HasLocation BoolFilter `query:"hasLocation" validate:"oneof=any true false"`

	Sort  Sort `query:"sort" validate:"oneof=updated-desc updated-asc created-desc created-asc verified-desc verified-asc name-asc name-desc"`
	Limit int  `query:"limit" validate:"min=1,max=200"`
	Page  int  `query:"page" validate:"min=1,max=1000000"`
}

// DefaultFilters matches every loo, newest edits first
func DefaultFilters() Filters {
	return Filters{
		Active:      TriAny,
		Accessible:  TriAny,
		AllGender:   TriAny,
		Radar:       TriAny,
		BabyChange:  TriAny,
		NoPayment:   TriAny,
		Verified:    BoolAny,
		HasLocation: BoolAny,
		Sort:        DefaultSort,
		Limit:       DefaultLimit,
		Page:        DefaultPage,
	}
}

// Offset is the number of rows skipped before the current page
func (f Filters) Offset() int {
	return (f.Page - 1) * f.Limit
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("query"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// ParseFilters reads filters from a query string. Absent or empty parameters
// take their defaults; anything else that is not recognised is reported
// rather than silently replaced.
func ParseFilters(values url.Values) (Filters, error) {
	f := DefaultFilters()
	verr := &models.ValidationError{}

	f.Search = strings.TrimSpace(values.Get("search"))
	f.AreaName = strings.TrimSpace(values.Get("areaName"))
	f.AreaType = strings.TrimSpace(values.Get("areaType"))

	for name, dst := range f.triStates() {
		if v := values.Get(name); v != "" {
			*dst = TriState(v)
		}
	}
	for name, dst := range f.boolFilters() {
		if v := values.Get(name); v != "" {
			*dst = BoolFilter(v)
		}
	}
	if v := values.Get("sort"); v != "" {
		f.Sort = Sort(v)
	}

	parseInt(values, "limit", &f.Limit, verr)
	parseInt(values, "page", &f.Page, verr)

	collectIssues(validate.Struct(f), verr)

	if verr.HasIssues() {
		return Filters{}, verr
	}
	return f, nil
}

// ParseMetricsRequest reads the filters plus the recentWindowDays parameter.
// Pagination parameters are accepted but ignored by the metrics query.
func ParseMetricsRequest(values url.Values) (Filters, int, error) {
	verr := &models.ValidationError{}

	f, err := ParseFilters(values)
	if err != nil && !errors.As(err, &verr) {
		return Filters{}, 0, err
	}

	days := DefaultRecentWindowDays
	parseInt(values, "recentWindowDays", &days, verr)
	if days < 1 || days > MaxRecentWindowDays {
		verr.Add("recentWindowDays", fmt.Sprintf("must be between 1 and %d", MaxRecentWindowDays))
	}

	if verr.HasIssues() {
		return Filters{}, 0, verr
	}
	return f, days, nil
}

// Values serialises f so that ParseFilters(f.Values()) == f.
// Parameters holding their default value are omitted.
func (f Filters) Values() url.Values {
	values := url.Values{}
	def := DefaultFilters()

	setIf := func(key, value, defValue string) {
		if value != defValue {
			values.Set(key, value)
		}
	}

	setIf("search", f.Search, "")
	setIf("areaName", f.AreaName, "")
	setIf("areaType", f.AreaType, "")

	for name, v := range f.triStates() {
		setIf(name, string(*v), string(TriAny))
	}
	for name, v := range f.boolFilters() {
		setIf(name, string(*v), string(BoolAny))
	}

	setIf("sort", string(f.Sort), string(def.Sort))
	setIf("limit", strconv.Itoa(f.Limit), strconv.Itoa(def.Limit))
	setIf("page", strconv.Itoa(f.Page), strconv.Itoa(def.Page))

	return values
}

func (f *Filters) triStates() map[string]*TriState {
	return map[string]*TriState{
		"active":     &f.Active,
		"accessible": &f.Accessible,
		"allGender":  &f.AllGender,
		"radar":      &f.Radar,
		"babyChange": &f.BabyChange,
		"noPayment":  &f.NoPayment,
	}
}

func (f *Filters) boolFilters() map[string]*BoolFilter {
	return map[string]*BoolFilter{
		"verified":    &f.Verified,
		"hasLocation": &f.HasLocation,
	}
}

func parseInt(values url.Values, key string, dst *int, verr *models.ValidationError) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		verr.Add(key, "must be an integer")
		return
	}
	*dst = n
}

func collectIssues(err error, verr *models.ValidationError) {
	if err == nil {
		return
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		verr.Add("query", err.Error())
		return
	}
	for _, fe := range ve {
		verr.Add(fe.Field(), formatIssue(fe))
	}
}

func formatIssue(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	default:
		return "failed validation: " + fe.Tag()
	}
}
