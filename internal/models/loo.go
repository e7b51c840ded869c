package models

import (
	"encoding/json"
	"time"
)

// Location is a WGS84 coordinate pair
type Location struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// AreaRef is the administrative area a loo falls within
type AreaRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Loo is a public toilet record. Nil booleans mean "unknown".
type Loo struct {
	ID             string          `json:"id"`
	Name           *string         `json:"name"`
	Area           *AreaRef        `json:"area"`
	Active         *bool           `json:"active"`
	Accessible     *bool           `json:"accessible"`
	AllGender      *bool           `json:"allGender"`
	Men            *bool           `json:"men"`
	Women          *bool           `json:"women"`
	UrinalOnly     *bool           `json:"urinalOnly"`
	Children       *bool           `json:"children"`
	BabyChange     *bool           `json:"babyChange"`
	Radar          *bool           `json:"radar"`
	Automatic      *bool           `json:"automatic"`
	NoPayment      *bool           `json:"noPayment"`
	PaymentDetails *string         `json:"paymentDetails"`
	Notes          *string         `json:"notes"`
	RemovalReason  *string         `json:"removalReason"`
	Attended       *bool           `json:"attended"`
	OpeningTimes   json.RawMessage `json:"openingTimes"`
	Location       *Location       `json:"location"`
	VerifiedAt     *time.Time      `json:"verifiedAt"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Contributors   []string        `json:"contributors"`
}

// LooMetrics aggregates counts over a filtered set of loos
type LooMetrics struct {
	Total            int64 `json:"total"`
	Active           int64 `json:"active"`
	Verified         int64 `json:"verified"`
	Accessible       int64 `json:"accessible"`
	BabyChange       int64 `json:"babyChange"`
	Radar            int64 `json:"radar"`
	NoPayment        int64 `json:"noPayment"`
	AllGender        int64 `json:"allGender"`
	WithLocation     int64 `json:"withLocation"`
	RecentlyUpdated  int64 `json:"recentlyUpdated"`
	RecentWindowDays int   `json:"recentWindowDays"`
}

// Area is an administrative boundary loos are grouped by
type Area struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	DatasetID *int   `json:"datasetId,omitempty"`
}

// LooInput is the writable part of a loo. PUT replaces every field; a nil
// pointer stores "unknown". Verified nil leaves verifiedAt untouched on update.
type LooInput struct {
	Name           *string         `json:"name" validate:"omitempty,min=1,max=255"`
	AreaID         *string         `json:"areaId" validate:"omitempty,uuid"`
	Active         *bool           `json:"active"`
	Accessible     *bool           `json:"accessible"`
	AllGender      *bool           `json:"allGender"`
	Men            *bool           `json:"men"`
	Women          *bool           `json:"women"`
	UrinalOnly     *bool           `json:"urinalOnly"`
	Children       *bool           `json:"children"`
	BabyChange     *bool           `json:"babyChange"`
	Radar          *bool           `json:"radar"`
	Automatic      *bool           `json:"automatic"`
	NoPayment      *bool           `json:"noPayment"`
	PaymentDetails *string         `json:"paymentDetails" validate:"omitempty,max=500"`
	Notes          *string         `json:"notes" validate:"omitempty,max=2000"`
	RemovalReason  *string         `json:"removalReason" validate:"omitempty,max=500"`
	Attended       *bool           `json:"attended"`
	OpeningTimes   json.RawMessage `json:"openingTimes"`
	Location       *Location       `json:"location"`
	Verified       *bool           `json:"verified"`
}
