package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Hemisphere string

const (
	HemisphereNorth Hemisphere = "N"
	HemisphereSouth Hemisphere = "S"
	HemisphereBoth  Hemisphere = "B"
)

// Season is an availability window in months (1-12). A window whose start
// is after its end wraps the year end.
type Season struct {
	Name       string     `json:"name" db:"name"`
	StartMonth int        `json:"start_month" db:"start_month" validate:"min=1,max=12"`
	EndMonth   int        `json:"end_month" db:"end_month" validate:"min=1,max=12"`
	Hemisphere Hemisphere `json:"hemisphere" db:"hemisphere" validate:"oneof=N S B"`
}

// Contains reports whether month falls inside the window for the given
// hemisphere.
func (s Season) Contains(month int, hemisphere Hemisphere) bool {
	if s.Hemisphere != hemisphere && s.Hemisphere != HemisphereBoth {
		return false
	}
	if s.StartMonth > s.EndMonth {
		return month >= s.StartMonth || month <= s.EndMonth
	}
	return month >= s.StartMonth && month <= s.EndMonth
}

type Product struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Description        string    `json:"description" db:"description"`
	CategoryID         uuid.UUID `json:"category_id" db:"category_id"`
	Category           string    `json:"category" db:"category"`
	Price              float64   `json:"price" db:"price"`
	Featured           bool      `json:"featured" db:"featured"`
	IsSeasonal         bool      `json:"is_seasonal" db:"is_seasonal"`
	Seasons            []Season  `json:"seasons,omitempty"`
	IsLocationSpecific bool      `json:"is_location_specific" db:"is_location_specific"`
	AvailableCountries string    `json:"available_countries,omitempty" db:"available_countries"`
	AvailableRegions   string    `json:"available_regions,omitempty" db:"available_regions"`
	AvgRating          float64   `json:"avg_rating" db:"avg_rating"`
	ReviewCount        int       `json:"review_count" db:"review_count"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// Document is the text the content model is fitted on.
func (p *Product) Document() string {
	return p.Name + " " + p.Description + " " + p.Category
}

// InSeason reports whether the product is sellable in month for the given
// hemisphere. Products that are not seasonal, or carry no seasons, are
// always in season.
func (p *Product) InSeason(month int, hemisphere Hemisphere) bool {
	if !p.IsSeasonal || len(p.Seasons) == 0 {
		return true
	}
	for _, season := range p.Seasons {
		if season.Contains(month, hemisphere) {
			return true
		}
	}
	return false
}

// HasSeasonTags reports whether the product carries at least one season.
func (p *Product) HasSeasonTags() bool {
	return len(p.Seasons) > 0
}

// AvailableIn reports whether the product may be shown to a caller in the
// given country and region. Empty values are not checked.
func (p *Product) AvailableIn(country, region string) bool {
	if !p.IsLocationSpecific {
		return true
	}
	if country != "" && p.AvailableCountries != "" && !ListContains(p.AvailableCountries, country) {
		return false
	}
	if region != "" && p.AvailableRegions != "" && !ListContains(p.AvailableRegions, region) {
		return false
	}
	return true
}

// ListContains reports whether value is one of the comma separated entries
// of list, ignoring surrounding whitespace.
func ListContains(list, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, entry := range strings.Split(list, ",") {
		if strings.TrimSpace(entry) == value {
			return true
		}
	}
	return false
}
