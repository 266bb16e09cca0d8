// Package geo maps shopper countries to the hemisphere used for seasonal
// matching.
package geo

import (
	"strings"

	"github.com/temcen/seasonrec/pkg/models"
)

type Resolver interface {
	Hemisphere(country string) models.Hemisphere
}

var (
	defaultNorthern = []string{"US", "CA", "GB", "DE", "FR", "IT", "ES", "JP", "CN", "RU"}
	defaultSouthern = []string{"AU", "NZ", "AR", "BR", "CL", "ZA", "ZW"}
)

// TableResolver looks countries up in a fixed table. Countries that are
// not listed resolve to the northern hemisphere.
type TableResolver struct {
	table map[string]models.Hemisphere
}

// NewTableResolver builds the default table extended with extra country
// codes. Extra entries override the defaults.
func NewTableResolver(extraNorthern, extraSouthern []string) *TableResolver {
	r := &TableResolver{table: make(map[string]models.Hemisphere)}
	r.add(defaultNorthern, models.HemisphereNorth)
	r.add(defaultSouthern, models.HemisphereSouth)
	r.add(extraNorthern, models.HemisphereNorth)
	r.add(extraSouthern, models.HemisphereSouth)
	return r
}

func (r *TableResolver) add(countries []string, h models.Hemisphere) {
	for _, c := range countries {
		if c = normalize(c); c != "" {
			r.table[c] = h
		}
	}
}

func (r *TableResolver) Hemisphere(country string) models.Hemisphere {
	if h, ok := r.table[normalize(country)]; ok {
		return h
	}
	return models.HemisphereNorth
}

// Known reports whether the country is listed explicitly.
func (r *TableResolver) Known(country string) bool {
	_, ok := r.table[normalize(country)]
	return ok
}

func normalize(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}
