// Package proximity ranks active lost-pet reports by distance from a device.
package proximity

import (
	"sort"

	"github.com/lostpaws/lostpaws/internal/geo"
	"github.com/lostpaws/lostpaws/internal/model"
)

// Candidate is a pet within a device's alert radius.
type Candidate struct {
	Pet        model.Pet
	DistanceKm float64
}

// Match returns the pets within radiusKm of (lat, lng), sorted ascending by
// distance with ties broken by the most recent report. Found pets and pets
// without coordinates are skipped, never an error.
func Match(lat, lng float64, pets []model.Pet, radiusKm float64) []Candidate {
	var out []Candidate
	for _, p := range pets {
		if p.Found || !p.HasLocation() {
			continue
		}
		d := geo.DistanceKm(lat, lng, *p.Latitude, *p.Longitude)
		if d > radiusKm {
			continue
		}
		out = append(out, Candidate{Pet: p, DistanceKm: d})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Pet.CreatedAt.After(out[j].Pet.CreatedAt)
	})

	return out
}
