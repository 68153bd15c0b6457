package dispatch

import (
	"context"
	"log"
	"sort"

	"fleet-dispatch/geo"
	"fleet-dispatch/models"
)

// Candidate is an eligible driver ranked by distance from the pickup point.
type Candidate struct {
	Driver    models.Driver
	DistanceM float64
}

// Match returns the nearest candidate, or nil when none exist. Ties on
// distance break by ascending driver id so assignment stays reproducible.
func Match(ctx context.Context, est geo.Estimator, pickup models.Coordinate, drivers []models.Driver) (*Candidate, error) {
	ranked, err := Rank(ctx, est, pickup, drivers)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}
	return &ranked[0], nil
}

// Rank orders drivers by ascending distance from pickup, then ascending id.
// Drivers without a position are skipped.
func Rank(ctx context.Context, est geo.Estimator, pickup models.Coordinate, drivers []models.Driver) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		if d.Coordinate == nil {
			continue
		}
		meters, err := est.Distance(ctx, pickup, *d.Coordinate)
		if err != nil {
			log.Printf("dispatch: skipping driver %d, distance failed: %v", d.ID, err)
			continue
		}
		candidates = append(candidates, Candidate{Driver: d, DistanceM: meters})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceM != candidates[j].DistanceM {
			return candidates[i].DistanceM < candidates[j].DistanceM
		}
		return candidates[i].Driver.ID < candidates[j].Driver.ID
	})
	return candidates, nil
}
