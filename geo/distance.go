package geo

import (
	"context"
	"database/sql"
	"log"
	"math"
	"sync"

	"fleet-dispatch/models"
)

const earthRadiusMeters = 6371000

// Estimator computes the distance in meters between two coordinates. Results
// are non-negative, symmetric, and zero iff both points are equal.
type Estimator interface {
	Distance(ctx context.Context, a, b models.Coordinate) (float64, error)
}

// Haversine is the closed-form great-circle estimator. It never errors.
type Haversine struct{}

func (Haversine) Distance(_ context.Context, a, b models.Coordinate) (float64, error) {
	return HaversineMeters(a, b), nil
}

// HaversineMeters computes the great-circle distance between a and b.
func HaversineMeters(a, b models.Coordinate) float64 {
	if a.Equal(b) {
		return 0
	}
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)
	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*sinLng*sinLng
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Geodesic computes distance through the database's PostGIS geography type.
// It errors when the extension is missing or the round-trip fails; callers
// are expected to wrap it in a Resilient estimator.
type Geodesic struct {
	DB *sql.DB
}

func (g *Geodesic) Distance(ctx context.Context, a, b models.Coordinate) (float64, error) {
	var meters float64
	err := g.DB.QueryRowContext(ctx,
		`SELECT ST_Distance(
			ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
			ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography
		)`,
		a.Lng, a.Lat, b.Lng, b.Lat,
	).Scan(&meters)
	if err != nil {
		return 0, err
	}
	return meters, nil
}

// Resilient serves Primary and silently falls back to Fallback when Primary
// errors. The degradation is logged once, never surfaced to the caller.
type Resilient struct {
	Primary  Estimator
	Fallback Estimator

	logOnce sync.Once
}

func (r *Resilient) Distance(ctx context.Context, a, b models.Coordinate) (float64, error) {
	if r.Primary != nil {
		meters, err := r.Primary.Distance(ctx, a, b)
		if err == nil {
			return meters, nil
		}
		r.logOnce.Do(func() {
			log.Printf("geo: primary distance estimator degraded, using fallback: %v", err)
		})
	}
	return r.Fallback.Distance(ctx, a, b)
}
