package geo

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"fleet-dispatch/models"
)

func TestHaversineKnownDistances(t *testing.T) {
	cases := []struct {
		name   string
		a, b   models.Coordinate
		wantM  float64
		within float64 // relative tolerance
	}{
		{
			// one degree of latitude at the equator: pi*R/180
			name:   "one degree latitude",
			a:      models.Coordinate{Lat: 0, Lng: 0},
			b:      models.Coordinate{Lat: 1, Lng: 0},
			wantM:  111194.93,
			within: 0.001,
		},
		{
			name:   "short hop north",
			a:      models.Coordinate{Lat: 32.9270, Lng: 35.0830},
			b:      models.Coordinate{Lat: 32.9360, Lng: 35.0830},
			wantM:  1000.75,
			within: 0.005,
		},
		{
			name:   "across town",
			a:      models.Coordinate{Lat: 32.9270, Lng: 35.0830},
			b:      models.Coordinate{Lat: 32.9270, Lng: 35.1300},
			wantM:  4385,
			within: 0.01,
		},
	}
	for _, c := range cases {
		got := HaversineMeters(c.a, c.b)
		if rel := math.Abs(got-c.wantM) / c.wantM; rel > c.within {
			t.Errorf("%s: got %.2f m, want %.2f m (+/-%.2f%%)", c.name, got, c.wantM, c.within*100)
		}
	}
}

// Symmetry, non-negativity, and zero-iff-equal over a spread of pairs.
func TestHaversineProperties(t *testing.T) {
	points := []models.Coordinate{
		{Lat: 0, Lng: 0},
		{Lat: 32.9270, Lng: 35.0830},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 51.5074, Lng: -0.1278},
		{Lat: 89.9, Lng: 179.9},
	}
	for _, a := range points {
		for _, b := range points {
			ab := HaversineMeters(a, b)
			ba := HaversineMeters(b, a)
			if ab < 0 {
				t.Fatalf("distance(%v, %v) = %f, want >= 0", a, b, ab)
			}
			if ab != ba {
				t.Fatalf("asymmetric: distance(%v,%v)=%f distance(%v,%v)=%f", a, b, ab, b, a, ba)
			}
			if a.Equal(b) && ab != 0 {
				t.Fatalf("distance(%v, %v) = %f, want 0 for equal points", a, b, ab)
			}
			if !a.Equal(b) && ab == 0 {
				t.Fatalf("distance(%v, %v) = 0 for distinct points", a, b)
			}
		}
	}
}

// The database-backed estimator should stay within 1% of the closed form for
// city-scale pairs (under 10 km). Needs a PostGIS database; set
// GEODESIC_TEST_DSN to run it, otherwise the test skips.
func TestGeodesicAgreesWithHaversine(t *testing.T) {
	dsn := os.Getenv("GEODESIC_TEST_DSN")
	if dsn == "" {
		t.Skip("GEODESIC_TEST_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	est := Geodesic{DB: db}
	pairs := []struct{ a, b models.Coordinate }{
		{models.Coordinate{Lat: 32.9270, Lng: 35.0830}, models.Coordinate{Lat: 32.9360, Lng: 35.0830}},
		{models.Coordinate{Lat: 32.9270, Lng: 35.0830}, models.Coordinate{Lat: 32.9270, Lng: 35.1300}},
		{models.Coordinate{Lat: 51.5074, Lng: -0.1278}, models.Coordinate{Lat: 51.4700, Lng: -0.2000}},
		{models.Coordinate{Lat: 0, Lng: 0}, models.Coordinate{Lat: 0.05, Lng: 0.05}},
	}
	for _, p := range pairs {
		geodesic, err := est.Distance(context.Background(), p.a, p.b)
		if err != nil {
			t.Fatal(err)
		}
		haversine := HaversineMeters(p.a, p.b)
		if rel := math.Abs(geodesic-haversine) / geodesic; rel > 0.01 {
			t.Errorf("distance(%v, %v): geodesic %.2f m vs haversine %.2f m, %.2f%% apart",
				p.a, p.b, geodesic, haversine, rel*100)
		}
	}
}

type failingEstimator struct{}

func (failingEstimator) Distance(context.Context, models.Coordinate, models.Coordinate) (float64, error) {
	return 0, errors.New("extension unavailable")
}

type fixedEstimator struct{ meters float64 }

func (f fixedEstimator) Distance(context.Context, models.Coordinate, models.Coordinate) (float64, error) {
	return f.meters, nil
}

func TestResilientFallsBackSilently(t *testing.T) {
	est := &Resilient{Primary: failingEstimator{}, Fallback: Haversine{}}
	a := models.Coordinate{Lat: 32.9270, Lng: 35.0830}
	b := models.Coordinate{Lat: 32.9360, Lng: 35.0830}

	got, err := est.Distance(context.Background(), a, b)
	if err != nil {
		t.Fatalf("fallback must not surface the primary failure, got %v", err)
	}
	if want := HaversineMeters(a, b); got != want {
		t.Fatalf("got %f, want haversine result %f", got, want)
	}
}

func TestResilientPrefersPrimary(t *testing.T) {
	est := &Resilient{Primary: fixedEstimator{meters: 42}, Fallback: Haversine{}}
	got, err := est.Distance(context.Background(),
		models.Coordinate{Lat: 1, Lng: 1}, models.Coordinate{Lat: 2, Lng: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Fatalf("got %f, want the primary's 42", got)
	}
}

func TestResilientWithoutPrimary(t *testing.T) {
	est := &Resilient{Fallback: Haversine{}}
	a := models.Coordinate{Lat: 10, Lng: 10}
	got, err := est.Distance(context.Background(), a, a)
	if err != nil || got != 0 {
		t.Fatalf("got (%f, %v), want (0, nil)", got, err)
	}
}
