package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"fleet-dispatch/geo"
	"fleet-dispatch/models"
	"fleet-dispatch/store"
)

// PositionSource serves the freshest known driver positions. It is owned by
// the driver clients, not by the engine: the engine reads through on every
// dispatch and never caches what it sees.
type PositionSource interface {
	Positions(ctx context.Context, tenantID int64, driverIDs []int64) (map[int64]models.Coordinate, error)
}

// Engine runs the dispatch pipeline: geofence tagging, eligibility,
// matching, and the atomic assignment. All coordination between concurrent
// dispatch attempts happens through the trip store's conditional writes.
type Engine struct {
	tenants   store.TenantStore
	drivers   store.DriverStore
	zones     store.ZoneStore
	trips     store.TripStore
	geofence  *geo.Index
	estimator geo.Estimator
	positions PositionSource // optional read-through overlay
	notifier  Notifier
}

func NewEngine(
	tenants store.TenantStore,
	drivers store.DriverStore,
	zones store.ZoneStore,
	trips store.TripStore,
	geofence *geo.Index,
	estimator geo.Estimator,
	positions PositionSource,
	notifier Notifier,
) *Engine {
	return &Engine{
		tenants:   tenants,
		drivers:   drivers,
		zones:     zones,
		trips:     trips,
		geofence:  geofence,
		estimator: estimator,
		positions: positions,
		notifier:  notifier,
	}
}

// Assignment is the successful dispatch outcome.
type Assignment struct {
	TripID    int64   `json:"trip_id"`
	DriverID  int64   `json:"driver_id"`
	DistanceM float64 `json:"distance_m"`
}

// TripRequest is the inbound create-trip contract. Pickup is mandatory.
type TripRequest struct {
	TenantID    int64
	Pickup      *models.Coordinate
	Destination *models.Coordinate
	ZoneID      *int64
}

// CreateTrip validates the request and stores a pending, unassigned trip.
func (e *Engine) CreateTrip(ctx context.Context, req TripRequest) (*models.Trip, error) {
	if req.Pickup == nil {
		return nil, fmt.Errorf("%w: pickup coordinates are required", ErrInvalidInput)
	}
	if _, err := e.tenants.GetTenant(ctx, req.TenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown tenant %d", ErrInvalidInput, req.TenantID)
		}
		return nil, err
	}
	if req.ZoneID != nil {
		zone, err := e.zones.GetZone(ctx, *req.ZoneID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown zone %d", ErrInvalidInput, *req.ZoneID)
			}
			return nil, err
		}
		if zone.TenantID != req.TenantID {
			return nil, fmt.Errorf("%w: zone %d belongs to another tenant", ErrInvalidInput, *req.ZoneID)
		}
	}

	trip := &models.Trip{
		TenantID: req.TenantID,
		Pickup:   *req.Pickup,
		Status:   models.StatusPending,
		ZoneID:   req.ZoneID,
	}
	if req.Destination != nil {
		trip.Destination = *req.Destination
	}
	if err := e.trips.CreateTrip(ctx, trip); err != nil {
		return nil, err
	}
	return trip, nil
}

// Dispatch matches and atomically assigns the nearest eligible driver.
//
// Outcomes: an Assignment; ErrNoCandidates when no driver is eligible right
// now (no polling, no zone widening; re-dispatch is the caller's call);
// ErrConflict when the trip was already resolved by another process (benign).
func (e *Engine) Dispatch(ctx context.Context, tripID int64) (*Assignment, error) {
	trip, err := e.trips.GetTrip(ctx, tripID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: trip %d", ErrNotFound, tripID)
		}
		return nil, err
	}
	if trip.Status != models.StatusPending || trip.Assigned() {
		return nil, ErrConflict
	}

	zoneID := trip.ZoneID
	if zoneID == nil {
		zoneID, err = e.geofence.ZoneFor(ctx, trip.TenantID, trip.Pickup)
		if err != nil {
			return nil, err
		}
		if zoneID != nil {
			if err := e.trips.SetTripZone(ctx, trip.ID, *zoneID); err != nil {
				return nil, err
			}
		}
	}

	exclude, err := e.trips.Declines(ctx, trip.ID)
	if err != nil {
		return nil, err
	}

	// Committed state at filter time. An empty zoned result is final: we
	// never widen to the whole tenant implicitly.
	drivers, err := e.drivers.Eligible(ctx, trip.TenantID, zoneID, exclude)
	if err != nil {
		return nil, err
	}
	drivers = e.overlayPositions(ctx, trip.TenantID, drivers)

	candidate, err := Match(ctx, e.estimator, trip.Pickup, drivers)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, ErrNoCandidates
	}

	ok, err := e.trips.AssignDriver(ctx, trip.ID, candidate.Driver.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Zero rows: a concurrent dispatcher bound the trip between our
		// read and write. The trip is resolved, nothing left to try.
		return nil, ErrConflict
	}

	if e.notifier != nil {
		e.notifier.NotifyAssignment(trip.ID, candidate.Driver.ID)
	}
	return &Assignment{
		TripID:    trip.ID,
		DriverID:  candidate.Driver.ID,
		DistanceM: candidate.DistanceM,
	}, nil
}

// overlayPositions replaces stored coordinates with the freshest ones from
// the position source. Misses and errors keep the stored coordinate; a
// degraded position source must not fail a dispatch.
func (e *Engine) overlayPositions(ctx context.Context, tenantID int64, drivers []models.Driver) []models.Driver {
	if e.positions == nil || len(drivers) == 0 {
		return drivers
	}
	ids := make([]int64, len(drivers))
	for i, d := range drivers {
		ids[i] = d.ID
	}
	fresh, err := e.positions.Positions(ctx, tenantID, ids)
	if err != nil {
		log.Printf("dispatch: position read-through degraded, using stored coordinates: %v", err)
		return drivers
	}
	for i := range drivers {
		if c, ok := fresh[drivers[i].ID]; ok {
			drivers[i].Coordinate = &c
		}
	}
	return drivers
}
