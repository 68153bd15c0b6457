// Package store holds the persistence boundary. The transactional store is
// the single serialization point for dispatch: correctness of assignment
// rests on the conditional updates here, not on in-process locks.
package store

import (
	"context"
	"errors"

	"fleet-dispatch/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

type TenantStore interface {
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
}

type DriverStore interface {
	CreateDriver(ctx context.Context, d *models.Driver) error
	GetDriver(ctx context.Context, id int64) (*models.Driver, error)
	// UpdateLocation writes the driver's latest position plus the derived
	// geohash and zone tag.
	UpdateLocation(ctx context.Context, id int64, c models.Coordinate, hash string, zoneID *int64) error
	SetOnline(ctx context.Context, id int64, online bool) error
	SetActive(ctx context.Context, id int64, active bool) error
	// Eligible returns the tenant's drivers that are online, approved,
	// active, positioned, not bound to a pending-assigned or active trip,
	// in the given zone (when zoneID is non-nil), and not in exclude. It
	// reads committed state at call time; results are never cached.
	Eligible(ctx context.Context, tenantID int64, zoneID *int64, exclude []int64) ([]models.Driver, error)
}

type ZoneStore interface {
	CreateZone(ctx context.Context, z *models.Zone) error
	DeleteZone(ctx context.Context, id int64) error
	GetZone(ctx context.Context, id int64) (*models.Zone, error)
	// ZonesByTenant returns zones in creation order, the containment
	// tie-break order.
	ZonesByTenant(ctx context.Context, tenantID int64) ([]models.Zone, error)
}

type TripStore interface {
	CreateTrip(ctx context.Context, t *models.Trip) error
	GetTrip(ctx context.Context, id int64) (*models.Trip, error)
	// SetTripZone tags the trip with its derived zone iff no zone is set
	// yet. Concurrent dispatchers derive the same zone, so losing this
	// write is a no-op, not an error.
	SetTripZone(ctx context.Context, tripID, zoneID int64) error

	// AssignDriver binds the driver iff the trip is still pending and
	// unassigned, in one atomic statement. false means another process
	// resolved the trip first.
	AssignDriver(ctx context.Context, tripID, driverID int64) (bool, error)

	// UpdateStatus moves the trip from -> to iff driverID is still the
	// bound driver and the status still equals from.
	UpdateStatus(ctx context.Context, tripID, driverID int64, from, to string) (bool, error)

	// ClearAssignment unwinds an assigned trip back to unassigned pending
	// iff driverID is still the bound driver.
	ClearAssignment(ctx context.Context, tripID, driverID int64) (bool, error)

	RecordDecline(ctx context.Context, tripID, driverID int64) error
	Declines(ctx context.Context, tripID int64) ([]int64, error)
	HasDeclined(ctx context.Context, tripID, driverID int64) (bool, error)
}
