package dispatch

import (
	"context"
	"errors"
	"testing"

	"fleet-dispatch/models"
)

func TestAcceptAndCompleteHappyPath(t *testing.T) {
	eng, mem := newTestEngine(t)
	tenantID := mkTenant(t, mem)
	driverID := mkDriver(t, mem, tenantID, true, true, pickup, nil)
	ctx := context.Background()

	tripID := mkTrip(t, eng, tenantID, pickup)
	if _, err := eng.Dispatch(ctx, tripID); err != nil {
		t.Fatal(err)
	}

	if err := eng.Accept(ctx, tripID, driverID); err != nil {
		t.Fatal(err)
	}
	trip, _ := mem.GetTrip(ctx, tripID)
	if trip.Status != models.StatusActive {
		t.Fatalf("status %s after accept, want active", trip.Status)
	}

	if err := eng.Complete(ctx, tripID, driverID); err != nil {
		t.Fatal(err)
	}
	trip, _ = mem.GetTrip(ctx, tripID)
	if trip.Status != models.StatusCompleted {
		t.Fatalf("status %s after complete, want completed", trip.Status)
	}

	// Completed is terminal: nothing moves it again.
	if err := eng.Complete(ctx, tripID, driverID); !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict on a completed trip", err)
	}
	if err := eng.Decline(ctx, tripID, driverID); !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict declining a completed trip", err)
	}
}

func TestNoSkippingStates(t *testing.T) {
	eng, mem := newTestEngine(t)
	tenantID := mkTenant(t, mem)
	driverID := mkDriver(t, mem, tenantID, true, true, pickup, nil)
	ctx := context.Background()

	tripID := mkTrip(t, eng, tenantID, pickup)
	if _, err := eng.Dispatch(ctx, tripID); err != nil {
		t.Fatal(err)
	}

	// pending-assigned straight to completed must fail.
	if err := eng.Complete(ctx, tripID, driverID); !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict completing an unaccepted trip", err)
	}
	if err := eng.Advance(ctx, tripID, driverID, "teleported"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput for an unknown target status", err)
	}
}

// Forbidden and conflict stay distinguishable: a stranger gets forbidden, a
// formerly assigned driver whose trip moved on gets conflict.
func TestForbiddenVersusConflict(t *testing.T) {
	eng, mem := newTestEngine(t)
	tenantID := mkTenant(t, mem)
	ctx := context.Background()

	d1 := mkDriver(t, mem, tenantID, true, true, models.Coordinate{Lat: 32.92745, Lng: 35.0830}, nil)
	d2 := mkDriver(t, mem, tenantID, true, true, models.Coordinate{Lat: 32.9315, Lng: 35.0830}, nil)
	d3 := mkDriver(t, mem, tenantID, true, true, models.Coordinate{Lat: 32.9360, Lng: 35.0830}, nil)

	tripID := mkTrip(t, eng, tenantID, pickup)
	assignment, err := eng.Dispatch(ctx, tripID)
	if err != nil {
		t.Fatal(err)
	}
	if assignment.DriverID != d1 {
		t.Fatalf("setup: expected d1 (%d) assigned, got %d", d1, assignment.DriverID)
	}

	// A driver who was never assigned gets forbidden.
	if err := eng.Accept(ctx, tripID, d2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden for a non-assigned driver", err)
	}

	// d1 declines; the trip returns to the unassigned pool.
	if err := eng.Decline(ctx, tripID, d1); err != nil {
		t.Fatal(err)
	}
	trip, _ := mem.GetTrip(ctx, tripID)
	if trip.Assigned() || trip.Status != models.StatusPending {
		t.Fatalf("declined trip must be pending and unassigned, got %+v", trip)
	}

	// Accept against an unassigned trip: conflict, not forbidden.
	if err := eng.Accept(ctx, tripID, d1); !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict for accept on an unassigned trip", err)
	}

	// Re-dispatch binds the next nearest driver.
	assignment, err = eng.Dispatch(ctx, tripID)
	if err != nil {
		t.Fatal(err)
	}
	if assignment.DriverID != d2 {
		t.Fatalf("re-dispatch assigned %d, want d2 (%d)", assignment.DriverID, d2)
	}

	// d1's client is stale and still tries to accept: conflict, since it held
	// the trip once. d3 was never involved and gets forbidden.
	if err := eng.Accept(ctx, tripID, d1); !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict for the formerly assigned driver", err)
	}
	if err := eng.Accept(ctx, tripID, d3); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden for an uninvolved driver", err)
	}
}

// A declining driver is excluded from every later dispatch of that trip,
// even while remaining the nearest.
func TestDeclineExcludesDriverFromRedispatch(t *testing.T) {
	eng, mem := newTestEngine(t)
	tenantID := mkTenant(t, mem)
	ctx := context.Background()

	near := mkDriver(t, mem, tenantID, true, true, models.Coordinate{Lat: 32.92745, Lng: 35.0830}, nil) // ~50 m
	far := mkDriver(t, mem, tenantID, true, true, models.Coordinate{Lat: 32.9315, Lng: 35.0830}, nil)   // ~500 m

	tripID := mkTrip(t, eng, tenantID, pickup)
	assignment, err := eng.Dispatch(ctx, tripID)
	if err != nil {
		t.Fatal(err)
	}
	if assignment.DriverID != near {
		t.Fatalf("setup: expected the near driver %d, got %d", near, assignment.DriverID)
	}

	if err := eng.Decline(ctx, tripID, near); err != nil {
		t.Fatal(err)
	}

	assignment, err = eng.Dispatch(ctx, tripID)
	if err != nil {
		t.Fatal(err)
	}
	if assignment.DriverID != far {
		t.Fatalf("re-dispatch assigned %d, want the far driver %d: decliners stay excluded", assignment.DriverID, far)
	}

	// With everyone having declined, nothing is left.
	if err := eng.Decline(ctx, tripID, far); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Dispatch(ctx, tripID); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("got %v, want ErrNoCandidates after both drivers declined", err)
	}
}

func TestDeclineFromActive(t *testing.T) {
	eng, mem := newTestEngine(t)
	tenantID := mkTenant(t, mem)
	driverID := mkDriver(t, mem, tenantID, true, true, pickup, nil)
	ctx := context.Background()

	tripID := mkTrip(t, eng, tenantID, pickup)
	if _, err := eng.Dispatch(ctx, tripID); err != nil {
		t.Fatal(err)
	}
	if err := eng.Accept(ctx, tripID, driverID); err != nil {
		t.Fatal(err)
	}

	// Unassign from active: back to unassigned pending.
	if err := eng.Decline(ctx, tripID, driverID); err != nil {
		t.Fatal(err)
	}
	trip, _ := mem.GetTrip(ctx, tripID)
	if trip.Assigned() || trip.Status != models.StatusPending {
		t.Fatalf("trip after unassign should be pending and unassigned, got %+v", trip)
	}
}
