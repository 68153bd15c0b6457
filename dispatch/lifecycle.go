package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"fleet-dispatch/models"
	"fleet-dispatch/store"
)

// Accept confirms the assignment: pending(assigned) -> active, by the
// assigned driver only.
func (e *Engine) Accept(ctx context.Context, tripID, driverID int64) error {
	return e.advance(ctx, tripID, driverID, models.StatusPending, models.StatusActive)
}

// Complete finishes the trip: active -> completed, by the assigned driver
// only. Completed is terminal.
func (e *Engine) Complete(ctx context.Context, tripID, driverID int64) error {
	return e.advance(ctx, tripID, driverID, models.StatusActive, models.StatusCompleted)
}

// Advance moves the trip to the requested target status on behalf of a
// driver. Unknown or non-adjacent targets are invalid input.
func (e *Engine) Advance(ctx context.Context, tripID, driverID int64, target string) error {
	switch target {
	case models.StatusActive:
		return e.Accept(ctx, tripID, driverID)
	case models.StatusCompleted:
		return e.Complete(ctx, tripID, driverID)
	default:
		return fmt.Errorf("%w: cannot advance trip to %q", ErrInvalidInput, target)
	}
}

// Decline unwinds an assigned trip back to unassigned pending and records
// the decline so re-dispatch skips this driver for this trip. Re-dispatch
// itself is triggered externally, never scheduled here.
func (e *Engine) Decline(ctx context.Context, tripID, driverID int64) error {
	trip, err := e.getTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if err := e.authorize(ctx, trip, driverID); err != nil {
		return err
	}
	ok, err := e.trips.ClearAssignment(ctx, tripID, driverID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if err := e.trips.RecordDecline(ctx, tripID, driverID); err != nil {
		// The unwind already committed; losing the exclusion record only
		// risks re-offering the trip to the same driver.
		log.Printf("dispatch: decline of trip %d by driver %d not recorded: %v", tripID, driverID, err)
	}
	return nil
}

func (e *Engine) advance(ctx context.Context, tripID, driverID int64, from, to string) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: illegal transition %s->%s", ErrInvalidInput, from, to)
	}
	trip, err := e.getTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if err := e.authorize(ctx, trip, driverID); err != nil {
		return err
	}
	// The write re-verifies driver and status; the read above only shapes
	// the error we report.
	ok, err := e.trips.UpdateStatus(ctx, tripID, driverID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// authorize separates the two failure modes the caller must distinguish:
// conflict (the trip moved on without the caller: unassigned again, or the
// caller already declined it) versus forbidden (the caller was never the
// assigned driver; a potential integrity signal, logged).
func (e *Engine) authorize(ctx context.Context, trip *models.Trip, driverID int64) error {
	if trip.AssignedTo(driverID) {
		return nil
	}
	if !trip.Assigned() {
		return ErrConflict
	}
	declined, err := e.trips.HasDeclined(ctx, trip.ID, driverID)
	if err != nil {
		return err
	}
	if declined {
		return ErrConflict
	}
	log.Printf("dispatch: driver %d attempted a transition on trip %d assigned to driver %d",
		driverID, trip.ID, *trip.DriverID)
	return ErrForbidden
}

func (e *Engine) getTrip(ctx context.Context, tripID int64) (*models.Trip, error) {
	trip, err := e.trips.GetTrip(ctx, tripID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: trip %d", ErrNotFound, tripID)
		}
		return nil, err
	}
	return trip, nil
}
