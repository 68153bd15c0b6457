package store

import (
	"context"
	"sync"
	"testing"

	"fleet-dispatch/models"
)

func pendingTrip(t *testing.T, s *Memory) int64 {
	t.Helper()
	ctx := context.Background()
	tenant := &models.Tenant{Name: "station"}
	if err := s.CreateTenant(ctx, tenant); err != nil {
		t.Fatal(err)
	}
	trip := &models.Trip{
		TenantID: tenant.ID,
		Pickup:   models.Coordinate{Lat: 1, Lng: 1},
		Status:   models.StatusPending,
	}
	if err := s.CreateTrip(ctx, trip); err != nil {
		t.Fatal(err)
	}
	return trip.ID
}

// The conditional assign admits exactly one writer, no matter how many race.
func TestAssignDriverIsAtomic(t *testing.T) {
	s := NewMemory()
	tripID := pendingTrip(t, s)

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		driverID := int64(i + 100)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AssignDriver(context.Background(), tripID, driverID)
			if err != nil {
				t.Error(err)
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("got %d winners, want exactly 1", wins)
	}
}

func TestUpdateStatusReverifiesDriver(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	tripID := pendingTrip(t, s)

	if ok, _ := s.AssignDriver(ctx, tripID, 7); !ok {
		t.Fatal("assign should succeed on a fresh trip")
	}

	// Wrong driver: no rows.
	if ok, _ := s.UpdateStatus(ctx, tripID, 8, models.StatusPending, models.StatusActive); ok {
		t.Fatal("a different driver must not advance the trip")
	}
	// Wrong prior status: no rows.
	if ok, _ := s.UpdateStatus(ctx, tripID, 7, models.StatusActive, models.StatusCompleted); ok {
		t.Fatal("advance must re-check the prior status")
	}
	if ok, _ := s.UpdateStatus(ctx, tripID, 7, models.StatusPending, models.StatusActive); !ok {
		t.Fatal("the assigned driver should advance pending->active")
	}
}

func TestClearAssignmentUnwinds(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	tripID := pendingTrip(t, s)

	if ok, _ := s.ClearAssignment(ctx, tripID, 7); ok {
		t.Fatal("clearing an unassigned trip must be a no-op")
	}
	if ok, _ := s.AssignDriver(ctx, tripID, 7); !ok {
		t.Fatal("assign failed")
	}
	if ok, _ := s.ClearAssignment(ctx, tripID, 9); ok {
		t.Fatal("only the bound driver can be cleared")
	}
	if ok, _ := s.ClearAssignment(ctx, tripID, 7); !ok {
		t.Fatal("clear by the bound driver should succeed")
	}

	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		t.Fatal(err)
	}
	if trip.Assigned() || trip.Status != models.StatusPending {
		t.Fatalf("cleared trip should be unassigned pending, got %+v", trip)
	}

	// Unwound trips are assignable again.
	if ok, _ := s.AssignDriver(ctx, tripID, 9); !ok {
		t.Fatal("reassign after clear should succeed")
	}
}

// The zone tag is write-once: concurrent dispatchers derive the same zone,
// and a later writer must not clobber an already tagged trip.
func TestSetTripZoneIsWriteOnce(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	tripID := pendingTrip(t, s)

	if err := s.SetTripZone(ctx, tripID, 5); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTripZone(ctx, tripID, 6); err != nil {
		t.Fatal(err)
	}

	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		t.Fatal(err)
	}
	if trip.ZoneID == nil || *trip.ZoneID != 5 {
		t.Fatalf("zone = %v, want the first write (5) to stick", trip.ZoneID)
	}
}

func TestDeclineBookkeeping(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	tripID := pendingTrip(t, s)

	if err := s.RecordDecline(ctx, tripID, 4); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordDecline(ctx, tripID, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordDecline(ctx, tripID, 4); err != nil { // idempotent
		t.Fatal(err)
	}

	ids, err := s.Declines(ctx, tripID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 4 {
		t.Fatalf("got %v, want [2 4]", ids)
	}

	declined, err := s.HasDeclined(ctx, tripID, 4)
	if err != nil || !declined {
		t.Fatalf("HasDeclined(4) = (%t, %v), want true", declined, err)
	}
	declined, _ = s.HasDeclined(ctx, tripID, 5)
	if declined {
		t.Fatal("driver 5 never declined")
	}
}

func TestEligibleFilters(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	tenantA := &models.Tenant{Name: "a"}
	tenantB := &models.Tenant{Name: "b"}
	if err := s.CreateTenant(ctx, tenantA); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateTenant(ctx, tenantB); err != nil {
		t.Fatal(err)
	}

	coord := models.Coordinate{Lat: 1, Lng: 1}
	add := func(tenantID int64, online, approved, active bool, c *models.Coordinate, zoneID *int64) int64 {
		d := &models.Driver{TenantID: tenantID, Name: "d", Online: online, Approved: approved, Active: active}
		if err := s.CreateDriver(ctx, d); err != nil {
			t.Fatal(err)
		}
		if c != nil {
			if err := s.UpdateLocation(ctx, d.ID, *c, "", zoneID); err != nil {
				t.Fatal(err)
			}
		}
		return d.ID
	}

	zone := int64(99)
	good := add(tenantA.ID, true, true, true, &coord, nil)
	zoned := add(tenantA.ID, true, true, true, &coord, &zone)
	add(tenantA.ID, false, true, true, &coord, nil)  // offline
	add(tenantA.ID, true, false, true, &coord, nil)  // unapproved
	add(tenantA.ID, true, true, false, &coord, nil)  // deactivated
	add(tenantA.ID, true, true, true, nil, nil)      // no position
	foreign := add(tenantB.ID, true, true, true, &coord, nil)

	got, err := s.Eligible(ctx, tenantA.ID, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != good || got[1].ID != zoned {
		t.Fatalf("got %d drivers, want exactly the two dispatchable tenant-A drivers", len(got))
	}
	for _, d := range got {
		if d.ID == foreign {
			t.Fatal("tenant isolation violated")
		}
	}

	// Zone filter.
	got, err = s.Eligible(ctx, tenantA.ID, &zone, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != zoned {
		t.Fatalf("zone filter returned %d drivers, want only the zoned one", len(got))
	}

	// Exclusion list.
	got, err = s.Eligible(ctx, tenantA.ID, nil, []int64{good})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != zoned {
		t.Fatalf("exclusion returned %d drivers, want only the zoned one", len(got))
	}
}
