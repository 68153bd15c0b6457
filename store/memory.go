package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleet-dispatch/models"
)

// Memory is an in-process store with the same conditional-write semantics as
// the Postgres store. It backs local development and the dispatch tests; the
// single mutex stands in for the database's statement-level atomicity.
type Memory struct {
	mu       sync.Mutex
	tenants  map[int64]models.Tenant
	drivers  map[int64]models.Driver
	zones    map[int64]models.Zone
	trips    map[int64]models.Trip
	declines map[int64]map[int64]bool
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{
		tenants:  make(map[int64]models.Tenant),
		drivers:  make(map[int64]models.Driver),
		zones:    make(map[int64]models.Zone),
		trips:    make(map[int64]models.Trip),
		declines: make(map[int64]map[int64]bool),
	}
}

func (s *Memory) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Memory) CreateTenant(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	t.CreatedAt = time.Now()
	s.tenants[t.ID] = *t
	return nil
}

func (s *Memory) GetTenant(_ context.Context, id int64) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *Memory) CreateDriver(_ context.Context, d *models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	s.drivers[d.ID] = cloneDriver(*d)
	return nil
}

func (s *Memory) GetDriver(_ context.Context, id int64) (*models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneDriver(d)
	return &out, nil
}

func (s *Memory) UpdateLocation(_ context.Context, id int64, c models.Coordinate, hash string, zoneID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Coordinate = &models.Coordinate{Lat: c.Lat, Lng: c.Lng}
	d.Geohash = hash
	d.ZoneID = cloneID(zoneID)
	d.UpdatedAt = time.Now()
	s.drivers[id] = d
	return nil
}

func (s *Memory) SetOnline(_ context.Context, id int64, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Online = online
	d.UpdatedAt = time.Now()
	s.drivers[id] = d
	return nil
}

func (s *Memory) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Active = active
	d.UpdatedAt = time.Now()
	s.drivers[id] = d
	return nil
}

func (s *Memory) Eligible(_ context.Context, tenantID int64, zoneID *int64, exclude []int64) ([]models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	var drivers []models.Driver
	for _, d := range s.drivers {
		if d.TenantID != tenantID || excluded[d.ID] {
			continue
		}
		if !d.Online || !d.Approved || !d.Active || d.Coordinate == nil {
			continue
		}
		if zoneID != nil && (d.ZoneID == nil || *d.ZoneID != *zoneID) {
			continue
		}
		if s.busyLocked(d.ID) {
			continue
		}
		drivers = append(drivers, cloneDriver(d))
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].ID < drivers[j].ID })
	return drivers, nil
}

// busyLocked mirrors the NOT EXISTS subquery: a driver bound to a
// pending-assigned or active trip is busy. Caller holds the mutex.
func (s *Memory) busyLocked(driverID int64) bool {
	for _, t := range s.trips {
		if t.AssignedTo(driverID) && (t.Status == models.StatusPending || t.Status == models.StatusActive) {
			return true
		}
	}
	return false
}

func (s *Memory) CreateZone(_ context.Context, z *models.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z.ID = s.id()
	z.CreatedAt = time.Now()
	s.zones[z.ID] = cloneZone(*z)
	return nil
}

func (s *Memory) DeleteZone(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.zones[id]; !ok {
		return ErrNotFound
	}
	delete(s.zones, id)
	return nil
}

func (s *Memory) GetZone(_ context.Context, id int64) (*models.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneZone(z)
	return &out, nil
}

func (s *Memory) ZonesByTenant(_ context.Context, tenantID int64) ([]models.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zones []models.Zone
	for _, z := range s.zones {
		if z.TenantID == tenantID {
			zones = append(zones, cloneZone(z))
		}
	}
	sort.Slice(zones, func(i, j int) bool {
		if !zones[i].CreatedAt.Equal(zones[j].CreatedAt) {
			return zones[i].CreatedAt.Before(zones[j].CreatedAt)
		}
		return zones[i].ID < zones[j].ID
	})
	return zones, nil
}

func (s *Memory) CreateTrip(_ context.Context, t *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	s.trips[t.ID] = cloneTrip(*t)
	return nil
}

func (s *Memory) GetTrip(_ context.Context, id int64) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneTrip(t)
	return &out, nil
}

func (s *Memory) SetTripZone(_ context.Context, tripID, zoneID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok {
		return ErrNotFound
	}
	if t.ZoneID != nil {
		return nil
	}
	t.ZoneID = &zoneID
	t.UpdatedAt = time.Now()
	s.trips[tripID] = t
	return nil
}

func (s *Memory) AssignDriver(_ context.Context, tripID, driverID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok || t.Status != models.StatusPending || t.DriverID != nil {
		return false, nil
	}
	t.DriverID = &driverID
	t.UpdatedAt = time.Now()
	s.trips[tripID] = t
	return true, nil
}

func (s *Memory) UpdateStatus(_ context.Context, tripID, driverID int64, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok || !t.AssignedTo(driverID) || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	s.trips[tripID] = t
	return true, nil
}

func (s *Memory) ClearAssignment(_ context.Context, tripID, driverID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok || !t.AssignedTo(driverID) {
		return false, nil
	}
	if t.Status != models.StatusPending && t.Status != models.StatusActive {
		return false, nil
	}
	t.DriverID = nil
	t.Status = models.StatusPending
	t.UpdatedAt = time.Now()
	s.trips[tripID] = t
	return true, nil
}

func (s *Memory) RecordDecline(_ context.Context, tripID, driverID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.declines[tripID] == nil {
		s.declines[tripID] = make(map[int64]bool)
	}
	s.declines[tripID][driverID] = true
	return nil
}

func (s *Memory) Declines(_ context.Context, tripID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id := range s.declines[tripID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Memory) HasDeclined(_ context.Context, tripID, driverID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.declines[tripID][driverID], nil
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneDriver(d models.Driver) models.Driver {
	if d.Coordinate != nil {
		c := *d.Coordinate
		d.Coordinate = &c
	}
	d.ZoneID = cloneID(d.ZoneID)
	return d
}

func cloneZone(z models.Zone) models.Zone {
	polygon := make([]models.Coordinate, len(z.Polygon))
	copy(polygon, z.Polygon)
	z.Polygon = polygon
	return z
}

func cloneTrip(t models.Trip) models.Trip {
	t.ZoneID = cloneID(t.ZoneID)
	t.DriverID = cloneID(t.DriverID)
	return t
}
