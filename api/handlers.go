package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"fleet-dispatch/cache"
	"fleet-dispatch/dispatch"
	"fleet-dispatch/geo"
	"fleet-dispatch/models"
	"fleet-dispatch/store"
)

// Server holds the HTTP boundary's collaborators.
type Server struct {
	engine    *dispatch.Engine
	tenants   store.TenantStore
	drivers   store.DriverStore
	zones     store.ZoneStore
	trips     store.TripStore
	geofence  *geo.Index
	positions *cache.Positions // nil when Redis is not configured
	precision uint
}

func NewServer(
	engine *dispatch.Engine,
	tenants store.TenantStore,
	drivers store.DriverStore,
	zones store.ZoneStore,
	trips store.TripStore,
	geofence *geo.Index,
	positions *cache.Positions,
	precision uint,
) *Server {
	return &Server{
		engine:    engine,
		tenants:   tenants,
		drivers:   drivers,
		zones:     zones,
		trips:     trips,
		geofence:  geofence,
		positions: positions,
		precision: precision,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the dispatch taxonomy onto HTTP. NO_CANDIDATES is handled
// by the dispatch handler itself; it never reaches here as an error status.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "INVALID_INPUT", "message": err.Error()})
	case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND", "message": err.Error()})
	case errors.Is(err, dispatch.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "FORBIDDEN", "message": err.Error()})
	case errors.Is(err, dispatch.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "CONFLICT", "message": err.Error()})
	default:
		log.Printf("api: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "INTERNAL"})
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", dispatch.ErrInvalidInput, name)
	}
	return id, nil
}

// CreateTenant handles registering a new tenant.
func (s *Server) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, fmt.Errorf("%w: tenant name is required", dispatch.ErrInvalidInput))
		return
	}
	tenant := &models.Tenant{Name: req.Name}
	if err := s.tenants.CreateTenant(r.Context(), tenant); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

func (s *Server) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenant_id")
	if err != nil {
		writeError(w, err)
		return
	}
	tenant, err := s.tenants.GetTenant(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

// CreateDriver handles driver onboarding. Drivers start offline; position
// arrives later through the location endpoint.
func (s *Server) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID int64  `json:"tenant_id"`
		Name     string `json:"name"`
		Approved bool   `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, fmt.Errorf("%w: driver name is required", dispatch.ErrInvalidInput))
		return
	}
	if _, err := s.tenants.GetTenant(r.Context(), req.TenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, fmt.Errorf("%w: unknown tenant %d", dispatch.ErrInvalidInput, req.TenantID))
			return
		}
		writeError(w, err)
		return
	}

	driver := &models.Driver{
		TenantID: req.TenantID,
		Name:     req.Name,
		Approved: req.Approved,
		Active:   true,
	}
	if err := s.drivers.CreateDriver(r.Context(), driver); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, driver)
}

func (s *Server) GetDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "driver_id")
	if err != nil {
		writeError(w, err)
		return
	}
	driver, err := s.drivers.GetDriver(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, driver)
}

// UpdateDriverLocation is the high-frequency write path from driver clients.
// It persists the position, re-derives geohash and zone, and refreshes the
// live Redis index.
func (s *Server) UpdateDriverLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "driver_id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(w, fmt.Errorf("%w: lat and lng are required", dispatch.ErrInvalidInput))
		return
	}

	driver, err := s.drivers.GetDriver(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	coord := models.Coordinate{Lat: *req.Lat, Lng: *req.Lng}
	hash := geo.EncodePosition(coord, s.precision)
	zoneID, err := s.geofence.ZoneFor(r.Context(), driver.TenantID, coord)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.drivers.UpdateLocation(r.Context(), id, coord, hash, zoneID); err != nil {
		writeError(w, err)
		return
	}
	if s.positions != nil {
		if err := s.positions.Update(r.Context(), driver.TenantID, id, driver.Geohash, hash, coord); err != nil {
			// Live index refresh is best-effort; the store has the truth.
			log.Printf("api: live position update for driver %d: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Driver location updated"})
}

// UpdateDriverStatus flips the online flag and, optionally, the
// soft-deactivate flag.
func (s *Server) UpdateDriverStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "driver_id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Online *bool `json:"online"`
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Online == nil && req.Active == nil) {
		writeError(w, fmt.Errorf("%w: online or active is required", dispatch.ErrInvalidInput))
		return
	}

	driver, err := s.drivers.GetDriver(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Online != nil {
		if err := s.drivers.SetOnline(r.Context(), id, *req.Online); err != nil {
			writeError(w, err)
			return
		}
		if s.positions != nil && !*req.Online {
			if err := s.positions.Remove(r.Context(), driver.TenantID, id, driver.Geohash); err != nil {
				log.Printf("api: live position removal for driver %d: %v", id, err)
			}
		}
	}
	if req.Active != nil {
		if err := s.drivers.SetActive(r.Context(), id, *req.Active); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Driver status updated"})
}

// NearbyDrivers lists drivers around a point using the geohash buckets. An
// operator surface; dispatch does not use it.
func (s *Server) NearbyDrivers(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathID(r, "tenant_id")
	if err != nil {
		writeError(w, err)
		return
	}
	if s.positions == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"drivers": []models.Driver{}})
		return
	}
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		writeError(w, fmt.Errorf("%w: lat and lng query params are required", dispatch.ErrInvalidInput))
		return
	}

	ids, err := s.positions.Nearby(r.Context(), tenantID, models.Coordinate{Lat: lat, Lng: lng})
	if err != nil {
		writeError(w, err)
		return
	}
	drivers := make([]models.Driver, 0, len(ids))
	for _, id := range ids {
		d, err := s.drivers.GetDriver(r.Context(), id)
		if err != nil {
			continue
		}
		if d.TenantID == tenantID && d.Online {
			drivers = append(drivers, *d)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"drivers": drivers})
}

// CreateTrip validates and stores a pending trip. Pickup is mandatory.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID    int64              `json:"tenant_id"`
		Pickup      *models.Coordinate `json:"pickup"`
		Destination *models.Coordinate `json:"destination"`
		ZoneID      *int64             `json:"zone_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed body", dispatch.ErrInvalidInput))
		return
	}
	trip, err := s.engine.CreateTrip(r.Context(), dispatch.TripRequest{
		TenantID:    req.TenantID,
		Pickup:      req.Pickup,
		Destination: req.Destination,
		ZoneID:      req.ZoneID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "trip_id")
	if err != nil {
		writeError(w, err)
		return
	}
	trip, err := s.trips.GetTrip(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// DispatchTrip runs the matching pipeline once. "No drivers available" and
// "already resolved" are normal outcomes, reported with 200.
func (s *Server) DispatchTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "trip_id")
	if err != nil {
		writeError(w, err)
		return
	}
	assignment, err := s.engine.Dispatch(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"outcome":    "assigned",
			"trip_id":    assignment.TripID,
			"driver_id":  assignment.DriverID,
			"distance_m": assignment.DistanceM,
		})
	case errors.Is(err, dispatch.ErrNoCandidates):
		writeJSON(w, http.StatusOK, map[string]string{"outcome": "no_candidates"})
	case errors.Is(err, dispatch.ErrConflict):
		writeJSON(w, http.StatusOK, map[string]string{"outcome": "already_resolved"})
	default:
		writeError(w, err)
	}
}

type driverAction struct {
	DriverID int64 `json:"driver_id"`
}

func (s *Server) decodeDriverAction(w http.ResponseWriter, r *http.Request) (tripID, driverID int64, ok bool) {
	tripID, err := pathID(r, "trip_id")
	if err != nil {
		writeError(w, err)
		return 0, 0, false
	}
	var req driverAction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID <= 0 {
		writeError(w, fmt.Errorf("%w: driver_id is required", dispatch.ErrInvalidInput))
		return 0, 0, false
	}
	return tripID, req.DriverID, true
}

func (s *Server) AcceptTrip(w http.ResponseWriter, r *http.Request) {
	tripID, driverID, ok := s.decodeDriverAction(w, r)
	if !ok {
		return
	}
	if err := s.engine.Accept(r.Context(), tripID, driverID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Trip accepted"})
}

func (s *Server) DeclineTrip(w http.ResponseWriter, r *http.Request) {
	tripID, driverID, ok := s.decodeDriverAction(w, r)
	if !ok {
		return
	}
	if err := s.engine.Decline(r.Context(), tripID, driverID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Trip declined"})
}

func (s *Server) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	tripID, driverID, ok := s.decodeDriverAction(w, r)
	if !ok {
		return
	}
	if err := s.engine.Complete(r.Context(), tripID, driverID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Trip completed"})
}

// AdvanceTrip moves a trip to an explicit target status on behalf of the
// assigned driver.
func (s *Server) AdvanceTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathID(r, "trip_id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		DriverID int64  `json:"driver_id"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID <= 0 || req.Status == "" {
		writeError(w, fmt.Errorf("%w: driver_id and status are required", dispatch.ErrInvalidInput))
		return
	}
	if err := s.engine.Advance(r.Context(), tripID, req.DriverID, req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Trip status updated"})
}

// CreateZone stores a zone polygon and invalidates the tenant's geofence
// cache so the next dispatch observes it.
func (s *Server) CreateZone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID int64               `json:"tenant_id"`
		Name     string              `json:"name"`
		Color    string              `json:"color"`
		Polygon  []models.Coordinate `json:"polygon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, fmt.Errorf("%w: zone name is required", dispatch.ErrInvalidInput))
		return
	}
	if len(req.Polygon) < 3 {
		writeError(w, fmt.Errorf("%w: polygon needs at least 3 vertices", dispatch.ErrInvalidInput))
		return
	}
	if _, err := s.tenants.GetTenant(r.Context(), req.TenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, fmt.Errorf("%w: unknown tenant %d", dispatch.ErrInvalidInput, req.TenantID))
			return
		}
		writeError(w, err)
		return
	}

	zone := &models.Zone{
		TenantID: req.TenantID,
		Name:     req.Name,
		Color:    req.Color,
		Polygon:  req.Polygon,
	}
	if err := s.zones.CreateZone(r.Context(), zone); err != nil {
		writeError(w, err)
		return
	}
	s.geofence.Invalidate(req.TenantID)
	writeJSON(w, http.StatusCreated, zone)
}

func (s *Server) DeleteZone(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "zone_id")
	if err != nil {
		writeError(w, err)
		return
	}
	zone, err := s.zones.GetZone(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.zones.DeleteZone(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.geofence.Invalidate(zone.TenantID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Zone deleted"})
}

// ReloadZones drops the tenant's cached geofence. Admin tooling calls this
// after editing polygons out of band.
func (s *Server) ReloadZones(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathID(r, "tenant_id")
	if err != nil {
		writeError(w, err)
		return
	}
	s.geofence.Invalidate(tenantID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Zones reloaded"})
}
