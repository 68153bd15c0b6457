package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()

	// Tenant endpoints
	router.HandleFunc("/tenants", s.CreateTenant).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}", s.GetTenant).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/drivers/nearby", s.NearbyDrivers).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/zones/reload", s.ReloadZones).Methods("POST")

	// Driver endpoints
	router.HandleFunc("/drivers", s.CreateDriver).Methods("POST")
	router.HandleFunc("/drivers/{driver_id}", s.GetDriver).Methods("GET")
	router.HandleFunc("/drivers/{driver_id}/status", s.UpdateDriverStatus).Methods("PUT")
	router.HandleFunc("/drivers/{driver_id}/location", s.UpdateDriverLocation).Methods("PUT")

	// Trip endpoints
	router.HandleFunc("/trips", s.CreateTrip).Methods("POST")
	router.HandleFunc("/trips/{trip_id}", s.GetTrip).Methods("GET")
	router.HandleFunc("/trips/{trip_id}/dispatch", s.DispatchTrip).Methods("POST")
	router.HandleFunc("/trips/{trip_id}/accept", s.AcceptTrip).Methods("POST")
	router.HandleFunc("/trips/{trip_id}/decline", s.DeclineTrip).Methods("POST")
	router.HandleFunc("/trips/{trip_id}/complete", s.CompleteTrip).Methods("POST")
	router.HandleFunc("/trips/{trip_id}/status", s.AdvanceTrip).Methods("PUT")

	// Zone endpoints
	router.HandleFunc("/zones", s.CreateZone).Methods("POST")
	router.HandleFunc("/zones/{zone_id}", s.DeleteZone).Methods("DELETE")

	// Inbound webhook
	router.HandleFunc("/webhooks/trips", s.TripWebhook).Methods("POST")

	// Add CORS support
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	return cors(router)
}
