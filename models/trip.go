package models

import "time"

// Trip statuses. A pending trip with a non-nil DriverID is "pending-assigned":
// the driver has been bound but has not confirmed yet.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

type Trip struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	Pickup      Coordinate `json:"pickup"`
	Destination Coordinate `json:"destination"`
	ZoneID      *int64     `json:"zone_id,omitempty"`
	Status      string     `json:"status"`
	DriverID    *int64     `json:"driver_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Assigned reports whether a driver is currently bound to the trip.
func (t *Trip) Assigned() bool {
	return t.DriverID != nil
}

// AssignedTo reports whether driverID is the currently bound driver.
func (t *Trip) AssignedTo(driverID int64) bool {
	return t.DriverID != nil && *t.DriverID == driverID
}

// transitions is the single source of truth for legal status moves. Decline
// is modelled separately: it unwinds an assigned trip back to unassigned
// pending rather than advancing the status.
var transitions = map[string][]string{
	StatusPending:   {StatusActive},
	StatusActive:    {StatusCompleted},
	StatusCompleted: {},
}

// CanTransition reports whether from -> to is a legal forward move. No
// transition may skip a state; completed is terminal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known trip status.
func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}
