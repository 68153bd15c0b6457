package models

import "time"

type Driver struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Online   bool   `json:"online"`
	Approved bool   `json:"approved"`
	// Active is the soft-deactivate flag; deactivated drivers stay on record
	// for historical trips but never match.
	Active bool `json:"active"`
	// Coordinate is nil until the driver's client reports a position.
	Coordinate *Coordinate `json:"coordinate,omitempty"`
	Geohash    string      `json:"geohash,omitempty"`
	// ZoneID is derived from Coordinate on every location update.
	ZoneID    *int64    `json:"zone_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dispatchable reports whether the driver can ever be matched, ignoring busy
// state and zone placement (those are checked at filter time).
func (d *Driver) Dispatchable() bool {
	return d.Online && d.Approved && d.Active && d.Coordinate != nil
}
