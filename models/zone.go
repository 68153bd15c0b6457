package models

import "time"

// Zone is a named polygon owned by one tenant. Zones are referenced, never
// owned, by drivers and trips. Overlap is allowed; containment resolution is
// deterministic by (created_at, id) ascending.
type Zone struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	// Polygon is the ordered vertex ring. It should be simple
	// (non-self-intersecting); the ring is closed implicitly.
	Polygon   []Coordinate `json:"polygon"`
	CreatedAt time.Time    `json:"created_at"`
}
