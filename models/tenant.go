package models

import "time"

// Tenant is the isolation boundary. Every driver, zone and trip belongs to
// exactly one tenant; nothing crosses it.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
