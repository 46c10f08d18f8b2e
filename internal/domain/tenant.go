package domain

import "time"

// Tenant is the administrative isolation boundary: the owner of queues and
// configuration. CRUD for tenants is an external collaborator (spec §1);
// this type is the shape the core reads and emits events about.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	APIKeyHash string   `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
