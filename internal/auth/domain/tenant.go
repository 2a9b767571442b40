package domain

import "time"

// Tenant is an organization. Every user belongs to exactly one tenant and
// every query is scoped to it.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
