package entitlement

import "time"

// Entitlement is a user's access snapshot for estimate generation.
type Entitlement struct {
	UserID    string    `json:"userId"`
	Entitled  bool      `json:"entitled"`
	Plan      string    `json:"plan,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
