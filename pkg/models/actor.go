package models

// Actor is the resolved identity every core operation runs under.
// Authentication and role resolution happen upstream; both values are opaque here.
type Actor struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

// Valid returns true when both halves of the identity are present.
func (a Actor) Valid() bool {
	return a.ActorID != "" && a.RoleID != ""
}
