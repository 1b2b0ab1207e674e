package domain

// Principal is the resolved identity behind an authenticated request.
type Principal struct {
	ActorID string
	Role    Role
	Name    string
}
