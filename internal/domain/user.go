package domain

import "time"

// Role determines which operations a user may perform.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleClient   Role = "client"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleClient:
		return true
	}
	return false
}

// Staff reports whether r acts on behalf of the support desk.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleOperator
}

// User is an account able to authenticate against the service.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}
