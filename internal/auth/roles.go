package auth

// Role identifies one of the three actor tiers. There is no hierarchy between
// them: every operation declares the exact set of roles it accepts, and root
// does not implicitly satisfy an admin check.
type Role string

const (
	RoleRoot  Role = "root"
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleRoot, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// In reports exact membership of r in the allowed set.
func (r Role) In(allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

// Actor is a verified request identity. TenantID is empty for root actors.
type Actor struct {
	ID       string
	Role     Role
	TenantID string
}
