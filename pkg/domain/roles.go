package domain

// Staff roles. Both may work declarations; only admins manage the platform.
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// ValidRole reports whether role is a known staff role.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleAgent
}
