package session

// Role is the platform role snapshotted into tokens.
type Role = string

const (
	// RoleYouth is the default role for platform members.
	RoleYouth Role = "YOUTH"
	// RoleMentor can review and advise youth ventures.
	RoleMentor Role = "MENTOR"
	// RolePartner represents partner organizations.
	RolePartner Role = "PARTNER"
	// RoleAdmin administers the platform.
	RoleAdmin Role = "ADMIN"
)

// DefaultRole is assigned to accounts created without an explicit
// role, including first-time federated logins.
var DefaultRole = RoleYouth

// ValidRole reports whether r is one of the known platform roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleYouth, RoleMentor, RolePartner, RoleAdmin:
		return true
	default:
		return false
	}
}
