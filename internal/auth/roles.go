package auth

// Role represents a platform role for role-based access control
type Role string

const (
	// RoleAdmin has full access, including endpoint configuration and usage reports
	RoleAdmin Role = "admin"

	// RoleInstructor can read usage of chats in their classes
	RoleInstructor Role = "instructor"

	// RoleUser can list models and use the proxy
	RoleUser Role = "user"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleInstructor, RoleUser:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role has permission for a required role.
// Admin has all permissions, instructor includes user permissions.
func (r Role) HasPermission(required Role) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleInstructor:
		return required == RoleInstructor || required == RoleUser
	default:
		return r == required
	}
}
