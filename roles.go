package authclient

import "strings"

// Role is a canonical role tag.
type Role string

const (
	// RoleMember is the basic member role (i.e. view)
	RoleMember Role = "MEMBER"
	// RoleLeader leads a network or a service team
	RoleLeader Role = "LEADER"
	// RoleManager manages the networks of a church
	RoleManager Role = "MANAGER"
	// RoleAdmin administers a church
	RoleAdmin Role = "ADMIN"
	// RoleSuperAdmin administers every church
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// DefaultRole is used when the user record carries no role at all.
const DefaultRole = RoleMember

var roleHierarchy = map[Role]int{
	RoleMember:     0,
	RoleLeader:     1,
	RoleManager:    2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// NormalizeRole canonicalizes a tag to the uppercase vocabulary. Tags
// outside the vocabulary are returned unchanged (trimmed) so new backend
// roles flow through.
func NormalizeRole(tag string) Role {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return ""
	}

	candidate := strings.ToUpper(trimmed)
	candidate = strings.NewReplacer("-", "_", " ", "_").Replace(candidate)
	if candidate == "SUPERADMIN" {
		candidate = string(RoleSuperAdmin)
	}

	if _, ok := roleHierarchy[Role(candidate)]; ok {
		return Role(candidate)
	}
	return Role(trimmed)
}

// ParseRole normalizes s and reports whether it is a known role.
func ParseRole(s string) (Role, bool) {
	role := NormalizeRole(s)
	return role, role.IsValid()
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// Level is the rank of the role, -1 for unknown roles.
func (r Role) Level() int {
	if level, ok := roleHierarchy[r]; ok {
		return level
	}
	return -1
}

// IsAtLeast checks if this role meets the minimum required level.
// Unknown roles never satisfy a check.
func (r Role) IsAtLeast(minRole Role) bool {
	current, min := r.Level(), minRole.Level()
	if current < 0 || min < 0 {
		return false
	}
	return current >= min
}

// Equal compares two tags after normalization.
func (r Role) Equal(other Role) bool {
	return NormalizeRole(string(r)) == NormalizeRole(string(other))
}

func (r Role) String() string {
	return string(r)
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleMember,
		RoleLeader,
		RoleManager,
		RoleAdmin,
		RoleSuperAdmin,
	}
}

// ActiveRole resolves current_role, then role, then DefaultRole.
func ActiveRole(u *User) Role {
	if u == nil {
		return DefaultRole
	}
	if role := NormalizeRole(string(u.CurrentRole)); role != "" {
		return role
	}
	if role := NormalizeRole(string(u.Role)); role != "" {
		return role
	}
	return DefaultRole
}

// AssignableRoles lists the roles the user may switch to, in server order:
// available_roles, else the roles of role_assignments, else the primary role.
func AssignableRoles(u *User) []Role {
	if u == nil {
		return []Role{DefaultRole}
	}

	var roles []Role
	if len(u.AvailableRoles) > 0 {
		roles = dedupeRoles(u.AvailableRoles)
	} else if len(u.RoleAssignments) > 0 {
		tags := make([]Role, 0, len(u.RoleAssignments))
		for _, a := range u.RoleAssignments {
			tags = append(tags, a.Role)
		}
		roles = dedupeRoles(tags)
	}

	if len(roles) == 0 {
		return []Role{ActiveRole(&User{Role: u.Role})}
	}
	return roles
}

// HasRole reports whether role is assignable to the user.
func HasRole(u *User, role Role) bool {
	target := NormalizeRole(string(role))
	for _, r := range AssignableRoles(u) {
		if r == target {
			return true
		}
	}
	return false
}

// AssignmentsFor returns the assignments granting role.
func AssignmentsFor(u *User, role Role) []RoleAssignment {
	if u == nil {
		return nil
	}
	target := NormalizeRole(string(role))
	var out []RoleAssignment
	for _, a := range u.RoleAssignments {
		if NormalizeRole(string(a.Role)) == target {
			out = append(out, a)
		}
	}
	return out
}

func dedupeRoles(in []Role) []Role {
	seen := make(map[Role]struct{}, len(in))
	out := make([]Role, 0, len(in))
	for _, r := range in {
		role := NormalizeRole(string(r))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

// NormalizeRoles canonicalizes and dedupes a list of tags.
func NormalizeRoles(in []Role) []Role {
	return dedupeRoles(in)
}
