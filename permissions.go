package authclient

// Permissions are capability flags derived from the active role. They hold
// no state and must be recomputed whenever the role changes.
type Permissions struct {
	Role                   Role `json:"role"`
	IsElevatedOperator     bool `json:"is_elevated_operator"`
	IsSuperAdmin           bool `json:"is_super_admin"`
	IsManager              bool `json:"is_manager"`
	IsLeader               bool `json:"is_leader"`
	CanSelectChurch        bool `json:"can_select_church"`
	CanManageChurches      bool `json:"can_manage_churches"`
	CanManageNetworks      bool `json:"can_manage_networks"`
	CanManageServices      bool `json:"can_manage_services"`
	CanModerateTestimonies bool `json:"can_moderate_testimonies"`
	CanSendMessages        bool `json:"can_send_messages"`
	CanViewStatistics      bool `json:"can_view_statistics"`
}

// Capability names accepted by Permissions.Allows and Can.
const (
	CapabilityElevatedOperator    = "elevated_operator"
	CapabilitySuperAdmin          = "super_admin"
	CapabilityManager             = "manager"
	CapabilityLeader              = "leader"
	CapabilitySelectChurch        = "select_church"
	CapabilityManageChurches      = "manage_churches"
	CapabilityManageNetworks      = "manage_networks"
	CapabilityManageServices      = "manage_services"
	CapabilityModerateTestimonies = "moderate_testimonies"
	CapabilitySendMessages        = "send_messages"
	CapabilityViewStatistics      = "view_statistics"
)

// ProjectPermissions is a pure function of role.
func ProjectPermissions(role Role) Permissions {
	role = NormalizeRole(string(role))
	return Permissions{
		Role:                   role,
		IsElevatedOperator:     role.IsAtLeast(RoleAdmin),
		IsSuperAdmin:           role == RoleSuperAdmin,
		IsManager:              role.IsAtLeast(RoleManager),
		IsLeader:               role.IsAtLeast(RoleLeader),
		CanSelectChurch:        role.IsAtLeast(RoleManager),
		CanManageChurches:      role == RoleSuperAdmin,
		CanManageNetworks:      role.IsAtLeast(RoleManager),
		CanManageServices:      role.IsAtLeast(RoleLeader),
		CanModerateTestimonies: role.IsAtLeast(RoleManager),
		CanSendMessages:        role.IsAtLeast(RoleLeader),
		CanViewStatistics:      role.IsAtLeast(RoleLeader),
	}
}

// PermissionsFor projects the active role of u.
func PermissionsFor(u *User) Permissions {
	return ProjectPermissions(ActiveRole(u))
}

// Flags returns the capabilities keyed by name.
func (p Permissions) Flags() map[string]bool {
	return map[string]bool{
		CapabilityElevatedOperator:    p.IsElevatedOperator,
		CapabilitySuperAdmin:          p.IsSuperAdmin,
		CapabilityManager:             p.IsManager,
		CapabilityLeader:              p.IsLeader,
		CapabilitySelectChurch:        p.CanSelectChurch,
		CapabilityManageChurches:      p.CanManageChurches,
		CapabilityManageNetworks:      p.CanManageNetworks,
		CapabilityManageServices:      p.CanManageServices,
		CapabilityModerateTestimonies: p.CanModerateTestimonies,
		CapabilitySendMessages:        p.CanSendMessages,
		CapabilityViewStatistics:      p.CanViewStatistics,
	}
}

// Allows checks a capability by name, unknown names are denied.
func (p Permissions) Allows(capability string) bool {
	return p.Flags()[capability]
}
