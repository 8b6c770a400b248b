package domain

// Permission is the capability set granted by a team role.
type Permission struct {
	CanCreateTeam    bool `json:"canCreateTeam"`
	CanDeleteTeam    bool `json:"canDeleteTeam"`
	CanEditTeam      bool `json:"canEditTeam"`
	CanInviteMembers bool `json:"canInviteMembers"`
	CanRemoveMembers bool `json:"canRemoveMembers"`
	CanChangeRoles   bool `json:"canChangeRoles"`
	CanCreateBoard   bool `json:"canCreateBoard"`
	CanDeleteBoard   bool `json:"canDeleteBoard"`
	CanEditBoard     bool `json:"canEditBoard"`
	CanCreateTask    bool `json:"canCreateTask"`
	CanEditTask      bool `json:"canEditTask"`
	CanDeleteTask    bool `json:"canDeleteTask"`
	CanAssignTask    bool `json:"canAssignTask"`
	CanManageColumns bool `json:"canManageColumns"`
}

// PermissionsFor maps a role to its capability set. It is total: any role
// outside {admin, member} resolves to the least-privilege member set.
func PermissionsFor(role Role) Permission {
	base := Permission{
		CanCreateTeam: true,
		CanCreateTask: true,
		CanEditTask:   true,
		CanAssignTask: true,
	}
	if role != RoleAdmin {
		return base
	}
	base.CanDeleteTeam = true
	base.CanEditTeam = true
	base.CanInviteMembers = true
	base.CanRemoveMembers = true
	base.CanChangeRoles = true
	base.CanCreateBoard = true
	base.CanDeleteBoard = true
	base.CanEditBoard = true
	base.CanDeleteTask = true
	base.CanManageColumns = true
	return base
}
