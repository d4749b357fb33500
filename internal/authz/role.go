package authz

// Role is a global role held by a user. The set is closed: unknown strings
// are rejected at the boundary by ParseRole.
type Role string

const (
	// RoleAdmin is the universal override: it satisfies every permission
	// and project-access check unconditionally.
	RoleAdmin Role = "admin"
	// RoleManager runs projects end to end.
	RoleManager Role = "manager"
	// RoleCoordinator prepares and follows up meetings.
	RoleCoordinator Role = "coordinator"
	// RoleMember may only edit work assigned to them.
	RoleMember Role = "member"
	// RoleExternal is an outside participant who may only edit work
	// assigned to them.
	RoleExternal Role = "external"
	// RoleCompanyViewer sees everything scoped to their company.
	RoleCompanyViewer Role = "company_viewer"
	// RoleReadOnly has no write capabilities at all.
	RoleReadOnly Role = "readonly"
)

// AllRoles lists every global role in a stable order.
func AllRoles() []Role {
	return []Role{
		RoleAdmin,
		RoleManager,
		RoleCoordinator,
		RoleMember,
		RoleExternal,
		RoleCompanyViewer,
		RoleReadOnly,
	}
}

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, bool) {
	for _, r := range AllRoles() {
		if string(r) == raw {
			return r, true
		}
	}
	return "", false
}

// ProjectRole is a role meaningful only inside one project. A user may hold
// a different ProjectRole per project, or none.
type ProjectRole string

const (
	ProjectRoleLeader      ProjectRole = "leader"
	ProjectRoleCoordinator ProjectRole = "coordinator"
	ProjectRoleDesignLead  ProjectRole = "design_lead"
	ProjectRoleTeamMember  ProjectRole = "team_member"
	ProjectRoleConsultant  ProjectRole = "consultant"
	ProjectRoleViewer      ProjectRole = "viewer"
)

// AllProjectRoles lists every project-scoped role in a stable order.
func AllProjectRoles() []ProjectRole {
	return []ProjectRole{
		ProjectRoleLeader,
		ProjectRoleCoordinator,
		ProjectRoleDesignLead,
		ProjectRoleTeamMember,
		ProjectRoleConsultant,
		ProjectRoleViewer,
	}
}

// ParseProjectRole validates a raw project role string.
func ParseProjectRole(raw string) (ProjectRole, bool) {
	for _, r := range AllProjectRoles() {
		if string(r) == raw {
			return r, true
		}
	}
	return "", false
}
