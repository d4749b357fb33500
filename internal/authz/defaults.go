package authz

// PolicyDefaults returns the hard-coded baseline matrix: for each action the
// roles allowed out of the box. Overrides adjust this at runtime; the
// baseline itself only changes with a deploy. Every known action has an
// entry here, even when the allowed set is empty, so that a missing entry
// in the effective matrix always signals a table bug.
func PolicyDefaults() map[Action][]Role {
	return map[Action][]Role{
		ActionMeetingCreate: {RoleManager, RoleCoordinator},
		ActionMeetingEdit:   {RoleManager, RoleCoordinator},
		ActionMeetingClose:  {RoleManager, RoleCoordinator},

		ActionSeriesCreate: {RoleManager},
		ActionSeriesEdit:   {RoleManager, RoleCoordinator},
		ActionSeriesClose:  {RoleManager},

		ActionPointCreate:  {RoleManager, RoleCoordinator},
		ActionPointEditAny: {RoleManager, RoleCoordinator},
		ActionPointEditOwn: {RoleMember, RoleExternal},
		ActionPointAssign:  {RoleManager, RoleCoordinator},

		ActionAttachmentUpload: {RoleManager, RoleCoordinator, RoleMember},

		ActionProjectCreate: {RoleManager},
		ActionProjectEdit:   {RoleManager},

		ActionUserManage: {},
		ActionPolicyEdit: {},
		ActionPolicyView: {RoleManager},
	}
}

// projectGrantTable maps each project-scoped role to the actions it confers
// within that project. Fixed data, independent of the override matrix.
var projectGrantTable = map[ProjectRole][]Action{
	ProjectRoleLeader: {
		ActionMeetingCreate, ActionMeetingEdit, ActionMeetingClose,
		ActionSeriesCreate, ActionSeriesEdit, ActionSeriesClose,
		ActionPointCreate, ActionPointEditAny, ActionPointAssign,
		ActionAttachmentUpload, ActionProjectEdit,
	},
	ProjectRoleCoordinator: {
		ActionMeetingCreate, ActionMeetingEdit, ActionMeetingClose,
		ActionPointCreate, ActionPointEditAny, ActionPointAssign,
		ActionAttachmentUpload,
	},
	ProjectRoleDesignLead: {
		ActionPointCreate, ActionPointEditAny, ActionPointAssign,
		ActionAttachmentUpload,
	},
	ProjectRoleTeamMember: {
		ActionPointEditOwn, ActionAttachmentUpload,
	},
	ProjectRoleConsultant: {
		ActionPointEditOwn,
	},
	ProjectRoleViewer: {},
}

// ProjectGrants returns the actions a project role confers.
func ProjectGrants(role ProjectRole) []Action {
	grants := projectGrantTable[role]
	out := make([]Action, len(grants))
	copy(out, grants)
	return out
}

func projectRoleGrantsAction(role ProjectRole, action Action) bool {
	for _, a := range projectGrantTable[role] {
		if a == action {
			return true
		}
	}
	return false
}
