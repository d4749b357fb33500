package authz

// Action is an atomic capability token. Actions are never composite; each
// route or command checks exactly the actions it needs.
type Action string

const (
	ActionMeetingCreate Action = "meeting.create"
	ActionMeetingEdit   Action = "meeting.edit"
	ActionMeetingClose  Action = "meeting.close"

	ActionSeriesCreate Action = "series.create"
	ActionSeriesEdit   Action = "series.edit"
	ActionSeriesClose  Action = "series.close"

	ActionPointCreate  Action = "point.create"
	ActionPointEditAny Action = "point.edit.any"
	ActionPointEditOwn Action = "point.edit.own"
	ActionPointAssign  Action = "point.assign"

	ActionAttachmentUpload Action = "attachment.upload"

	ActionProjectCreate Action = "project.create"
	ActionProjectEdit   Action = "project.edit"

	ActionUserManage Action = "user.manage"
	ActionPolicyEdit Action = "policy.edit"
	ActionPolicyView Action = "policy.view"
)

// ActionInfo carries the human label and category grouping used when
// rendering an admin matrix. Static data, consistent with PolicyDefaults.
type ActionInfo struct {
	Action   Action `json:"action"`
	Label    string `json:"label"`
	Category string `json:"category"`
}

// Catalog categories.
const (
	CategoryMeetings       = "Meetings"
	CategoryPoints         = "Action Items"
	CategoryProjects       = "Projects"
	CategoryAdministration = "Administration"
)

var actionCatalog = []ActionInfo{
	{ActionMeetingCreate, "Create meetings", CategoryMeetings},
	{ActionMeetingEdit, "Edit meetings", CategoryMeetings},
	{ActionMeetingClose, "Close and reopen meetings", CategoryMeetings},
	{ActionSeriesCreate, "Create meeting series", CategoryMeetings},
	{ActionSeriesEdit, "Edit meeting series", CategoryMeetings},
	{ActionSeriesClose, "Close and reopen meeting series", CategoryMeetings},
	{ActionPointCreate, "Create points", CategoryPoints},
	{ActionPointEditAny, "Edit any point", CategoryPoints},
	{ActionPointEditOwn, "Edit only assigned points", CategoryPoints},
	{ActionPointAssign, "Assign points", CategoryPoints},
	{ActionAttachmentUpload, "Upload attachments", CategoryPoints},
	{ActionProjectCreate, "Create projects", CategoryProjects},
	{ActionProjectEdit, "Edit projects", CategoryProjects},
	{ActionUserManage, "Manage users", CategoryAdministration},
	{ActionPolicyEdit, "Edit the permission matrix", CategoryAdministration},
	{ActionPolicyView, "View the permission matrix", CategoryAdministration},
}

// AllActions lists every action in catalog order.
func AllActions() []Action {
	actions := make([]Action, 0, len(actionCatalog))
	for _, info := range actionCatalog {
		actions = append(actions, info.Action)
	}
	return actions
}

// ActionCatalog returns the full action list with labels and categories.
func ActionCatalog() []ActionInfo {
	out := make([]ActionInfo, len(actionCatalog))
	copy(out, actionCatalog)
	return out
}

// ParseAction validates a raw action string.
func ParseAction(raw string) (Action, bool) {
	for _, info := range actionCatalog {
		if string(info.Action) == raw {
			return info.Action, true
		}
	}
	return "", false
}
