package shared

import "strings"

// AssignmentRef identifies who or what a point is assigned to. Tagged forms
// are "user:<id>", "attendee:<id>" and "company:<name>"; anything else is a
// legacy free-text name or email imported from older data.
type AssignmentRef string

const (
	userRefPrefix     = "user:"
	attendeeRefPrefix = "attendee:"
	companyRefPrefix  = "company:"
)

// UserAssignment builds a user-tagged reference.
func UserAssignment(userID string) AssignmentRef {
	return AssignmentRef(userRefPrefix + userID)
}

// AttendeeAssignment builds an attendee-tagged reference.
func AttendeeAssignment(attendeeID string) AssignmentRef {
	return AssignmentRef(attendeeRefPrefix + attendeeID)
}

// CompanyAssignment builds a company-tagged reference.
func CompanyAssignment(name string) AssignmentRef {
	return AssignmentRef(companyRefPrefix + name)
}

// UserID returns the user id and true when the reference is exactly the
// "user:<id>" form.
func (r AssignmentRef) UserID() (string, bool) {
	raw := string(r)
	if !strings.HasPrefix(raw, userRefPrefix) {
		return "", false
	}
	id := raw[len(userRefPrefix):]
	if id == "" {
		return "", false
	}
	return id, true
}

// IsLegacy reports whether the reference carries no recognised tag.
func (r AssignmentRef) IsLegacy() bool {
	raw := string(r)
	return raw != "" &&
		!strings.HasPrefix(raw, userRefPrefix) &&
		!strings.HasPrefix(raw, attendeeRefPrefix) &&
		!strings.HasPrefix(raw, companyRefPrefix)
}

// ContainsEmail reports whether the reference contains the given email as a
// substring. This is the documented fallback for legacy free-text
// assignments; it is deliberately loose and must not be extended to tagged
// forms.
func (r AssignmentRef) ContainsEmail(email string) bool {
	if email == "" {
		return false
	}
	return strings.Contains(string(r), email)
}
