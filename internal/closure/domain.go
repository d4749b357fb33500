package closure

import (
	"errors"
	"time"

	"github.com/quorum-hq/quorum/internal/shared"
)

// ContainerStatus enumerates meeting and series lifecycle states.
type ContainerStatus string

const (
	StatusScheduled ContainerStatus = "scheduled"
	StatusClosed    ContainerStatus = "closed"
)

// OccurrenceStatus enumerates occurrence lifecycle states. Occurrences
// never hold points, so their close is a pure status flip.
type OccurrenceStatus string

const (
	OccurrenceScheduled OccurrenceStatus = "scheduled"
	OccurrenceCompleted OccurrenceStatus = "completed"
	OccurrenceCancelled OccurrenceStatus = "cancelled"
)

// PointStatus enumerates action item states.
type PointStatus string

const (
	PointNew       PointStatus = "new"
	PointOpen      PointStatus = "open"
	PointOngoing   PointStatus = "ongoing"
	PointClosed    PointStatus = "closed"
	PointPostponed PointStatus = "postponed"
)

// CloseMode selects how still-open points are disposed of when their
// container closes.
type CloseMode string

const (
	// ModeMove re-parents unresolved points to another container.
	ModeMove CloseMode = "move"
	// ModeClose force-closes unresolved points in place.
	ModeClose CloseMode = "close"
)

// SystemActor attributes workflow-generated status updates.
const SystemActor = "system"

// Meeting is a single scheduled meeting within a project.
type Meeting struct {
	ID        string
	ProjectID string
	Title     string
	Status    ContainerStatus
	Date      time.Time
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Series is a recurring meeting template within a project.
type Series struct {
	ID        string
	ProjectID string
	Title     string
	Status    ContainerStatus
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Occurrence is one scheduled instance of a series.
type Occurrence struct {
	ID           string
	SeriesID     string
	Title        string
	ScheduledFor time.Time
	Status       OccurrenceStatus
	ClosedAt     *time.Time
}

// ParentRef names the single container owning a point: exactly one of
// MeetingID or SeriesID is set.
type ParentRef struct {
	MeetingID string
	SeriesID  string
}

// Valid reports whether exactly one parent field is set.
func (p ParentRef) Valid() bool {
	return (p.MeetingID == "") != (p.SeriesID == "")
}

// MeetingParent builds a meeting-owned parent reference.
func MeetingParent(meetingID string) ParentRef {
	return ParentRef{MeetingID: meetingID}
}

// SeriesParent builds a series-owned parent reference.
func SeriesParent(seriesID string) ParentRef {
	return ParentRef{SeriesID: seriesID}
}

// Point is an action item owned by exactly one meeting or series.
type Point struct {
	ID         string
	Parent     ParentRef
	Title      string
	Status     PointStatus
	AssignedTo shared.AssignmentRef
	DueDate    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Unresolved reports whether the point still needs disposal when its
// container closes. Postponed points are deliberately excluded.
func (p Point) Unresolved() bool {
	switch p.Status {
	case PointNew, PointOpen, PointOngoing:
		return true
	default:
		return false
	}
}

// StatusUpdate is one immutable audit row: append-only, never edited or
// deleted.
type StatusUpdate struct {
	ID       int64
	PointID  string
	Date     time.Time
	Status   string
	ActionOn string
}

// CloseInput bundles parameters for a close command.
type CloseInput struct {
	ContainerID string
	Mode        CloseMode
	Target      *ParentRef
}

// Validate checks the input shape before any state is touched.
func (in CloseInput) Validate() error {
	if in.ContainerID == "" {
		return ErrValidation
	}
	switch in.Mode {
	case ModeClose:
		return nil
	case ModeMove:
		if in.Target == nil || !in.Target.Valid() {
			return ErrValidation
		}
		return nil
	default:
		return ErrValidation
	}
}

// CloseResult summarises a completed close command.
type CloseResult struct {
	ContainerID string    `json:"container_id"`
	Mode        CloseMode `json:"mode"`
	Disposed    int       `json:"disposed"`
	ClosedAt    time.Time `json:"closed_at"`
}

// TargetKind distinguishes close-target candidates.
type TargetKind string

const (
	TargetMeeting TargetKind = "meeting"
	TargetSeries  TargetKind = "series"
)

// Target is one candidate destination for moved points.
type Target struct {
	Kind  TargetKind `json:"kind"`
	ID    string     `json:"id"`
	Title string     `json:"title"`
}

var (
	// ErrNotFound indicates the referenced container or point does not exist.
	ErrNotFound = errors.New("closure: not found")
	// ErrValidation indicates a caller error such as a move without target.
	ErrValidation = errors.New("closure: validation failed")
	// ErrAlreadyClosed is returned when a close races another close or the
	// container was closed before the call.
	ErrAlreadyClosed = errors.New("closure: container already closed")
	// ErrNotClosed is returned when reopening a container that is not closed.
	ErrNotClosed = errors.New("closure: container not closed")
	// ErrStatusConflict is the repository-level signal that a compare-and-set
	// on a container status matched zero rows.
	ErrStatusConflict = errors.New("closure: status changed concurrently")
)
