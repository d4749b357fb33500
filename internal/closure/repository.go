package closure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorum-hq/quorum/internal/shared"
)

// Store is the persistence surface the workflow depends on. The concrete
// implementation is PostgreSQL; tests supply an in-memory double.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error

	GetMeeting(ctx context.Context, id string) (Meeting, error)
	GetSeries(ctx context.Context, id string) (Series, error)
	GetOccurrence(ctx context.Context, id string) (Occurrence, error)
	GetPoint(ctx context.Context, id string) (Point, error)

	ListOpenMeetings(ctx context.Context, projectID, excludeID string) ([]Meeting, error)
	ListOpenSeries(ctx context.Context, projectID, excludeID string) ([]Series, error)
	ListStatusUpdates(ctx context.Context, pointID string) ([]StatusUpdate, error)
}

// TxStore is the mutating surface available inside one transaction. All
// point mutations of a close call and the container status flip go through
// the same TxStore so they commit or roll back together.
type TxStore interface {
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	GetSeries(ctx context.Context, id string) (Series, error)
	GetOccurrence(ctx context.Context, id string) (Occurrence, error)

	ListUnresolvedPoints(ctx context.Context, parent ParentRef) ([]Point, error)
	ReparentPoint(ctx context.Context, pointID string, parent ParentRef) error
	UpdatePointStatus(ctx context.Context, pointID string, status PointStatus) error
	AppendStatusUpdate(ctx context.Context, update StatusUpdate) error

	// SetMeetingStatus flips the container status only when the current
	// status still equals expect; zero matched rows yields
	// ErrStatusConflict. This is the serialization point for concurrent
	// closes.
	SetMeetingStatus(ctx context.Context, id string, expect, next ContainerStatus, closedAt *time.Time) error
	SetSeriesStatus(ctx context.Context, id string, expect, next ContainerStatus, closedAt *time.Time) error
	SetOccurrenceStatus(ctx context.Context, id string, expect, next OccurrenceStatus, closedAt *time.Time) error
}

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("closure: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetMeeting fetches a meeting by id.
func (r *Repository) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	return scanMeeting(r.pool.QueryRow(ctx, meetingSelect+` WHERE id = $1`, id))
}

// GetSeries fetches a series by id.
func (r *Repository) GetSeries(ctx context.Context, id string) (Series, error) {
	return scanSeries(r.pool.QueryRow(ctx, seriesSelect+` WHERE id = $1`, id))
}

// GetOccurrence fetches an occurrence by id.
func (r *Repository) GetOccurrence(ctx context.Context, id string) (Occurrence, error) {
	return scanOccurrence(r.pool.QueryRow(ctx, occurrenceSelect+` WHERE id = $1`, id))
}

// GetPoint fetches a point by id.
func (r *Repository) GetPoint(ctx context.Context, id string) (Point, error) {
	return scanPoint(r.pool.QueryRow(ctx, pointSelect+` WHERE id = $1`, id))
}

// ListOpenMeetings returns scheduled meetings in a project, optionally
// excluding one id. Used for close-target selection.
func (r *Repository) ListOpenMeetings(ctx context.Context, projectID, excludeID string) ([]Meeting, error) {
	rows, err := r.pool.Query(ctx,
		meetingSelect+` WHERE project_id = $1 AND status = $2 AND id <> $3 ORDER BY date`,
		projectID, StatusScheduled, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var meetings []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// ListOpenSeries returns scheduled series in a project, optionally
// excluding one id.
func (r *Repository) ListOpenSeries(ctx context.Context, projectID, excludeID string) ([]Series, error) {
	rows, err := r.pool.Query(ctx,
		seriesSelect+` WHERE project_id = $1 AND status = $2 AND id <> $3 ORDER BY title`,
		projectID, StatusScheduled, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var series []Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		series = append(series, s)
	}
	return series, rows.Err()
}

// ListStatusUpdates returns the audit rows for a point, oldest first.
func (r *Repository) ListStatusUpdates(ctx context.Context, pointID string) ([]StatusUpdate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, point_id, date, status, action_on FROM status_updates WHERE point_id = $1 ORDER BY id`,
		pointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var updates []StatusUpdate
	for rows.Next() {
		var u StatusUpdate
		if err := rows.Scan(&u.ID, &u.PointID, &u.Date, &u.Status, &u.ActionOn); err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	return scanMeeting(t.tx.QueryRow(ctx, meetingSelect+` WHERE id = $1`, id))
}

func (t *txStore) GetSeries(ctx context.Context, id string) (Series, error) {
	return scanSeries(t.tx.QueryRow(ctx, seriesSelect+` WHERE id = $1`, id))
}

func (t *txStore) GetOccurrence(ctx context.Context, id string) (Occurrence, error) {
	return scanOccurrence(t.tx.QueryRow(ctx, occurrenceSelect+` WHERE id = $1`, id))
}

func (t *txStore) ListUnresolvedPoints(ctx context.Context, parent ParentRef) ([]Point, error) {
	if !parent.Valid() {
		return nil, ErrValidation
	}
	var rows pgx.Rows
	var err error
	if parent.MeetingID != "" {
		rows, err = t.tx.Query(ctx,
			pointSelect+` WHERE meeting_id = $1 AND status = ANY($2) ORDER BY id`,
			parent.MeetingID, unresolvedStatuses())
	} else {
		rows, err = t.tx.Query(ctx,
			pointSelect+` WHERE series_id = $1 AND status = ANY($2) ORDER BY id`,
			parent.SeriesID, unresolvedStatuses())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var points []Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (t *txStore) ReparentPoint(ctx context.Context, pointID string, parent ParentRef) error {
	if !parent.Valid() {
		return ErrValidation
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE points SET meeting_id = NULLIF($2, ''), series_id = NULLIF($3, ''), updated_at = NOW() WHERE id = $1`,
		pointID, parent.MeetingID, parent.SeriesID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) UpdatePointStatus(ctx context.Context, pointID string, status PointStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE points SET status = $2, updated_at = NOW() WHERE id = $1`,
		pointID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) AppendStatusUpdate(ctx context.Context, update StatusUpdate) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO status_updates (point_id, date, status, action_on) VALUES ($1, $2, $3, $4)`,
		update.PointID, update.Date, update.Status, update.ActionOn)
	return err
}

func (t *txStore) SetMeetingStatus(ctx context.Context, id string, expect, next ContainerStatus, closedAt *time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE meetings SET status = $3, closed_at = $4, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, expect, next, closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (t *txStore) SetSeriesStatus(ctx context.Context, id string, expect, next ContainerStatus, closedAt *time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE meeting_series SET status = $3, closed_at = $4, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, expect, next, closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (t *txStore) SetOccurrenceStatus(ctx context.Context, id string, expect, next OccurrenceStatus, closedAt *time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE meeting_occurrences SET status = $3, closed_at = $4 WHERE id = $1 AND status = $2`,
		id, expect, next, closedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

const (
	meetingSelect    = `SELECT id, project_id, title, status, date, closed_at, created_at, updated_at FROM meetings`
	seriesSelect     = `SELECT id, project_id, title, status, closed_at, created_at, updated_at FROM meeting_series`
	occurrenceSelect = `SELECT id, series_id, title, scheduled_for, status, closed_at FROM meeting_occurrences`
	pointSelect      = `SELECT id, meeting_id, series_id, title, status, assigned_to, due_date, created_at, updated_at FROM points`
)

func unresolvedStatuses() []string {
	return []string{string(PointNew), string(PointOpen), string(PointOngoing)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (Meeting, error) {
	var m Meeting
	err := row.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Status, &m.Date, &m.ClosedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Meeting{}, ErrNotFound
		}
		return Meeting{}, err
	}
	return m, nil
}

func scanSeries(row rowScanner) (Series, error) {
	var s Series
	err := row.Scan(&s.ID, &s.ProjectID, &s.Title, &s.Status, &s.ClosedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Series{}, ErrNotFound
		}
		return Series{}, err
	}
	return s, nil
}

func scanOccurrence(row rowScanner) (Occurrence, error) {
	var o Occurrence
	err := row.Scan(&o.ID, &o.SeriesID, &o.Title, &o.ScheduledFor, &o.Status, &o.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Occurrence{}, ErrNotFound
		}
		return Occurrence{}, err
	}
	return o, nil
}

func scanPoint(row rowScanner) (Point, error) {
	var p Point
	var meetingID, seriesID, assignedTo *string
	err := row.Scan(&p.ID, &meetingID, &seriesID, &p.Title, &p.Status, &assignedTo, &p.DueDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Point{}, ErrNotFound
		}
		return Point{}, err
	}
	if meetingID != nil {
		p.Parent.MeetingID = *meetingID
	}
	if seriesID != nil {
		p.Parent.SeriesID = *seriesID
	}
	if assignedTo != nil {
		p.AssignedTo = shared.AssignmentRef(*assignedTo)
	}
	return p, nil
}
