package closure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Digest summarises a completed close for downstream consumers.
type Digest struct {
	Kind        TargetKind `json:"kind"`
	ContainerID string     `json:"container_id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Mode        CloseMode  `json:"mode"`
	Disposed    int        `json:"disposed"`
	ClosedAt    time.Time  `json:"closed_at"`
}

// Notifier receives digests after a close commits. Delivery is best
// effort; a failed notification never fails the close.
type Notifier interface {
	ClosureCompleted(ctx context.Context, digest Digest) error
}

// Service runs the closure workflow: closing or reopening a meeting,
// series, or occurrence, and deterministically disposing of every
// unresolved point the container owns.
type Service struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetMeeting returns a meeting by id.
func (s *Service) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	return s.store.GetMeeting(ctx, id)
}

// GetSeries returns a series by id.
func (s *Service) GetSeries(ctx context.Context, id string) (Series, error) {
	return s.store.GetSeries(ctx, id)
}

// GetOccurrence returns an occurrence by id.
func (s *Service) GetOccurrence(ctx context.Context, id string) (Occurrence, error) {
	return s.store.GetOccurrence(ctx, id)
}

// StatusUpdates returns the audit rows for a point, oldest first.
func (s *Service) StatusUpdates(ctx context.Context, pointID string) ([]StatusUpdate, error) {
	return s.store.ListStatusUpdates(ctx, pointID)
}

// CloseMeeting closes a meeting, disposing of its unresolved points per the
// requested mode. Every mutation happens inside one transaction: the
// container never ends up closed with points left behind by a partial
// failure, and the status flip is a compare-and-set so a concurrent close
// gets ErrAlreadyClosed instead of double-disposing.
func (s *Service) CloseMeeting(ctx context.Context, in CloseInput) (CloseResult, error) {
	if err := in.Validate(); err != nil {
		return CloseResult{}, err
	}
	var result CloseResult
	var digest Digest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		meeting, err := tx.GetMeeting(ctx, in.ContainerID)
		if err != nil {
			return err
		}
		if meeting.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		points, err := tx.ListUnresolvedPoints(ctx, MeetingParent(meeting.ID))
		if err != nil {
			return err
		}
		disposed, err := s.dispose(ctx, tx, points, in, meeting.Title, MeetingParent(meeting.ID))
		if err != nil {
			return err
		}
		closedAt := s.now()
		if err := tx.SetMeetingStatus(ctx, meeting.ID, StatusScheduled, StatusClosed, &closedAt); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return ErrAlreadyClosed
			}
			return err
		}
		result = CloseResult{ContainerID: meeting.ID, Mode: in.Mode, Disposed: disposed, ClosedAt: closedAt}
		digest = Digest{
			Kind:        TargetMeeting,
			ContainerID: meeting.ID,
			ProjectID:   meeting.ProjectID,
			Title:       meeting.Title,
			Mode:        in.Mode,
			Disposed:    disposed,
			ClosedAt:    closedAt,
		}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	s.notify(ctx, digest)
	return result, nil
}

// CloseSeries closes a recurring series the same way CloseMeeting closes a
// meeting.
func (s *Service) CloseSeries(ctx context.Context, in CloseInput) (CloseResult, error) {
	if err := in.Validate(); err != nil {
		return CloseResult{}, err
	}
	var result CloseResult
	var digest Digest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		series, err := tx.GetSeries(ctx, in.ContainerID)
		if err != nil {
			return err
		}
		if series.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		points, err := tx.ListUnresolvedPoints(ctx, SeriesParent(series.ID))
		if err != nil {
			return err
		}
		disposed, err := s.dispose(ctx, tx, points, in, series.Title, SeriesParent(series.ID))
		if err != nil {
			return err
		}
		closedAt := s.now()
		if err := tx.SetSeriesStatus(ctx, series.ID, StatusScheduled, StatusClosed, &closedAt); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return ErrAlreadyClosed
			}
			return err
		}
		result = CloseResult{ContainerID: series.ID, Mode: in.Mode, Disposed: disposed, ClosedAt: closedAt}
		digest = Digest{
			Kind:        TargetSeries,
			ContainerID: series.ID,
			ProjectID:   series.ProjectID,
			Title:       series.Title,
			Mode:        in.Mode,
			Disposed:    disposed,
			ClosedAt:    closedAt,
		}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	s.notify(ctx, digest)
	return result, nil
}

// CloseOccurrence completes a single occurrence. Occurrences never own
// points, so this is a pure status flip.
func (s *Service) CloseOccurrence(ctx context.Context, id string) (CloseResult, error) {
	if id == "" {
		return CloseResult{}, ErrValidation
	}
	var result CloseResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		occ, err := tx.GetOccurrence(ctx, id)
		if err != nil {
			return err
		}
		if occ.Status != OccurrenceScheduled {
			return ErrAlreadyClosed
		}
		closedAt := s.now()
		if err := tx.SetOccurrenceStatus(ctx, id, OccurrenceScheduled, OccurrenceCompleted, &closedAt); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return ErrAlreadyClosed
			}
			return err
		}
		result = CloseResult{ContainerID: id, Mode: ModeClose, ClosedAt: closedAt}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	return result, nil
}

// ReopenMeeting sets a closed meeting back to scheduled and clears its
// close timestamp. Point migrations and forced closures performed by the
// original close are permanent; reopen does not undo them.
func (s *Service) ReopenMeeting(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		meeting, err := tx.GetMeeting(ctx, id)
		if err != nil {
			return err
		}
		if meeting.Status != StatusClosed {
			return ErrNotClosed
		}
		if err := tx.SetMeetingStatus(ctx, id, StatusClosed, StatusScheduled, nil); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return ErrNotClosed
			}
			return err
		}
		return nil
	})
}

// ReopenSeries sets a closed series back to scheduled.
func (s *Service) ReopenSeries(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		series, err := tx.GetSeries(ctx, id)
		if err != nil {
			return err
		}
		if series.Status != StatusClosed {
			return ErrNotClosed
		}
		if err := tx.SetSeriesStatus(ctx, id, StatusClosed, StatusScheduled, nil); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return ErrNotClosed
			}
			return err
		}
		return nil
	})
}

// ReopenOccurrence sets a completed occurrence back to scheduled.
// Cancelled occurrences stay cancelled.
func (s *Service) ReopenOccurrence(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		occ, err := tx.GetOccurrence(ctx, id)
		if err != nil {
			return err
		}
		if occ.Status != OccurrenceCompleted {
			return ErrNotClosed
		}
		if err := tx.SetOccurrenceStatus(ctx, id, OccurrenceCompleted, OccurrenceScheduled, nil); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return ErrNotClosed
			}
			return err
		}
		return nil
	})
}

// ListCloseTargets returns the open meetings and series in a project that
// can receive moved points, excluding the container being closed, sorted
// by title with locale-aware, case-insensitive collation.
func (s *Service) ListCloseTargets(ctx context.Context, projectID string, exclude ParentRef) ([]Target, error) {
	if projectID == "" {
		return nil, ErrValidation
	}
	meetings, err := s.store.ListOpenMeetings(ctx, projectID, exclude.MeetingID)
	if err != nil {
		return nil, err
	}
	series, err := s.store.ListOpenSeries(ctx, projectID, exclude.SeriesID)
	if err != nil {
		return nil, err
	}
	targets := make([]Target, 0, len(meetings)+len(series))
	for _, m := range meetings {
		targets = append(targets, Target{Kind: TargetMeeting, ID: m.ID, Title: m.Title})
	}
	for _, sr := range series {
		targets = append(targets, Target{Kind: TargetSeries, ID: sr.ID, Title: sr.Title})
	}
	collator := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(targets, func(i, j int) bool {
		return collator.CompareString(targets[i].Title, targets[j].Title) < 0
	})
	return targets, nil
}

// dispose resolves every unresolved point before the container flips to
// closed: mode move re-parents them to the target, mode close forces them
// closed. One status update is appended per point, attributed to the
// system actor. Zero unresolved points is a no-op, not an error.
func (s *Service) dispose(ctx context.Context, tx TxStore, points []Point, in CloseInput, sourceTitle string, source ParentRef) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	switch in.Mode {
	case ModeMove:
		targetTitle, err := s.resolveTarget(ctx, tx, *in.Target, source)
		if err != nil {
			return 0, err
		}
		for _, p := range points {
			if err := tx.ReparentPoint(ctx, p.ID, *in.Target); err != nil {
				return 0, err
			}
			update := StatusUpdate{
				PointID:  p.ID,
				Date:     s.now(),
				Status:   fmt.Sprintf("moved from %q to %q", sourceTitle, targetTitle),
				ActionOn: SystemActor,
			}
			if err := tx.AppendStatusUpdate(ctx, update); err != nil {
				return 0, err
			}
		}
		return len(points), nil
	case ModeClose:
		for _, p := range points {
			if err := tx.UpdatePointStatus(ctx, p.ID, PointClosed); err != nil {
				return 0, err
			}
			update := StatusUpdate{
				PointID:  p.ID,
				Date:     s.now(),
				Status:   fmt.Sprintf("closed automatically because %q was closed", sourceTitle),
				ActionOn: SystemActor,
			}
			if err := tx.AppendStatusUpdate(ctx, update); err != nil {
				return 0, err
			}
		}
		return len(points), nil
	default:
		return 0, ErrValidation
	}
}

// resolveTarget checks the move destination exists, is still open, and is
// not the container being closed, returning its title for the audit text.
func (s *Service) resolveTarget(ctx context.Context, tx TxStore, target, source ParentRef) (string, error) {
	if target == source {
		return "", ErrValidation
	}
	if target.MeetingID != "" {
		meeting, err := tx.GetMeeting(ctx, target.MeetingID)
		if err != nil {
			return "", err
		}
		if meeting.Status != StatusScheduled {
			return "", ErrValidation
		}
		return meeting.Title, nil
	}
	series, err := tx.GetSeries(ctx, target.SeriesID)
	if err != nil {
		return "", err
	}
	if series.Status != StatusScheduled {
		return "", ErrValidation
	}
	return series.Title, nil
}

func (s *Service) notify(ctx context.Context, digest Digest) {
	if s.notifier == nil || digest.ContainerID == "" {
		return
	}
	if err := s.notifier.ClosureCompleted(ctx, digest); err != nil && s.logger != nil {
		s.logger.Warn("closure digest notification failed",
			slog.String("container", digest.ContainerID),
			slog.Any("error", err))
	}
}
