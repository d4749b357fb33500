package closure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-hq/quorum/internal/shared"
)

// memStore is an in-memory Store double. Transactions run one at a time
// under txMu, mirroring how the database's row locks serialize concurrent
// closes of the same container.
type memStore struct {
	txMu        sync.Mutex
	mu          sync.Mutex
	meetings    map[string]Meeting
	series      map[string]Series
	occurrences map[string]Occurrence
	points      map[string]Point
	updates     []StatusUpdate
	nextUpdate  int64
}

func newMemStore() *memStore {
	return &memStore{
		meetings:    make(map[string]Meeting),
		series:      make(map[string]Series),
		occurrences: make(map[string]Occurrence),
		points:      make(map[string]Point),
	}
}

func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx, &memTx{store: s})
}

func (s *memStore) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return Meeting{}, ErrNotFound
	}
	return m, nil
}

func (s *memStore) GetSeries(ctx context.Context, id string) (Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.series[id]
	if !ok {
		return Series{}, ErrNotFound
	}
	return sr, nil
}

func (s *memStore) GetOccurrence(ctx context.Context, id string) (Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.occurrences[id]
	if !ok {
		return Occurrence{}, ErrNotFound
	}
	return o, nil
}

func (s *memStore) GetPoint(ctx context.Context, id string) (Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[id]
	if !ok {
		return Point{}, ErrNotFound
	}
	return p, nil
}

func (s *memStore) ListOpenMeetings(ctx context.Context, projectID, excludeID string) ([]Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Meeting
	for _, m := range s.meetings {
		if m.ProjectID == projectID && m.Status == StatusScheduled && m.ID != excludeID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) ListOpenSeries(ctx context.Context, projectID, excludeID string) ([]Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Series
	for _, sr := range s.series {
		if sr.ProjectID == projectID && sr.Status == StatusScheduled && sr.ID != excludeID {
			out = append(out, sr)
		}
	}
	return out, nil
}

func (s *memStore) ListStatusUpdates(ctx context.Context, pointID string) ([]StatusUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StatusUpdate
	for _, u := range s.updates {
		if u.PointID == pointID {
			out = append(out, u)
		}
	}
	return out, nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	return t.store.GetMeeting(ctx, id)
}

func (t *memTx) GetSeries(ctx context.Context, id string) (Series, error) {
	return t.store.GetSeries(ctx, id)
}

func (t *memTx) GetOccurrence(ctx context.Context, id string) (Occurrence, error) {
	return t.store.GetOccurrence(ctx, id)
}

func (t *memTx) ListUnresolvedPoints(ctx context.Context, parent ParentRef) ([]Point, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []Point
	for _, p := range t.store.points {
		if p.Parent == parent && p.Unresolved() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTx) ReparentPoint(ctx context.Context, pointID string, parent ParentRef) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	p, ok := t.store.points[pointID]
	if !ok {
		return ErrNotFound
	}
	p.Parent = parent
	t.store.points[pointID] = p
	return nil
}

func (t *memTx) UpdatePointStatus(ctx context.Context, pointID string, status PointStatus) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	p, ok := t.store.points[pointID]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	t.store.points[pointID] = p
	return nil
}

func (t *memTx) AppendStatusUpdate(ctx context.Context, update StatusUpdate) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.nextUpdate++
	update.ID = t.store.nextUpdate
	t.store.updates = append(t.store.updates, update)
	return nil
}

func (t *memTx) SetMeetingStatus(ctx context.Context, id string, expect, next ContainerStatus, closedAt *time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	m, ok := t.store.meetings[id]
	if !ok || m.Status != expect {
		return ErrStatusConflict
	}
	m.Status = next
	m.ClosedAt = closedAt
	t.store.meetings[id] = m
	return nil
}

func (t *memTx) SetSeriesStatus(ctx context.Context, id string, expect, next ContainerStatus, closedAt *time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	sr, ok := t.store.series[id]
	if !ok || sr.Status != expect {
		return ErrStatusConflict
	}
	sr.Status = next
	sr.ClosedAt = closedAt
	t.store.series[id] = sr
	return nil
}

func (t *memTx) SetOccurrenceStatus(ctx context.Context, id string, expect, next OccurrenceStatus, closedAt *time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	o, ok := t.store.occurrences[id]
	if !ok || o.Status != expect {
		return ErrStatusConflict
	}
	o.Status = next
	o.ClosedAt = closedAt
	t.store.occurrences[id] = o
	return nil
}

type captureNotifier struct {
	mu      sync.Mutex
	digests []Digest
}

func (n *captureNotifier) ClosureCompleted(ctx context.Context, digest Digest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests = append(n.digests, digest)
	return nil
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func seedMeeting(store *memStore, id, project, title string, status ContainerStatus) {
	store.meetings[id] = Meeting{ID: id, ProjectID: project, Title: title, Status: status}
}

func seedSeries(store *memStore, id, project, title string, status ContainerStatus) {
	store.series[id] = Series{ID: id, ProjectID: project, Title: title, Status: status}
}

func seedPoint(store *memStore, id string, parent ParentRef, status PointStatus) {
	store.points[id] = Point{
		ID:         id,
		Parent:     parent,
		Title:      "point " + id,
		Status:     status,
		AssignedTo: shared.UserAssignment("u1"),
	}
}

func TestCloseMeetingForceClosesPoints(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)
	seedPoint(store, "pt1", MeetingParent("m1"), PointOpen)
	seedPoint(store, "pt2", MeetingParent("m1"), PointOngoing)
	seedPoint(store, "pt3", MeetingParent("m1"), PointPostponed)
	seedPoint(store, "pt4", MeetingParent("m1"), PointClosed)

	notifier := &captureNotifier{}
	service := NewService(store, notifier, nil)
	service.WithNow(fixedClock())

	result, err := service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeClose})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Disposed)

	meeting, err := store.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, meeting.Status)
	require.NotNil(t, meeting.ClosedAt)

	pt1, _ := store.GetPoint(context.Background(), "pt1")
	pt2, _ := store.GetPoint(context.Background(), "pt2")
	assert.Equal(t, PointClosed, pt1.Status)
	assert.Equal(t, PointClosed, pt2.Status)

	// Postponed points are left alone.
	pt3, _ := store.GetPoint(context.Background(), "pt3")
	assert.Equal(t, PointPostponed, pt3.Status)

	updates, err := store.ListStatusUpdates(context.Background(), "pt1")
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, `closed automatically because "Kickoff" was closed`, updates[0].Status)
	assert.Equal(t, SystemActor, updates[0].ActionOn)

	// No audit row for points the close did not touch.
	untouched, err := store.ListStatusUpdates(context.Background(), "pt4")
	require.NoError(t, err)
	assert.Empty(t, untouched)

	require.Len(t, notifier.digests, 1)
	assert.Equal(t, TargetMeeting, notifier.digests[0].Kind)
	assert.Equal(t, "m1", notifier.digests[0].ContainerID)
	assert.Equal(t, 2, notifier.digests[0].Disposed)
}

func TestCloseMeetingMovesPoints(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)
	seedMeeting(store, "m2", "p1", "Follow-up", StatusScheduled)
	seedPoint(store, "pt1", MeetingParent("m1"), PointNew)
	seedPoint(store, "pt2", MeetingParent("m1"), PointOpen)

	service := NewService(store, nil, nil)
	service.WithNow(fixedClock())

	target := MeetingParent("m2")
	result, err := service.CloseMeeting(context.Background(), CloseInput{
		ContainerID: "m1",
		Mode:        ModeMove,
		Target:      &target,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Disposed)

	pt1, _ := store.GetPoint(context.Background(), "pt1")
	assert.Equal(t, target, pt1.Parent)
	// Moved points keep their working status.
	assert.Equal(t, PointNew, pt1.Status)

	updates, err := store.ListStatusUpdates(context.Background(), "pt1")
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, `moved from "Kickoff" to "Follow-up"`, updates[0].Status)
	assert.Equal(t, SystemActor, updates[0].ActionOn)
}

func TestCloseMeetingMoveToSeries(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)
	seedSeries(store, "s1", "p1", "Weekly sync", StatusScheduled)
	seedPoint(store, "pt1", MeetingParent("m1"), PointOpen)

	service := NewService(store, nil, nil)
	service.WithNow(fixedClock())

	target := SeriesParent("s1")
	_, err := service.CloseMeeting(context.Background(), CloseInput{
		ContainerID: "m1",
		Mode:        ModeMove,
		Target:      &target,
	})
	require.NoError(t, err)

	pt1, _ := store.GetPoint(context.Background(), "pt1")
	assert.Equal(t, target, pt1.Parent)
}

func TestCloseMeetingAlreadyClosed(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusClosed)

	service := NewService(store, nil, nil)
	_, err := service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeClose})
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestCloseMeetingMoveWithoutTarget(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)
	seedPoint(store, "pt1", MeetingParent("m1"), PointOpen)

	service := NewService(store, nil, nil)
	_, err := service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeMove})
	assert.ErrorIs(t, err, ErrValidation)

	// Nothing was mutated.
	meeting, _ := store.GetMeeting(context.Background(), "m1")
	assert.Equal(t, StatusScheduled, meeting.Status)
	pt1, _ := store.GetPoint(context.Background(), "pt1")
	assert.Equal(t, PointOpen, pt1.Status)
	assert.Empty(t, store.updates)
}

func TestCloseMeetingMoveTargetChecks(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)
	seedMeeting(store, "m2", "p1", "Old", StatusClosed)
	seedPoint(store, "pt1", MeetingParent("m1"), PointOpen)

	service := NewService(store, nil, nil)

	// Target is itself.
	self := MeetingParent("m1")
	_, err := service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeMove, Target: &self})
	assert.ErrorIs(t, err, ErrValidation)

	// Target is closed.
	closed := MeetingParent("m2")
	_, err = service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeMove, Target: &closed})
	assert.ErrorIs(t, err, ErrValidation)

	// Target does not exist.
	missing := MeetingParent("nope")
	_, err = service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeMove, Target: &missing})
	assert.ErrorIs(t, err, ErrNotFound)

	meeting, _ := store.GetMeeting(context.Background(), "m1")
	assert.Equal(t, StatusScheduled, meeting.Status)
}

func TestCloseMeetingNotFound(t *testing.T) {
	service := NewService(newMemStore(), nil, nil)
	_, err := service.CloseMeeting(context.Background(), CloseInput{ContainerID: "ghost", Mode: ModeClose})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseMeetingNoUnresolvedPoints(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)
	seedPoint(store, "pt1", MeetingParent("m1"), PointClosed)

	service := NewService(store, nil, nil)
	result, err := service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeClose})
	require.NoError(t, err)
	assert.Zero(t, result.Disposed)

	meeting, _ := store.GetMeeting(context.Background(), "m1")
	assert.Equal(t, StatusClosed, meeting.Status)
}

func TestCloseSeriesDisposesPoints(t *testing.T) {
	store := newMemStore()
	seedSeries(store, "s1", "p1", "Weekly sync", StatusScheduled)
	seedPoint(store, "pt1", SeriesParent("s1"), PointOpen)

	notifier := &captureNotifier{}
	service := NewService(store, notifier, nil)
	service.WithNow(fixedClock())

	result, err := service.CloseSeries(context.Background(), CloseInput{ContainerID: "s1", Mode: ModeClose})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Disposed)

	series, _ := store.GetSeries(context.Background(), "s1")
	assert.Equal(t, StatusClosed, series.Status)

	updates, _ := store.ListStatusUpdates(context.Background(), "pt1")
	require.Len(t, updates, 1)
	assert.Equal(t, `closed automatically because "Weekly sync" was closed`, updates[0].Status)

	require.Len(t, notifier.digests, 1)
	assert.Equal(t, TargetSeries, notifier.digests[0].Kind)
}

func TestConcurrentCloseDisposesOnce(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)
	for i := 0; i < 5; i++ {
		seedPoint(store, string(rune('a'+i)), MeetingParent("m1"), PointOpen)
	}

	service := NewService(store, nil, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeClose})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			assert.ErrorIs(t, err, ErrAlreadyClosed)
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicted)

	// Exactly one audit row per point despite the racing closes.
	for i := 0; i < 5; i++ {
		updates, _ := store.ListStatusUpdates(context.Background(), string(rune('a'+i)))
		assert.Len(t, updates, 1)
	}
}

func TestCloseAndReopenOccurrence(t *testing.T) {
	store := newMemStore()
	store.occurrences["o1"] = Occurrence{ID: "o1", SeriesID: "s1", Status: OccurrenceScheduled}

	service := NewService(store, nil, nil)
	service.WithNow(fixedClock())

	result, err := service.CloseOccurrence(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", result.ContainerID)

	occ, _ := store.GetOccurrence(context.Background(), "o1")
	assert.Equal(t, OccurrenceCompleted, occ.Status)
	require.NotNil(t, occ.ClosedAt)

	_, err = service.CloseOccurrence(context.Background(), "o1")
	assert.ErrorIs(t, err, ErrAlreadyClosed)

	require.NoError(t, service.ReopenOccurrence(context.Background(), "o1"))
	occ, _ = store.GetOccurrence(context.Background(), "o1")
	assert.Equal(t, OccurrenceScheduled, occ.Status)
	assert.Nil(t, occ.ClosedAt)
}

func TestReopenCancelledOccurrence(t *testing.T) {
	store := newMemStore()
	store.occurrences["o1"] = Occurrence{ID: "o1", SeriesID: "s1", Status: OccurrenceCancelled}

	service := NewService(store, nil, nil)
	err := service.ReopenOccurrence(context.Background(), "o1")
	assert.ErrorIs(t, err, ErrNotClosed)
}

func TestReopenMeetingDoesNotUndoDisposal(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)
	seedPoint(store, "pt1", MeetingParent("m1"), PointOpen)

	service := NewService(store, nil, nil)
	service.WithNow(fixedClock())

	_, err := service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeClose})
	require.NoError(t, err)
	require.NoError(t, service.ReopenMeeting(context.Background(), "m1"))

	meeting, _ := store.GetMeeting(context.Background(), "m1")
	assert.Equal(t, StatusScheduled, meeting.Status)
	assert.Nil(t, meeting.ClosedAt)

	// The forced closure of the point is permanent.
	pt1, _ := store.GetPoint(context.Background(), "pt1")
	assert.Equal(t, PointClosed, pt1.Status)
	updates, _ := store.ListStatusUpdates(context.Background(), "pt1")
	assert.Len(t, updates, 1)
}

func TestReopenMeetingNotClosed(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)

	service := NewService(store, nil, nil)
	err := service.ReopenMeeting(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrNotClosed)
}

func TestReopenSeries(t *testing.T) {
	store := newMemStore()
	seedSeries(store, "s1", "p1", "Weekly sync", StatusClosed)

	service := NewService(store, nil, nil)
	require.NoError(t, service.ReopenSeries(context.Background(), "s1"))

	series, _ := store.GetSeries(context.Background(), "s1")
	assert.Equal(t, StatusScheduled, series.Status)
}

func TestListCloseTargets(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "zebra review", StatusScheduled)
	seedMeeting(store, "m2", "p1", "Apple sync", StatusScheduled)
	seedMeeting(store, "m3", "p1", "closed one", StatusClosed)
	seedMeeting(store, "m4", "p2", "other project", StatusScheduled)
	seedSeries(store, "s1", "p1", "monthly board", StatusScheduled)

	service := NewService(store, nil, nil)
	targets, err := service.ListCloseTargets(context.Background(), "p1", ParentRef{})
	require.NoError(t, err)
	require.Len(t, targets, 3)

	// Case-insensitive title order across meetings and series.
	assert.Equal(t, "Apple sync", targets[0].Title)
	assert.Equal(t, "monthly board", targets[1].Title)
	assert.Equal(t, "zebra review", targets[2].Title)
}

func TestListCloseTargetsExcludesSource(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)
	seedMeeting(store, "m2", "p1", "Follow-up", StatusScheduled)

	service := NewService(store, nil, nil)
	targets, err := service.ListCloseTargets(context.Background(), "p1", MeetingParent("m1"))
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "m2", targets[0].ID)
}

func TestNotifierFailureDoesNotFailClose(t *testing.T) {
	store := newMemStore()
	seedMeeting(store, "m1", "p1", "Kickoff", StatusScheduled)

	service := NewService(store, failingNotifier{}, nil)
	_, err := service.CloseMeeting(context.Background(), CloseInput{ContainerID: "m1", Mode: ModeClose})
	require.NoError(t, err)

	meeting, _ := store.GetMeeting(context.Background(), "m1")
	assert.Equal(t, StatusClosed, meeting.Status)
}

type failingNotifier struct{}

func (failingNotifier) ClosureCompleted(ctx context.Context, digest Digest) error {
	return context.DeadlineExceeded
}
