package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ignite/pixeltrack/internal/crm"
	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/ignite/pixeltrack/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCRM struct {
	mu      sync.Mutex
	calls   int
	result  crm.Result
	results map[string]crm.Result
}

func (f *fakeCRM) FindAndUpdate(ctx context.Context, payload domain.DeferredSyncPayload) crm.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if r, ok := f.results[payload.EventID]; ok {
		return r
	}
	return f.result
}

type statusWrite struct {
	status   domain.SyncStatus
	personID string
}

type fakeEventRepo struct {
	mu       sync.Mutex
	statuses map[string]statusWrite
	errored  map[string]bool
	retries  map[string]int
	stalled  []domain.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{statuses: map[string]statusWrite{}, errored: map[string]bool{}, retries: map[string]int{}}
}

func (f *fakeEventRepo) UpdateSyncStatus(ctx context.Context, eventID string, status domain.SyncStatus, personID string, syncAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[eventID] = statusWrite{status: status, personID: personID}
	return nil
}

func (f *fakeEventRepo) MarkErrorIfNull(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[eventID]; !ok {
		f.errored[eventID] = true
	}
	return nil
}

func (f *fakeEventRepo) IncrementRetry(ctx context.Context, eventID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries[eventID]++
	return nil
}

func (f *fakeEventRepo) ListStalled(ctx context.Context, now time.Time, staleAfter time.Duration, maxRetry, limit int) ([]domain.Event, error) {
	return f.stalled, nil
}

type fakeVisitorRepo struct{}

func (fakeVisitorRepo) GetVisitor(ctx context.Context, visitorID string) (domain.Visitor, error) {
	return domain.Visitor{ID: visitorID, LastSeen: time.Now()}, nil
}
func (fakeVisitorRepo) ListRecentPageURLs(ctx context.Context, visitorID string, limit int) ([]string, error) {
	return []string{"/a", "/b"}, nil
}

type fakeSessionRepo struct{}

func (fakeSessionRepo) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return domain.Session{ID: sessionID, StartedAt: time.Now().Add(-time.Hour), LastActivity: time.Now()}, nil
}

func TestScheduleDelayedSync_WritesJobAndIdempotencyMarker(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(store, &fakeCRM{}, newFakeEventRepo(), fakeVisitorRepo{}, fakeSessionRepo{}, func() time.Time { return now })

	err := s.ScheduleDelayedSync(context.Background(), domain.DeferredSyncPayload{EventID: "evt-1", Email: "a@b.com"})
	require.NoError(t, err)

	due, err := store.ListDue(context.Background(), syncGroupPrefix, now.Add(domain.DeferredSyncDelay), 100, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)

	value, ok, err := store.Get(context.Background(), due[0].Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(value), "evt-1")
}

func TestScheduleDelayedSync_DuplicateSkipped(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(store, &fakeCRM{}, newFakeEventRepo(), fakeVisitorRepo{}, fakeSessionRepo{}, func() time.Time { return now })

	payload := domain.DeferredSyncPayload{EventID: "evt-1", Email: "a@b.com"}
	require.NoError(t, s.ScheduleDelayedSync(context.Background(), payload))
	require.NoError(t, s.ScheduleDelayedSync(context.Background(), payload))

	due, err := store.ListDue(context.Background(), syncGroupPrefix, now.Add(domain.DeferredSyncDelay), 100, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1, "second enqueue with the same event/email/timestamp must be a no-op")
}

func TestTick_ProcessesDueJob_Synced(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := newFakeEventRepo()
	crmSvc := &fakeCRM{result: crm.Result{Status: domain.SyncStatusSynced, PersonID: "42"}}
	s := New(store, crmSvc, events, fakeVisitorRepo{}, fakeSessionRepo{}, func() time.Time { return now })

	require.NoError(t, s.ScheduleDelayedSync(context.Background(), domain.DeferredSyncPayload{EventID: "evt-1", Email: "a@b.com"}))

	// Advance the clock past scheduled_at and tick.
	later := now.Add(domain.DeferredSyncDelay + time.Minute)
	s.now = func() time.Time { return later }
	s.Tick(context.Background())

	write, ok := events.statuses["evt-1"]
	require.True(t, ok, "event status must be written")
	assert.Equal(t, domain.SyncStatusSynced, write.status)
	assert.Equal(t, "42", write.personID)

	due, err := store.ListDue(context.Background(), syncGroupPrefix, later, 100, 1)
	require.NoError(t, err)
	assert.Empty(t, due, "processed job must be deleted")
}

func TestRecoverStalled_ReenqueuesWithReconstructedPayload(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := newFakeEventRepo()
	events.stalled = []domain.Event{{
		ID: "evt-stalled", VisitorID: "v1", SessionID: "se1",
		EventType: domain.EventFormSubmit, CreatedAt: now.Add(-20 * time.Minute),
	}}
	s := New(store, &fakeCRM{}, events, fakeVisitorRepo{}, fakeSessionRepo{}, func() time.Time { return now })

	s.recoverStalled(context.Background(), now)

	assert.Equal(t, 1, events.retries["evt-stalled"])

	due, err := store.ListDue(context.Background(), syncGroupPrefix, now.Add(domain.StalledRetryDelay), 100, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
}
