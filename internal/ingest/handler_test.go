package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ignite/pixeltrack/internal/attribution"
	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/ignite/pixeltrack/internal/pkg/spawn"
	"github.com/ignite/pixeltrack/internal/ratelimit"
	"github.com/ignite/pixeltrack/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProjects struct {
	pixel   domain.Pixel
	project domain.Project
	missing bool
}

func (f *fakeProjects) GetPixel(ctx context.Context, pixelID string) (domain.Pixel, error) {
	if f.missing {
		return domain.Pixel{}, postgres.ErrNotFound
	}
	return f.pixel, nil
}
func (f *fakeProjects) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	return f.project, nil
}

type fakeIdentity struct {
	mu        sync.Mutex
	visitor   domain.Visitor
	session   domain.Session
	sawUTM    attribution.UTMData
	callCount int
}

func (f *fakeIdentity) FindOrCreateVisitor(ctx context.Context, visitorCookie, ip, userAgent string) (domain.Visitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	v := f.visitor
	v.VisitorCookie = visitorCookie
	return v, nil
}
func (f *fakeIdentity) FindOrCreateSession(ctx context.Context, visitorID, pixelID string, utm attribution.UTMData) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sawUTM = utm
	s := f.session
	s.UTMSource = utm.UTMSource
	return s, nil
}

type fakeEvents struct {
	mu    sync.Mutex
	count int
	last  domain.Event
}

func (f *fakeEvents) Insert(ctx context.Context, e domain.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	f.last = e
	return "evt-1", nil
}

type fakePages struct{}

func (fakePages) ListRecentPageURLs(ctx context.Context, visitorID string, limit int) ([]string, error) {
	return []string{"/a"}, nil
}

type fakeScheduler struct {
	mu       sync.Mutex
	called   int
	payload  domain.DeferredSyncPayload
	done     chan struct{}
}

func (f *fakeScheduler) ScheduleDelayedSync(ctx context.Context, payload domain.DeferredSyncPayload) error {
	f.mu.Lock()
	f.called++
	f.payload = payload
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, routeClass ratelimit.RouteClass, ip string, limit, windowSeconds int) (ratelimit.Result, error) {
	return ratelimit.Result{Allowed: true, Remaining: limit}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, routeClass ratelimit.RouteClass, ip string, limit, windowSeconds int) (ratelimit.Result, error) {
	return ratelimit.Result{Allowed: false}, nil
}

func newTestHandler(projects *fakeProjects, identity *fakeIdentity, events *fakeEvents, scheduler *fakeScheduler, limiter RateLimiter) *Handler {
	return NewHandler(projects, identity, events, fakePages{}, scheduler, limiter, nil, spawn.New(), func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	})
}

func activeProjects() *fakeProjects {
	return &fakeProjects{
		pixel:   domain.Pixel{ID: "px1", ProjectID: "proj1", Active: true},
		project: domain.Project{ID: "proj1", Config: domain.ProjectConfig{PipedriveEnabled: true}},
	}
}

func TestHandleTrack_FirstTimeVisitorWithUTM(t *testing.T) {
	projects := activeProjects()
	identity := &fakeIdentity{visitor: domain.Visitor{ID: "v1"}, session: domain.Session{ID: "s1"}}
	events := &fakeEvents{}
	scheduler := &fakeScheduler{}
	h := newTestHandler(projects, identity, events, scheduler, allowAllLimiter{})

	body := `{"pixel_id":"px1","page_url":"https://site.example/?utm_source=google&utm_medium=cpc&utm_campaign=fall&gclid=ABC"}`
	req := httptest.NewRequest(http.MethodPost, "/track", bytes.NewBufferString(body))
	req.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()

	h.HandleTrack(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.VisitorCookie)
	assert.Equal(t, "google", resp.Attribution.Source)
	assert.Equal(t, 1, events.count)
	assert.Equal(t, domain.EventPageview, events.last.EventType)
}

func TestHandleTrack_FormSubmitSchedulesCRMSync(t *testing.T) {
	projects := activeProjects()
	identity := &fakeIdentity{visitor: domain.Visitor{ID: "v1"}, session: domain.Session{ID: "s1"}}
	events := &fakeEvents{}
	done := make(chan struct{})
	scheduler := &fakeScheduler{done: done}
	h := newTestHandler(projects, identity, events, scheduler, allowAllLimiter{})

	body := `{"pixel_id":"px1","page_url":"https://site.example/signup","event_type":"form_submit","form_data":{"email":"user@example.com","first_name":"Ada"}}`
	req := httptest.NewRequest(http.MethodPost, "/track", bytes.NewBufferString(body))
	req.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()

	h.HandleTrack(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler was not called")
	}
	h.Spawner.Wait(time.Second)

	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	assert.Equal(t, 1, scheduler.called)
	assert.Equal(t, "user@example.com", scheduler.payload.Email)
	assert.Equal(t, "Ada", scheduler.payload.FirstName)
}

func TestHandleTrack_UnknownPixel(t *testing.T) {
	projects := &fakeProjects{missing: true}
	identity := &fakeIdentity{}
	events := &fakeEvents{}
	scheduler := &fakeScheduler{}
	h := newTestHandler(projects, identity, events, scheduler, allowAllLimiter{})

	body := `{"pixel_id":"missing","page_url":"https://site.example/"}`
	req := httptest.NewRequest(http.MethodPost, "/track", bytes.NewBufferString(body))
	req.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()

	h.HandleTrack(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp FailureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestHandleTrack_BotRejected(t *testing.T) {
	projects := activeProjects()
	identity := &fakeIdentity{}
	events := &fakeEvents{}
	scheduler := &fakeScheduler{}
	h := newTestHandler(projects, identity, events, scheduler, allowAllLimiter{})

	body := `{"pixel_id":"px1","page_url":"https://site.example/"}`
	req := httptest.NewRequest(http.MethodPost, "/track", bytes.NewBufferString(body))
	req.Header.Set("User-Agent", "Googlebot/2.1")
	w := httptest.NewRecorder()

	h.HandleTrack(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, events.count)
}

func TestHandleTrack_RateLimited(t *testing.T) {
	projects := activeProjects()
	identity := &fakeIdentity{}
	events := &fakeEvents{}
	scheduler := &fakeScheduler{}
	h := newTestHandler(projects, identity, events, scheduler, denyLimiter{})

	body := `{"pixel_id":"px1","page_url":"https://site.example/"}`
	req := httptest.NewRequest(http.MethodPost, "/track", bytes.NewBufferString(body))
	req.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()

	h.HandleTrack(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHandlePixel_AlwaysReturnsGIF(t *testing.T) {
	projects := &fakeProjects{missing: true}
	identity := &fakeIdentity{}
	events := &fakeEvents{}
	scheduler := &fakeScheduler{}
	h := newTestHandler(projects, identity, events, scheduler, allowAllLimiter{})

	req := httptest.NewRequest(http.MethodGet, "/pixel.gif?pixel_id=missing&page_url=https://site.example/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()

	h.HandlePixel(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Equal(t, pixelGIF, w.Body.Bytes())
}
