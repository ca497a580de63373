package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/ignite/pixeltrack/internal/attribution"
	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/ignite/pixeltrack/internal/pkg/httputil"
	"github.com/ignite/pixeltrack/internal/pkg/logger"
	"github.com/ignite/pixeltrack/internal/pkg/spawn"
	"github.com/ignite/pixeltrack/internal/ratelimit"
	"github.com/ignite/pixeltrack/internal/repository/postgres"
	"github.com/ignite/pixeltrack/internal/service/eventwriter"
)

const maxVisitedPages = 50

// maxPageURLLength bounds the security/validation step (spec §4.4
// step 1): an oversized page_url is rejected before any further work.
const maxPageURLLength = 4096

var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Handler implements the ingest pipeline: security -> bot filter ->
// rate limit -> pixel/project lookup -> geo hints -> identity ->
// attribution -> event write -> (on form_submit) deferred CRM
// scheduling + newsletter side-effect.
type Handler struct {
	Projects     ProjectLookup
	Identity     IdentityService
	Events       EventWriter
	Pages        VisitorPages
	Scheduler    Scheduler
	RateLimiter  RateLimiter
	Newsletter   NewsletterClient // nil disables the side-effect
	Spawner      *spawn.Supervisor
	Now          func() time.Time
	log          *logger.Entry
}

// NewHandler builds a ready-to-route Handler. Now defaults to
// time.Now; tests may override it.
func NewHandler(projects ProjectLookup, identity IdentityService, events EventWriter, pages VisitorPages, scheduler Scheduler, limiter RateLimiter, newsletter NewsletterClient, spawner *spawn.Supervisor, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		Projects: projects, Identity: identity, Events: events, Pages: pages,
		Scheduler: scheduler, RateLimiter: limiter, Newsletter: newsletter,
		Spawner: spawner, Now: now, log: logger.WithComponent("ingest"),
	}
}

// Routes returns the chi router for the ingest endpoints, CORS-open
// since the pixel script runs on an arbitrary third-party origin.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Post("/track", h.HandleTrack)
	r.Get("/pixel.gif", h.HandlePixel)
	return r
}

// trackInput is the pipeline's normalized view of either entry point,
// so HandleTrack and HandlePixel share one implementation.
type trackInput struct {
	PixelID       string
	ProjectID     string
	PageURL       string
	ReferrerURL   string
	PageTitle     string
	VisitorCookie string
	EventType     string
	UserAgent     string
	IP            string
	Body          map[string]string
	ExplicitForm  map[string]string
	Geo           GeoHints
}

// pipelineError carries the HTTP status a failure maps to, per spec §7.
type pipelineError struct {
	status  int
	message string
}

func (e *pipelineError) Error() string { return e.message }

func fail(status int, message string) *pipelineError {
	return &pipelineError{status: status, message: message}
}

// HandleTrack implements `POST /track` (spec §6.1).
func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	start := h.Now()

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.writeFailure(w, start, fail(http.StatusBadRequest, "invalid JSON body"))
		return
	}

	in := trackInput{
		UserAgent: r.UserAgent(),
		IP:        RealIP(r),
		Body:      bodyFields(raw),
		Geo:       ExtractGeoHints(r),
	}
	assignString(&in.PixelID, raw["pixel_id"])
	assignString(&in.ProjectID, raw["project_id"])
	assignString(&in.PageURL, raw["page_url"])
	assignString(&in.ReferrerURL, raw["referrer_url"])
	assignString(&in.PageTitle, raw["page_title"])
	assignString(&in.VisitorCookie, raw["visitor_cookie"])
	assignString(&in.EventType, raw["event_type"])
	if ua := in.Body["user_agent"]; ua != "" {
		in.UserAgent = ua
	}
	if fd, ok := raw["form_data"]; ok {
		in.ExplicitForm, _ = DecodeFormData(fd)
	}

	result, err := h.ingest(r.Context(), in)
	if err != nil {
		var pe *pipelineError
		if errors.As(err, &pe) {
			h.writeFailure(w, start, pe)
			return
		}
		h.writeFailure(w, start, fail(http.StatusInternalServerError, err.Error()))
		return
	}

	httputil.JSON(w, http.StatusOK, SuccessResponse{
		Success:        true,
		VisitorCookie:  result.VisitorCookie,
		VisitorID:      result.VisitorID,
		SessionID:      result.SessionID,
		EventID:        result.EventID,
		Attribution:    AttributionSummary(result.Attribution),
		ProcessingTime: h.Now().Sub(start).Seconds(),
	})
}

// HandlePixel implements `GET /pixel.gif` (spec §6.2): same semantics
// via query parameters, always returns a GIF regardless of outcome.
func (h *Handler) HandlePixel(w http.ResponseWriter, r *http.Request) {
	start := h.Now()
	q := r.URL.Query()
	body := queryToBody(q)

	in := trackInput{
		PixelID:       q.Get("pixel_id"),
		ProjectID:     q.Get("project_id"),
		PageURL:       q.Get("page_url"),
		ReferrerURL:   q.Get("referrer_url"),
		PageTitle:     q.Get("page_title"),
		VisitorCookie: q.Get("visitor_cookie"),
		EventType:     q.Get("event_type"),
		UserAgent:     r.UserAgent(),
		IP:            RealIP(r),
		Body:          body,
		Geo:           ExtractGeoHints(r),
	}

	result, err := h.ingest(r.Context(), in)
	if err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     "visitor_cookie",
			Value:    result.VisitorCookie,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteNoneMode,
			Secure:   true,
		})
	} else {
		h.log.Warn("pixel ingest failed", "error_message", err.Error(), "duration_ms", h.Now().Sub(start).Milliseconds())
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(pixelGIF)
}

func assignString(dst *string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		*dst = s
	}
}

// ingestResult is the normalized pipeline outcome shared by both
// entry points.
type ingestResult struct {
	VisitorCookie string
	VisitorID     string
	SessionID     string
	EventID       string
	Attribution   attribution.Summary
}

// ingest runs the full pipeline (spec §4.4): security -> bot filter ->
// rate limit -> pixel/project lookup -> geo -> visitor cookie ->
// identity -> attribution -> event write -> (on form_submit) deferred
// CRM scheduling + newsletter side-effect.
func (h *Handler) ingest(ctx context.Context, in trackInput) (ingestResult, error) {
	if in.PixelID == "" || in.PageURL == "" {
		return ingestResult{}, fail(http.StatusBadRequest, "pixel_id and page_url are required")
	}
	if len(in.PageURL) > maxPageURLLength {
		return ingestResult{}, fail(http.StatusBadRequest, "page_url too long")
	}
	if IsBot(in.UserAgent) {
		return ingestResult{}, fail(http.StatusBadRequest, "rejected")
	}

	limit := ratelimit.DefaultLimits[ratelimit.RouteTracking]
	rlResult, err := h.RateLimiter.Allow(ctx, ratelimit.RouteTracking, in.IP, limit.Limit, int(limit.Window.Seconds()))
	if err != nil {
		return ingestResult{}, fail(http.StatusInternalServerError, "rate limit check failed")
	}
	if !rlResult.Allowed {
		return ingestResult{}, fail(http.StatusTooManyRequests, "rate limited")
	}

	pixel, err := h.Projects.GetPixel(ctx, in.PixelID)
	if errors.Is(err, postgres.ErrNotFound) {
		return ingestResult{}, fail(http.StatusBadRequest, "unknown pixel")
	}
	if err != nil {
		return ingestResult{}, fmt.Errorf("ingest: lookup pixel: %w", err)
	}
	if !pixel.Active {
		return ingestResult{}, fail(http.StatusBadRequest, "inactive pixel")
	}

	project, err := h.Projects.GetProject(ctx, pixel.ProjectID)
	if err != nil {
		return ingestResult{}, fmt.Errorf("ingest: lookup project: %w", err)
	}

	visitorCookie := in.VisitorCookie
	if !ValidVisitorCookie(visitorCookie) {
		visitorCookie = GenerateVisitorCookie()
	}

	visitor, err := h.Identity.FindOrCreateVisitor(ctx, visitorCookie, in.IP, in.UserAgent)
	if err != nil {
		return ingestResult{}, fmt.Errorf("ingest: find or create visitor: %w", err)
	}

	utm := attribution.ExtractFromRequest(in.Body, in.PageURL, in.ReferrerURL)
	session, err := h.Identity.FindOrCreateSession(ctx, visitor.ID, pixel.ID, utm)
	if err != nil {
		return ingestResult{}, fmt.Errorf("ingest: find or create session: %w", err)
	}
	summary := attribution.Summarize(utm)

	formData := in.ExplicitForm
	if len(formData) == 0 {
		if derived, ok := eventwriter.DeriveFormDataFromURL(in.PageURL); ok {
			formData = derived
		}
	}
	encodedForm, err := eventwriter.EncodeFormData(formData)
	if err != nil {
		return ingestResult{}, fmt.Errorf("ingest: encode form data: %w", err)
	}
	eventType := eventwriter.ResolveEventType(in.EventType, len(formData) > 0)

	event := domain.Event{
		ProjectID: project.ID, PixelID: pixel.ID, VisitorID: visitor.ID, SessionID: session.ID,
		EventType: eventType, PageURL: in.PageURL, ReferrerURL: in.ReferrerURL, PageTitle: in.PageTitle,
		UserAgent: in.UserAgent, IP: in.IP,
		Country: in.Geo.Country, Region: in.Geo.Region, City: in.Geo.City,
		UTMSource: utm.UTMSource, UTMMedium: utm.UTMMedium, UTMCampaign: utm.UTMCampaign,
		UTMContent: utm.UTMContent, UTMTerm: utm.UTMTerm,
		GCLID: utm.GCLID, FBCLID: utm.FBCLID, MSCLKID: utm.MSCLKID, TTCLID: utm.TTCLID,
		TWCLID: utm.TWCLID, LiFatID: utm.LiFatID, ScClickID: utm.ScClickID,
		CampaignRegion: utm.CampaignRegion, AdGroup: utm.AdGroup, AdID: utm.AdID, SearchQuery: utm.SearchQuery,
		FormData:  encodedForm,
		CreatedAt: h.Now(),
	}

	eventID, err := h.Events.Insert(ctx, event)
	if err != nil {
		if errors.Is(err, eventwriter.ErrEventIDUnavailable) {
			return ingestResult{}, fail(http.StatusInternalServerError, "event id unavailable")
		}
		return ingestResult{}, fmt.Errorf("ingest: insert event: %w", err)
	}

	if eventType == domain.EventFormSubmit && project.Config.PipedriveEnabled {
		payload := h.buildSyncPayload(ctx, eventID, visitor, session, event, formData)
		bgCtx := context.WithoutCancel(ctx)
		h.Spawner.Spawn(bgCtx, "crm-enqueue", func(ctx context.Context) error {
			return h.Scheduler.ScheduleDelayedSync(ctx, payload)
		})

		if h.Newsletter != nil && payload.Email != "" {
			h.Spawner.Spawn(bgCtx, "newsletter-subscribe", func(ctx context.Context) error {
				return h.Newsletter.Subscribe(ctx, payload.Email, payload.FirstName, payload.LastName)
			})
		}
	}

	return ingestResult{
		VisitorCookie: visitor.VisitorCookie,
		VisitorID:     visitor.ID,
		SessionID:     session.ID,
		EventID:       eventID,
		Attribution:   summary,
	}, nil
}

// buildSyncPayload assembles the deferred-job value the scheduler will
// hand to the CRM adapter, capturing a full snapshot at enqueue time
// (spec §6.4: the job value is the complete sync payload, not just the
// identity fields).
func (h *Handler) buildSyncPayload(ctx context.Context, eventID string, visitor domain.Visitor, session domain.Session, event domain.Event, formData map[string]string) domain.DeferredSyncPayload {
	email, firstName, lastName := eventwriter.ExtractIdentity(formData)

	var pages []string
	if h.Pages != nil {
		if p, err := h.Pages.ListRecentPageURLs(ctx, visitor.ID, maxVisitedPages); err == nil {
			pages = p
		}
	}

	return domain.DeferredSyncPayload{
		EventID: eventID, VisitorID: visitor.ID, SessionID: session.ID,
		PixelID: event.PixelID, ProjectID: event.ProjectID,
		Email: email, FirstName: firstName, LastName: lastName,
		PageURL: event.PageURL, PageTitle: event.PageTitle, ReferrerURL: event.ReferrerURL,
		UTMSource: event.UTMSource, UTMMedium: event.UTMMedium, UTMCampaign: event.UTMCampaign,
		UTMContent: event.UTMContent, UTMTerm: event.UTMTerm,
		GCLID: event.GCLID, FBCLID: event.FBCLID, MSCLKID: event.MSCLKID,
		TTCLID: event.TTCLID, TWCLID: event.TWCLID, LiFatID: event.LiFatID, ScClickID: event.ScClickID,
		CampaignRegion: event.CampaignRegion, AdGroup: event.AdGroup, AdID: event.AdID, SearchQuery: event.SearchQuery,
		Country: event.Country, Region: event.Region, City: event.City, IP: event.IP,
		UserAgent: event.UserAgent, EventType: string(event.EventType),
		VisitorLastSeen:  visitor.LastSeen,
		VisitedPages:     pages,
		SessionStartedAt: session.StartedAt,
		SessionLastSeen:  session.LastActivity,
		CreatedAt:        h.Now(),
	}
}

func (h *Handler) writeFailure(w http.ResponseWriter, start time.Time, pe *pipelineError) {
	if pe.status == http.StatusInternalServerError {
		h.log.Error("ingest failed", "error_message", pe.message, "duration_ms", h.Now().Sub(start).Milliseconds())
	}
	message := pe.message
	if pe.status == http.StatusInternalServerError && httputil.Environment == "production" {
		message = "internal server error"
	}
	httputil.JSON(w, pe.status, FailureResponse{
		Success:        false,
		Error:          message,
		ProcessingTime: h.Now().Sub(start).Seconds(),
	})
}
