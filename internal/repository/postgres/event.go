package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/pixeltrack/internal/domain"
)

// EventRepo implements eventwriter.Repository and the scheduler's event
// status/stalled-scan queries against PostgreSQL.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Insert writes one event row, pre-assigning the ID client-side so the
// driver-returned-ID branch of the ID-recovery ladder always succeeds
// in this implementation. The narrow/broad fallback queries remain
// wired for backends where a client-assigned ID isn't possible.
func (r *EventRepo) Insert(ctx context.Context, e domain.Event) (string, bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (
			id, project_id, pixel_id, visitor_id, session_id, event_type,
			page_url, referrer_url, page_title, user_agent, ip,
			country, region, city,
			utm_source, utm_medium, utm_campaign, utm_content, utm_term,
			gclid, fbclid, msclkid, ttclid, twclid, li_fat_id, sc_click_id,
			campaign_region, ad_group, ad_id, search_query,
			form_data, pipedrive_sync_status, pipedrive_retry_count, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26,
			$27, $28, $29, $30,
			$31, $32, $33, $34
		)
	`, e.ID, e.ProjectID, e.PixelID, e.VisitorID, e.SessionID, e.EventType,
		e.PageURL, e.ReferrerURL, e.PageTitle, e.UserAgent, e.IP,
		e.Country, e.Region, e.City,
		e.UTMSource, e.UTMMedium, e.UTMCampaign, e.UTMContent, e.UTMTerm,
		e.GCLID, e.FBCLID, e.MSCLKID, e.TTCLID, e.TWCLID, e.LiFatID, e.ScClickID,
		e.CampaignRegion, e.AdGroup, e.AdID, e.SearchQuery,
		nullIfEmpty(e.FormData), string(domain.SyncStatusNone), 0, e.CreatedAt,
	)
	if err != nil {
		return "", false, fmt.Errorf("insert event: %w", err)
	}
	return e.ID, true, nil
}

func (r *EventRepo) FindRecentNarrow(ctx context.Context, visitorID, sessionID string, eventType domain.EventType, pageURL string, since time.Time) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM events
		WHERE visitor_id = $1 AND session_id = $2 AND event_type = $3 AND page_url = $4 AND created_at >= $5
		ORDER BY created_at DESC LIMIT 1
	`, visitorID, sessionID, eventType, pageURL, since).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find recent event (narrow): %w", err)
	}
	return id, true, nil
}

func (r *EventRepo) FindRecentBroad(ctx context.Context, visitorID, sessionID string, since time.Time) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM events
		WHERE visitor_id = $1 AND session_id = $2 AND created_at >= $3
		ORDER BY created_at DESC LIMIT 1
	`, visitorID, sessionID, since).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find recent event (broad): %w", err)
	}
	return id, true, nil
}

// UpdateSyncStatus is the scheduler's only write path to an event row
// (spec §3 ownership rule).
func (r *EventRepo) UpdateSyncStatus(ctx context.Context, eventID string, status domain.SyncStatus, personID string, syncAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events SET pipedrive_sync_status = $2, pipedrive_sync_at = $3, pipedrive_person_id = $4
		WHERE id = $1
	`, eventID, string(status), syncAt, nullIfEmpty(personID))
	if err != nil {
		return fmt.Errorf("update event sync status: %w", err)
	}
	return nil
}

// MarkErrorIfNull sets sync_status=error only if it is currently null,
// used when a scheduled job expired before it could be processed.
func (r *EventRepo) MarkErrorIfNull(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events SET pipedrive_sync_status = $2
		WHERE id = $1 AND (pipedrive_sync_status IS NULL OR pipedrive_sync_status = '')
	`, eventID, string(domain.SyncStatusError))
	if err != nil {
		return fmt.Errorf("mark event error if null: %w", err)
	}
	return nil
}

// IncrementRetry bumps retry_count and last_retry_at for a stalled
// event. It returns only an error; the caller already holds the
// event's fields.
func (r *EventRepo) IncrementRetry(ctx context.Context, eventID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events SET pipedrive_retry_count = pipedrive_retry_count + 1, last_retry_at = $2
		WHERE id = $1
	`, eventID, now)
	if err != nil {
		return fmt.Errorf("increment retry: %w", err)
	}
	return nil
}

// ListStalled selects up to `limit` form_submit events eligible for
// stalled-event recovery (spec §4.6).
func (r *EventRepo) ListStalled(ctx context.Context, now time.Time, staleAfter time.Duration, maxRetry, limit int) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, pixel_id, visitor_id, session_id, event_type,
		       page_url, referrer_url, page_title, user_agent, ip,
		       country, region, city,
		       utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		       gclid, fbclid, msclkid, ttclid, twclid, li_fat_id, sc_click_id,
		       campaign_region, ad_group, ad_id, search_query,
		       form_data, pipedrive_retry_count, created_at
		FROM events
		WHERE event_type = $1
		  AND (pipedrive_sync_status IS NULL OR pipedrive_sync_status = '')
		  AND pipedrive_retry_count < $2
		  AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`, string(domain.EventFormSubmit), maxRetry, now.Add(-staleAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("list stalled events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var formData sql.NullString
		if err := rows.Scan(
			&e.ID, &e.ProjectID, &e.PixelID, &e.VisitorID, &e.SessionID, &e.EventType,
			&e.PageURL, &e.ReferrerURL, &e.PageTitle, &e.UserAgent, &e.IP,
			&e.Country, &e.Region, &e.City,
			&e.UTMSource, &e.UTMMedium, &e.UTMCampaign, &e.UTMContent, &e.UTMTerm,
			&e.GCLID, &e.FBCLID, &e.MSCLKID, &e.TTCLID, &e.TWCLID, &e.LiFatID, &e.ScClickID,
			&e.CampaignRegion, &e.AdGroup, &e.AdID, &e.SearchQuery,
			&formData, &e.PipedriveRetryCount, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stalled event: %w", err)
		}
		e.FormData = formData.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
