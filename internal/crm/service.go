package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/sony/gobreaker"
)

// Result is FindAndUpdate's outcome: {status, person_id, reason}.
type Result struct {
	Status   domain.SyncStatus
	PersonID string
	Reason   string
}

// Service reconciles a form submission against the CRM (spec §4.5).
type Service struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker
}

// NewService creates a CRM reconciliation service around client,
// guarded by a fresh circuit breaker.
func NewService(client *Client) *Service {
	return &Service{client: client, breaker: NewBreaker()}
}

// FindAndUpdate runs the search-by-email -> search-by-name -> update
// algorithm. The circuit breaker gates every call this method makes; a
// breaker trip short-circuits with status=error before any HTTP call.
func (s *Service) FindAndUpdate(ctx context.Context, payload domain.DeferredSyncPayload) Result {
	match, err := s.findContact(ctx, payload)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{Status: domain.SyncStatusError, Reason: "circuit breaker open"}
		}
		return Result{Status: domain.SyncStatusError, Reason: err.Error()}
	}
	if match == nil {
		return Result{Status: domain.SyncStatusNotFound}
	}

	fields := BuildPayload(payload)
	if _, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.updatePerson(ctx, match.ID, fields)
	}); err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{Status: domain.SyncStatusError, Reason: "circuit breaker open"}
		}
		return Result{Status: domain.SyncStatusError, Reason: err.Error()}
	}

	return Result{Status: domain.SyncStatusSynced, PersonID: fmt.Sprintf("%d", match.ID)}
}

// findContact implements steps 2-3: exact email search, broadened email
// search with client-side matching, then name search. First hit wins.
func (s *Service) findContact(ctx context.Context, payload domain.DeferredSyncPayload) (*person, error) {
	if payload.Email != "" {
		result, err := s.breaker.Execute(func() (interface{}, error) {
			return s.client.searchByEmailExact(ctx, payload.Email)
		})
		if err != nil {
			return nil, err
		}
		if p := firstMatch(result.([]person)); p != nil {
			return p, nil
		}

		result, err = s.breaker.Execute(func() (interface{}, error) {
			return s.client.searchByEmailBroad(ctx, payload.Email)
		})
		if err != nil {
			return nil, err
		}
		if p := firstEmailMatch(result.([]person), payload.Email); p != nil {
			return p, nil
		}
	}

	if payload.FirstName != "" && payload.LastName != "" {
		result, err := s.breaker.Execute(func() (interface{}, error) {
			return s.client.searchByName(ctx, payload.FirstName+" "+payload.LastName)
		})
		if err != nil {
			return nil, err
		}
		if p := firstMatch(result.([]person)); p != nil {
			return p, nil
		}
	}

	return nil, nil
}

func firstMatch(people []person) *person {
	if len(people) == 0 {
		return nil
	}
	return &people[0]
}

// firstEmailMatch re-checks a broadened search's results client-side,
// since the server-side match there is no longer exact nor restricted to
// the email field.
func firstEmailMatch(people []person, email string) *person {
	target := strings.ToLower(strings.TrimSpace(email))
	for i := range people {
		for _, candidate := range emailCandidates(people[i]) {
			if strings.ToLower(strings.TrimSpace(candidate)) == target {
				return &people[i]
			}
		}
	}
	return nil
}
