package crm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"context"

	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, "test-token")
	return NewService(client), server
}

func TestFindAndUpdate_EmailExactHitUpdates(t *testing.T) {
	var updateCalls int
	service, server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/persons/search" && r.URL.Query().Get("exact_match") == "true":
			w.Write([]byte(`{"data":{"items":[{"item":{"id":42,"email":"user@example.com"}}]}}`))
		case r.URL.Path == "/persons/42" && r.Method == http.MethodPut:
			updateCalls++
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			assert.NotContains(t, body, "email")
			w.Write([]byte(`{}`))
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.String())
		}
	})
	defer server.Close()

	result := service.FindAndUpdate(context.Background(), domain.DeferredSyncPayload{
		Email: "user@example.com", UTMSource: "facebook",
	})

	assert.Equal(t, domain.SyncStatusSynced, result.Status)
	assert.Equal(t, "42", result.PersonID)
	assert.Equal(t, 1, updateCalls)
}

func TestFindAndUpdate_NoHitAnywhere_NotFound(t *testing.T) {
	var searchCalls int
	service, server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/persons/search" {
			t.Fatalf("unexpected request: %s", r.URL.String())
		}
		searchCalls++
		w.Write([]byte(`{"data":{"items":[]}}`))
	})
	defer server.Close()

	result := service.FindAndUpdate(context.Background(), domain.DeferredSyncPayload{
		Email: "nobody@example.com", FirstName: "Nobody", LastName: "Here",
	})

	assert.Equal(t, domain.SyncStatusNotFound, result.Status)
	assert.Equal(t, 3, searchCalls, "exact-email, broadened-email, and name search (both first and last name present)")
}

func TestFindAndUpdate_BroadenedEmailSearch_ClientSideMatch(t *testing.T) {
	service, server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("exact_match") == "true" {
			w.Write([]byte(`{"data":{"items":[]}}`))
			return
		}
		if r.URL.Path == "/persons/search" {
			// emails stored as array of {value,label} pairs.
			w.Write([]byte(`{"data":{"items":[{"item":{"id":7,"emails":[{"value":"USER@EXAMPLE.COM","label":"work"}]}}]}}`))
			return
		}
		// update
		w.Write([]byte(`{}`))
	})
	defer server.Close()

	result := service.FindAndUpdate(context.Background(), domain.DeferredSyncPayload{Email: "user@example.com"})

	assert.Equal(t, domain.SyncStatusSynced, result.Status)
	assert.Equal(t, "7", result.PersonID)
}

func TestFindAndUpdate_NameSearch_FirstHitWins(t *testing.T) {
	service, server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("fields") == "name":
			w.Write([]byte(`{"data":{"items":[{"item":{"id":1}},{"item":{"id":2}}]}}`))
		case r.URL.Path == "/persons/search":
			w.Write([]byte(`{"data":{"items":[]}}`))
		default:
			w.Write([]byte(`{}`))
		}
	})
	defer server.Close()

	result := service.FindAndUpdate(context.Background(), domain.DeferredSyncPayload{FirstName: "Ada", LastName: "Lovelace"})

	require.Equal(t, domain.SyncStatusSynced, result.Status)
	assert.Equal(t, "1", result.PersonID)
}

func TestFindAndUpdate_CircuitBreakerOpen_FailsFast(t *testing.T) {
	service, server := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer server.Close()

	// Trip the breaker: 5 consecutive failures.
	for i := 0; i < 5; i++ {
		service.FindAndUpdate(context.Background(), domain.DeferredSyncPayload{Email: "x@example.com"})
	}

	result := service.FindAndUpdate(context.Background(), domain.DeferredSyncPayload{Email: "x@example.com"})
	assert.Equal(t, domain.SyncStatusError, result.Status)
	assert.Equal(t, "circuit breaker open", result.Reason)
}
