package crm

import (
	"time"

	"github.com/sony/gobreaker"
)

// NewBreaker builds the circuit breaker guarding outbound CRM calls per
// spec §4.5's network contract: opens after 5 consecutive failures; open
// calls fail fast; after 60s moves to half-open and admits trial calls,
// closing once 2 of them succeed consecutively.
//
// gobreaker transitions half-open -> closed exactly when
// ConsecutiveSuccesses reaches MaxRequests, so MaxRequests: 2 alone gives
// the "two consecutive probe successes" requirement without a wrapper.
func NewBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "crm",
		MaxRequests: 2,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
