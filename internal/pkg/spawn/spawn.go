// Package spawn abstracts background-task lifetime behind a single
// capability so request handlers never leak an untracked goroutine.
//
// The ingest handler uses this for deferred-CRM-job enqueue and the
// newsletter side-effect: both must survive the HTTP response being
// written, but the process must not exit while either is still running.
package spawn

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/pixeltrack/internal/pkg/logger"
)

// Supervisor tracks in-flight background work spawned via Spawn and lets
// the host wait for all of it to finish before shutting down.
type Supervisor struct {
	wg sync.WaitGroup
}

// New returns a ready-to-use Supervisor.
func New() *Supervisor {
	return &Supervisor{}
}

// Spawn runs fn in its own goroutine, registering it with the supervisor
// first so Wait cannot return before fn completes. A panic inside fn is
// recovered and logged rather than crashing the process, since this is
// fire-and-forget work the caller has already stopped waiting on.
func (s *Supervisor) Spawn(ctx context.Context, label string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithComponent("spawn").Error("recovered panic in background task",
					"label", label, "panic", r)
			}
		}()
		if err := fn(ctx); err != nil {
			logger.WithComponent("spawn").Warn("background task failed",
				"label", label, "error_message", err.Error())
		}
	}()
}

// Wait blocks until every spawned task has returned, or until timeout
// elapses, whichever comes first. It returns true if all
// tasks finished, false if the wait was cut short.
func (s *Supervisor) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
