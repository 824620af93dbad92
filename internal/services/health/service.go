// Package health aggregates readiness checks for the service's backing
// dependencies.
package health

import (
	"context"
	"sync"
	"time"
)

const checkTimeout = 2 * time.Second

// Check probes one dependency. A nil error means ready.
type Check func(ctx context.Context) error

// Service runs registered checks and reports per-component status.
type Service struct {
	mu     sync.Mutex
	checks map[string]Check
}

// NewService constructs an empty health service.
func NewService() *Service {
	return &Service{checks: make(map[string]Check)}
}

// Register adds a named dependency check. Registering the same name again
// replaces the previous check.
func (s *Service) Register(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Status runs every check and returns overall readiness plus a per-component
// report: "ok" or the error text.
func (s *Service) Status(ctx context.Context) (bool, map[string]string) {
	s.mu.Lock()
	checks := make(map[string]Check, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.Unlock()

	ok := true
	report := make(map[string]string, len(checks))
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			ok = false
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	return ok, report
}
