package heartbeat

import (
	"time"

	"github.com/crewcore/crew/pkg/store"
)

// advanceBreakerOnWake transitions OPEN → HALF_OPEN once the configured
// timeout has elapsed since opened_at (spec §5: "OPEN → HALF_OPEN after
// timeout elapses since opened_at").
func (s *Service) advanceBreakerOnWake(breaker store.CircuitBreakerState) store.CircuitBreakerState {
	if breaker.State != "open" {
		return breaker
	}
	timeout := time.Duration(s.cfg.CircuitBreakerTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if time.Since(breaker.OpenedAt) >= timeout {
		breaker.State = "half_open"
	}
	return breaker
}

// applyBreakerTransition updates breaker state from a tick's overall
// success/failure, implementing the rest of spec §5's state machine:
// CLOSED → OPEN on failure_count ≥ threshold; HALF_OPEN → CLOSED on one
// success; HALF_OPEN → OPEN on one failure.
func (s *Service) applyBreakerTransition(breaker store.CircuitBreakerState, success bool) store.CircuitBreakerState {
	threshold := s.cfg.CircuitBreakerThresh
	if threshold <= 0 {
		threshold = 3
	}

	switch breaker.State {
	case "half_open":
		if success {
			breaker.State = "closed"
			breaker.FailureCount = 0
		} else {
			breaker.State = "open"
			breaker.OpenedAt = time.Now().UTC()
		}
	default: // closed (open ticks never reach here — they're skipped earlier)
		if success {
			breaker.FailureCount = 0
		} else {
			breaker.FailureCount++
			if breaker.FailureCount >= threshold {
				breaker.State = "open"
				breaker.OpenedAt = time.Now().UTC()
			}
		}
	}
	return breaker
}
