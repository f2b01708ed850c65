package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/crewcore/crew/pkg/config"
	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/metrics"
	"github.com/crewcore/crew/pkg/store"
	"github.com/crewcore/crew/pkg/tracing"
)

// Store is the subset of pkg/store's capability surface the heartbeat
// engine needs.
type Store interface {
	StartTick(botName, triggerType, triggeredBy string) (string, error)
	FinishTick(tickID, status string, results []store.CheckResult) error
	LastTicks(botName string, n int) ([]store.HeartbeatTick, error)
	GetCircuitBreaker(botName string) (store.CircuitBreakerState, error)
	SetCircuitBreaker(st store.CircuitBreakerState) error
}

var _ Store = (*store.Store)(nil)

// Service runs one bot's scheduled checks (spec §4.6). One Service per bot;
// the MultiHeartbeatManager owns the set of them.
type Service struct {
	bot      string
	cfg      config.HeartbeatConfig
	registry *CheckRegistry
	db       Store
	metrics  *metrics.Registry

	mu      sync.Mutex
	running bool

	stop chan struct{}
	done chan struct{}
}

// NewService builds a Service for bot using cfg's tuning and registry's
// check set. m may be nil (metrics become a no-op).
func NewService(bot string, cfg config.HeartbeatConfig, registry *CheckRegistry, db Store, m *metrics.Registry) *Service {
	return &Service{bot: bot, cfg: cfg, registry: registry, db: db, metrics: m, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start begins the sleep-wake loop. It returns immediately; the loop runs
// until Stop is called.
func (s *Service) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	go s.loop(ctx)
}

// Stop ends the loop and waits for the in-flight tick (if any) to finish.
func (s *Service) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	if s.cfg.CronExpr != "" {
		s.cronLoop(ctx)
		return
	}

	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.RunTick(ctx, "scheduled", "")
		}
	}
}

// cronLoop drives scheduling off a cron expression instead of a fixed
// interval, for bots whose heartbeat cadence should follow a calendar
// pattern (e.g. "weekdays at 9am") rather than a simple period.
func (s *Service) cronLoop(ctx context.Context) {
	gx := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			due, err := gx.IsDue(s.cfg.CronExpr)
			if err != nil {
				logger.WarnCF("heartbeat", "invalid heartbeat cron expression", map[string]interface{}{"bot": s.bot, "expr": s.cfg.CronExpr, "error": err.Error()})
				continue
			}
			if due {
				s.RunTick(ctx, "scheduled", "")
			}
		}
	}
}

// TriggerNow runs a Tick immediately with trigger_type=manual. Does not
// reset the interval schedule (spec §4.6).
func (s *Service) TriggerNow(ctx context.Context, reason string) []CheckResult {
	return s.RunTick(ctx, "manual", reason)
}

// RunTick executes one heartbeat tick: checks the circuit breaker, runs
// checks (parallel or sequential per config), applies retries, and updates
// breaker state from the outcome.
func (s *Service) RunTick(ctx context.Context, triggerType, triggeredBy string) []CheckResult {
	ctx, span := tracing.StartHeartbeatTick(ctx, s.bot, triggerType)
	defer span.End()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.WarnCF("heartbeat", "tick skipped, previous tick still running", map[string]interface{}{"bot": s.bot})
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	breaker, err := s.db.GetCircuitBreaker(s.bot)
	if err != nil {
		logger.WarnCF("heartbeat", "failed to read circuit breaker, assuming closed", map[string]interface{}{"bot": s.bot, "error": err.Error()})
		breaker = store.CircuitBreakerState{BotName: s.bot, State: "closed"}
	}
	breaker = s.advanceBreakerOnWake(breaker)

	tickID, err := s.db.StartTick(s.bot, triggerType, triggeredBy)
	if err != nil {
		logger.WarnCF("heartbeat", "failed to start tick", map[string]interface{}{"bot": s.bot, "error": err.Error()})
		return nil
	}

	if breaker.State == "open" {
		_ = s.db.FinishTick(tickID, "skipped", nil)
		return nil
	}

	deadline := time.Duration(s.cfg.MaxExecutionSeconds) * time.Second
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	tickCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	tickStart := time.Now()
	checks := s.registry.ForBot(s.bot)
	results := s.runChecks(tickCtx, checks)

	status, breakerFailed := summarizeResults(results)
	breaker = s.applyBreakerTransition(breaker, !breakerFailed)
	if err := s.db.SetCircuitBreaker(breaker); err != nil {
		logger.WarnCF("heartbeat", "failed to persist circuit breaker", map[string]interface{}{"bot": s.bot, "error": err.Error()})
	}
	s.metrics.RecordHeartbeatTick(s.bot, status, time.Since(tickStart))
	s.metrics.SetBreakerOpen(s.bot, breaker.State == "open")

	persisted := make([]store.CheckResult, len(results))
	for i, r := range results {
		persisted[i] = store.CheckResult{CheckName: r.CheckName, Passed: r.Success, Message: r.Message, DurationMS: r.DurationMS, Attempts: 1}
	}
	if err := s.db.FinishTick(tickID, status, persisted); err != nil {
		logger.WarnCF("heartbeat", "failed to finish tick", map[string]interface{}{"bot": s.bot, "error": err.Error()})
	}
	return results
}

func (s *Service) runChecks(ctx context.Context, checks []CheckDefinition) []CheckResult {
	if s.cfg.ParallelChecks {
		return s.runParallel(ctx, checks)
	}
	return s.runSequential(ctx, checks)
}

func (s *Service) runSequential(ctx context.Context, checks []CheckDefinition) []CheckResult {
	var results []CheckResult
	for _, def := range checks {
		r := s.runWithRetries(ctx, def)
		results = append(results, r)
		if !r.Success && s.cfg.StopOnFirstFailure {
			break
		}
	}
	return results
}

func (s *Service) runParallel(ctx context.Context, checks []CheckDefinition) []CheckResult {
	max := s.cfg.MaxConcurrentChecks
	if max <= 0 {
		max = len(checks)
	}
	sem := make(chan struct{}, max)
	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, def := range checks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, def CheckDefinition) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.runWithRetries(ctx, def)
		}(i, def)
	}
	wg.Wait()
	return results
}

func (s *Service) runWithRetries(ctx context.Context, def CheckDefinition) CheckResult {
	attempts := s.cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}
	delay := time.Duration(s.cfg.RetryDelaySeconds * float64(time.Second))
	backoff := s.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 1
	}

	var result CheckResult
	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(float64(delay) * pow(backoff, attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return timeoutResult(def.Name)
			}
		}
		result = s.runOnce(ctx, def)
		if result.Success {
			return result
		}
	}
	return result
}

func (s *Service) runOnce(ctx context.Context, def CheckDefinition) CheckResult {
	timeout := def.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resultCh := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- CheckResult{CheckName: def.Name, Status: "failed", Success: false, ErrorType: "panic", Err: "check panicked"}
			}
		}()
		r := def.Fn(checkCtx, s.bot, def.Config)
		r.CheckName = def.Name
		if r.Status == "" {
			r.Status = "success"
			r.Success = true
		}
		resultCh <- r
	}()

	select {
	case r := <-resultCh:
		r.StartedAt = start
		r.EndedAt = time.Now()
		r.DurationMS = r.EndedAt.Sub(start).Milliseconds()
		return r
	case <-checkCtx.Done():
		r := timeoutResult(def.Name)
		r.StartedAt = start
		r.EndedAt = time.Now()
		r.DurationMS = r.EndedAt.Sub(start).Milliseconds()
		return r
	}
}

func timeoutResult(name string) CheckResult {
	return CheckResult{CheckName: name, Status: "timeout", Success: false, Message: "check timed out"}
}

func summarizeResults(results []CheckResult) (status string, anyFailed bool) {
	if len(results) == 0 {
		return "ok", false
	}
	allFailed := true
	for _, r := range results {
		if r.Success {
			allFailed = false
		} else {
			anyFailed = true
		}
	}
	switch {
	case !anyFailed:
		return "ok", false
	case allFailed:
		return "failed", true
	default:
		return "degraded", true
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
