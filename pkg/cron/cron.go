// Package cron schedules durable, named cron-expression jobs (spec §6
// `cron add`): at each due minute, a job publishes its configured message as
// an inbound envelope onto the MessageBus, same as any other producer.
package cron

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/crewcore/crew/pkg/bus"
	"github.com/crewcore/crew/pkg/constants"
	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/store"
)

// Store is the subset of pkg/store's capability surface the scheduler needs.
type Store interface {
	AllCronJobs() ([]store.CronJob, error)
	MarkCronJobRun(name string, ts time.Time) error
	PutCronJob(j store.CronJob) error
	DeleteCronJob(name string) error
}

var _ Store = (*store.Store)(nil)

// Scheduler polls its job list once a minute and publishes any job whose
// cron expression is due, via gronx's expression evaluator (no separate
// per-job timer goroutines; spec §5's bounded-resource scheduling applies
// equally to cron jobs and heartbeat ticks).
type Scheduler struct {
	db   Store
	bus  *bus.MessageBus
	gx   gronx.Gronx
	tick time.Duration
}

// NewScheduler builds a Scheduler publishing due jobs onto b.
func NewScheduler(db Store, b *bus.MessageBus) *Scheduler {
	return &Scheduler{db: db, bus: b, gx: gronx.New(), tick: time.Minute}
}

// Run polls every tick interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDueJobs(ctx)
		}
	}
}

func (s *Scheduler) runDueJobs(ctx context.Context) {
	jobs, err := s.db.AllCronJobs()
	if err != nil {
		logger.WarnCF("cron", "failed to list cron jobs", map[string]interface{}{"error": err.Error()})
		return
	}
	now := time.Now()
	for _, j := range jobs {
		ref := now
		if loc, err := time.LoadLocation(j.TZ); err == nil {
			ref = now.In(loc)
		}
		due, err := s.gx.IsDue(j.Expr, ref)
		if err != nil {
			logger.WarnCF("cron", "invalid cron expression", map[string]interface{}{"job": j.Name, "expr": j.Expr, "error": err.Error()})
			continue
		}
		if !due {
			continue
		}
		env := bus.NewEnvelope(constants.KindInbound, j.Channel, j.ChatID, "cron:"+j.Name, j.Message)
		if err := s.bus.Publish(ctx, env); err != nil {
			logger.WarnCF("cron", "failed to publish cron job", map[string]interface{}{"job": j.Name, "error": err.Error()})
			continue
		}
		if err := s.db.MarkCronJobRun(j.Name, now); err != nil {
			logger.WarnCF("cron", "failed to stamp cron job run", map[string]interface{}{"job": j.Name, "error": err.Error()})
		}
	}
}

// Add registers (or replaces) a named cron job, validating its expression
// before persisting it.
func (s *Scheduler) Add(j store.CronJob) error {
	if _, err := gronx.NextTick(j.Expr, true); err != nil {
		return err
	}
	return s.db.PutCronJob(j)
}

// Remove deletes a named cron job.
func (s *Scheduler) Remove(name string) error {
	return s.db.DeleteCronJob(name)
}

// List returns every registered cron job.
func (s *Scheduler) List() ([]store.CronJob, error) {
	return s.db.AllCronJobs()
}
