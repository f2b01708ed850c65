// Package invoker is the BotInvoker (spec §4.8, L11): fire-and-forget
// specialist dispatch. Invoke returns an immediate acknowledgement, runs the
// task in the background, and publishes a system envelope on completion.
package invoker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/bus"
	"github.com/crewcore/crew/pkg/constants"
	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/metrics"
)

// Task is the unit of work a bot runs when invoked: process task with the
// given context and return the result text, or an error.
type Task func(ctx context.Context, bot, task, taskContext string) (string, error)

// Invocation tracks one in-flight or completed invoke call.
type Invocation struct {
	ID            string
	Bot           string
	Task          string
	OriginChannel string
	OriginChatID  string
	StartedAt     time.Time
	EndedAt       time.Time
	Result        string
	Err           error
}

// Invoker runs bot tasks in the background and reports completions back
// onto the MessageBus as system envelopes (spec §4.8: "when that task
// completes, publishes a system envelope {kind: system, referencing:
// invocation_id, content: result_text}").
//
// Ordering guarantee: for a given (channel, chat_id), system envelopes
// announcing invocation results are delivered in completion order, not
// invocation order (spec §4.8) — this falls out naturally here since each
// invocation publishes independently as soon as its own goroutine finishes.
type Invoker struct {
	bus     *bus.MessageBus
	run     Task
	metrics *metrics.Registry

	mu          sync.Mutex
	invocations map[string]*Invocation
}

// New builds an Invoker. run is the bot-dispatch callback (typically
// AgentLoop.RunTask or equivalent); it is injected to avoid pkg/invoker
// importing pkg/agent. m may be nil.
func New(b *bus.MessageBus, run Task, m *metrics.Registry) *Invoker {
	return &Invoker{bus: b, run: run, metrics: m, invocations: map[string]*Invocation{}}
}

// Invoke starts bot on task in the background and returns immediately with
// a human-readable acknowledgement (spec §4.8: "always fire-and-forget").
func (inv *Invoker) Invoke(ctx context.Context, bot, task, taskContext, originChannel, originChatID string) string {
	id := uuid.NewString()
	record := &Invocation{ID: id, Bot: bot, Task: task, OriginChannel: originChannel, OriginChatID: originChatID, StartedAt: time.Now()}

	inv.mu.Lock()
	inv.invocations[id] = record
	inv.mu.Unlock()

	go inv.runInBackground(ctx, id, bot, task, taskContext, originChannel, originChatID)

	return fmt.Sprintf("@%s is on it…", bot)
}

func (inv *Invoker) runInBackground(ctx context.Context, id, bot, task, taskContext, originChannel, originChatID string) {
	result, err := inv.run(ctx, bot, task, taskContext)

	inv.mu.Lock()
	record := inv.invocations[id]
	record.EndedAt = time.Now()
	record.Result = result
	record.Err = err
	inv.mu.Unlock()

	content := result
	outcome := "ok"
	if err != nil {
		content = fmt.Sprintf("invocation failed: %s", err.Error())
		outcome = "error"
		logger.WarnCF("invoker", "background task failed", map[string]interface{}{
			"invocation_id": id, "bot": bot, "error": err.Error(),
		})
	}
	inv.metrics.RecordInvocation(bot, outcome)

	env := bus.NewEnvelope(constants.KindSystem, originChannel, originChatID, bot, content)
	env.ReferencingInvocation = id

	pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := inv.bus.Publish(pubCtx, env); err != nil {
		logger.WarnCF("invoker", "failed to publish invocation result", map[string]interface{}{
			"invocation_id": id, "bot": bot, "error": err.Error(),
		})
	}
}

// Get returns the tracked state of an invocation, if known, looked up by
// invocation_id rather than by positional context (spec §4.8 ordering
// guarantee).
func (inv *Invoker) Get(id string) (*Invocation, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	rec, ok := inv.invocations[id]
	return rec, ok
}
