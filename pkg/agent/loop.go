package agent

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/crewcore/crew/pkg/bus"
	"github.com/crewcore/crew/pkg/config"
	"github.com/crewcore/crew/pkg/constants"
	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/memory"
	"github.com/crewcore/crew/pkg/metrics"
	"github.com/crewcore/crew/pkg/providers"
	"github.com/crewcore/crew/pkg/rolecard"
	"github.com/crewcore/crew/pkg/router"
	"github.com/crewcore/crew/pkg/session"
	"github.com/crewcore/crew/pkg/store"
	"github.com/crewcore/crew/pkg/tools"
	"github.com/crewcore/crew/pkg/tracing"
	"github.com/crewcore/crew/pkg/utils"
	"github.com/crewcore/crew/pkg/worklog"
)

// ToolOutputStore is the subset of pkg/store's capability surface the tool
// loop needs to externalize an oversized tool result (spec §4.9 step 6c).
type ToolOutputStore interface {
	PutToolOutput(o store.ToolOutput) (string, error)
}

var _ ToolOutputStore = (*store.Store)(nil)

var defaultSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
}

// Deps are the AgentLoop's constructor dependencies: every collaborator is
// injected (spec §9 arena-style ownership — the AgentLoop holds handles,
// never the underlying rows).
type Deps struct {
	Bot                 string
	Provider            providers.LLMProvider
	AgentConfig         config.AgentConfig
	ToolOutputConfig    config.ToolOutputConfig
	SessionCompaction   config.SessionCompaction
	EmergencyCompaction config.EmergencyCompaction
	MaxContextTokens    int

	Tools     *tools.Registry
	Assembler *Assembler
	SessionDB session.Store
	ToolOut   ToolOutputStore
	WorkLog   *worklog.WorkLog
	Enforcer  *rolecard.Enforcer
	Memory    *memory.Memory
	Router    *router.Router
	Bus       *bus.MessageBus
	Metrics   *metrics.Registry

	// SecretPatterns overrides the default intake-sanitization patterns
	// (spec §4.9 step 1: "configurable patterns").
	SecretPatterns []*regexp.Regexp
}

// AgentLoop is the per-bot single-conversation orchestrator (spec §4.9,
// L12): it owns no rows of its own, only handles onto the shared Session,
// WorkLog, Memory, and MessageBus.
type AgentLoop struct {
	bot      string
	provider providers.LLMProvider
	agentCfg config.AgentConfig
	toolCfg  config.ToolOutputConfig
	maxCtx   int

	tools     *tools.Registry
	assembler *Assembler
	sessionDB session.Store
	toolOut   ToolOutputStore
	worklog   *worklog.WorkLog
	enforcer  *rolecard.Enforcer
	mem       *memory.Memory
	router    *router.Router
	bus       *bus.MessageBus
	metrics   *metrics.Registry
	compactor *session.Compactor

	secretPatterns []*regexp.Regexp

	mu                sync.Mutex
	compactionsBySess map[string]int
}

// New builds an AgentLoop, wiring its own Compactor from d's compaction
// config and the provider it was given (the summarizer and pre-compaction
// hook are bound to this bot's model, so the Compactor can't be shared
// across bots the way Memory or WorkLog are).
func New(d Deps) *AgentLoop {
	patterns := d.SecretPatterns
	if patterns == nil {
		patterns = defaultSecretPatterns
	}

	a := &AgentLoop{
		bot:               d.Bot,
		provider:          d.Provider,
		agentCfg:          d.AgentConfig,
		toolCfg:           d.ToolOutputConfig,
		maxCtx:            d.MaxContextTokens,
		tools:             d.Tools,
		assembler:         d.Assembler,
		sessionDB:         d.SessionDB,
		toolOut:           d.ToolOut,
		worklog:           d.WorkLog,
		enforcer:          d.Enforcer,
		mem:               d.Memory,
		router:            d.Router,
		bus:               d.Bus,
		metrics:           d.Metrics,
		secretPatterns:    patterns,
		compactionsBySess: map[string]int{},
	}

	summarize := func(ctx context.Context, msgs []providers.Message) (string, error) {
		prompt := providers.Message{Role: "system", Content: "Summarize the following conversation chunk concisely, preserving key facts, decisions, and open questions."}
		resp, err := a.provider.Chat(ctx, append([]providers.Message{prompt}, msgs...), nil, a.provider.GetDefaultModel(), nil)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
	preHook := func(ctx context.Context, sessionKey string) error {
		logger.DebugCF("agent", "compaction pre-hook", map[string]interface{}{"bot": a.bot, "session_key": sessionKey})
		return nil
	}
	a.compactor = session.NewCompactor(d.SessionCompaction, d.EmergencyCompaction, summarize, preHook)

	return a
}

// RunTask runs task-and-context as a one-shot synthetic conversation turn
// and returns the final content, matching invoker.Task's signature so a
// Crew can wire this bot as the target of a BotInvoker invocation (spec
// §4.8) without a dedicated session-less code path.
func (a *AgentLoop) RunTask(ctx context.Context, bot, task, taskContext string) (string, error) {
	content := task
	if taskContext != "" {
		content = fmt.Sprintf("%s\n\nContext: %s", task, taskContext)
	}
	sessionKey := fmt.Sprintf("invoke:%s:%s", a.bot, bot)
	room := RoomContext{ID: "invoke", Kind: "direct"}
	final, _, err := a.turn(ctx, constants.ChannelInvoker, bot, sessionKey, room, content, nil)
	return final, err
}

// RunCLITurn runs one synchronous turn for the `crew agent` CLI command: the
// reply is returned directly instead of going through the MessageBus, since
// constants.ChannelCLI is an internal channel emitOutbound never publishes
// for (spec §4.9 step 9 applies only to external channels).
func (a *AgentLoop) RunCLITurn(ctx context.Context, sessionKey string, room RoomContext, content string) (string, error) {
	final, _, err := a.turn(ctx, constants.ChannelCLI, sessionKey, sessionKey, room, content, nil)
	return final, err
}

// ProcessMessage runs the full nine-step procedure for one inbound or
// system envelope (spec §4.9). room is the caller-resolved room context for
// env's (channel, chat_id) — the AgentLoop itself holds no room state
// beyond what it's handed per call.
func (a *AgentLoop) ProcessMessage(ctx context.Context, env bus.Envelope, room RoomContext) error {
	content := env.Content.Text
	if env.Kind == constants.KindSystem {
		content = fmt.Sprintf("[background task by %s completed]\n%s", env.SenderID, content)
	} else {
		content = sanitize(content, a.secretPatterns)
	}

	final, tokensUsed, err := a.turn(ctx, env.Channel, env.ChatID, env.SessionKey, room, content, env.Metadata)
	if err != nil {
		return err
	}
	extra := a.ContextUsageMetadata(env.SessionKey, tokensUsed)
	return a.emitOutbound(ctx, env.Channel, env.ChatID, final, extra)
}

// turn runs steps 2-8 of the procedure and returns the final content and
// the tokens the final model call used; the caller (ProcessMessage) is
// responsible for step 9 (emit).
func (a *AgentLoop) turn(ctx context.Context, channel, chatID, sessionKey string, room RoomContext, content string, metadata map[string]string) (final string, tokensUsed int, err error) {
	ctx, span := tracing.StartTurn(ctx, a.bot, sessionKey)
	defer span.End()

	a.configureTools(channel, chatID, metadata)

	sess := session.GetOrCreate(a.sessionDB, sessionKey)

	memCtx, err := a.mem.Recall(ctx, content, a.memoryRecallLimit(), a.bot)
	if err != nil {
		logger.WarnCF("agent", "memory recall failed", map[string]interface{}{"bot": a.bot, "error": err.Error()})
		memCtx = ""
	}

	systemPrompt, err := a.assembler.BuildSystemPrompt(a.bot, room)
	if err != nil {
		return "", 0, fmt.Errorf("build system prompt: %w", err)
	}

	history, err := sess.History()
	if err != nil {
		return "", 0, fmt.Errorf("load session history: %w", err)
	}

	userMsg := providers.Message{Role: "user", Content: content, BotName: a.bot}
	messages := a.assembler.Assemble(systemPrompt, memCtx, history, userMsg)

	_, model := a.router.Select(ctx, content)

	workSessionID, err := a.worklog.StartSession(sessionKey, content, room.ID, a.bot, room.Participants)
	if err != nil {
		return "", 0, fmt.Errorf("start work session: %w", err)
	}

	var finalContent string
	var toolErr error
	finalContent, tokensUsed, toolErr = a.runToolLoop(ctx, workSessionID, sessionKey, channel, chatID, messages, model)
	if toolErr != nil {
		a.worklog.Log(workSessionID, store.LogEntry{
			Level: "error", Category: "provider", BotName: a.bot, Message: toolErr.Error(),
		})
		if endErr := a.worklog.EndSession(workSessionID); endErr != nil {
			logger.WarnCF("agent", "failed to end work session after provider error", map[string]interface{}{"session_id": workSessionID, "error": endErr.Error()})
		}
		return "Sorry, I hit a problem talking to the model. Please try again in a moment.", 0, nil
	}

	if a.compactor.ShouldCompact(tokensUsed, a.maxCtx) {
		emergency := a.compactor.IsEmergency(tokensUsed, a.maxCtx)
		if err := a.compactor.Compact(ctx, sess, tokensUsed, a.maxCtx, emergency); err != nil {
			logger.WarnCF("agent", "compaction failed", map[string]interface{}{"bot": a.bot, "session_key": sessionKey, "error": err.Error()})
		} else {
			a.mu.Lock()
			a.compactionsBySess[sessionKey]++
			a.mu.Unlock()
		}
	}

	if err := sess.Append(userMsg); err != nil {
		return "", 0, fmt.Errorf("persist user message: %w", err)
	}
	if err := sess.Append(providers.Message{Role: "assistant", Content: finalContent, BotName: a.bot}); err != nil {
		return "", 0, fmt.Errorf("persist assistant message: %w", err)
	}

	go a.mem.Extractor.ExtractAndConsolidate(context.Background(), content, finalContent, sessionKey, a.bot, memory.KnowledgeOpts{SourceType: "conversation"})
	a.mem.Vectors.IndexConversation(ctx, sessionKey, channel, chatID, a.bot, content, finalContent)

	if err := a.worklog.EndSession(workSessionID); err != nil {
		logger.WarnCF("agent", "failed to end work session", map[string]interface{}{"session_id": workSessionID, "error": err.Error()})
	}

	return finalContent, tokensUsed, nil
}

func (a *AgentLoop) memoryRecallLimit() int {
	if a.agentCfg.MemoryRecallLimit > 0 {
		return a.agentCfg.MemoryRecallLimit
	}
	return 5
}

// emitOutbound publishes the final content with the context-usage metadata
// block spec §4.9 step 9 names.
func (a *AgentLoop) emitOutbound(ctx context.Context, channel, chatID, content string, extra map[string]string) error {
	env := bus.NewEnvelope(constants.KindOutbound, channel, chatID, a.bot, content)
	env.Metadata = extra
	if constants.IsInternalChannel(channel) {
		return nil
	}
	return a.bus.Publish(ctx, env)
}

func (a *AgentLoop) configureTools(channel, chatID string, metadata map[string]string) {
	if t, ok := a.tools.Get("message"); ok {
		if mt, ok := t.(*tools.MessageTool); ok {
			mt.SetContext(channel, chatID)
			mt.SetMetadata(metadata)
		}
	}
	if t, ok := a.tools.Get("invoke_bot"); ok {
		if ib, ok := t.(*tools.InvokeBotTool); ok {
			ib.SetOrigin(channel, chatID)
		}
	}
}

// runToolLoop implements spec §4.9 step 6: up to max_iterations rounds of
// ModelProvider calls, executing every requested tool call in between.
func (a *AgentLoop) runToolLoop(ctx context.Context, workSessionID, sessionKey, channel, chatID string, messages []providers.Message, model string) (string, int, error) {
	toolDefs := a.toolDefinitions()
	maxIter := a.agentCfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}

	tokensUsed := 0
	for i := 0; i < maxIter; i++ {
		resp, err := a.callProvider(ctx, messages, toolDefs, model)
		if err != nil {
			return "", tokensUsed, err
		}
		if resp.Usage != nil {
			tokensUsed = resp.Usage.TotalTokens
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, tokensUsed, nil
		}

		messages = append(messages, providers.Message{
			Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls, BotName: a.bot,
		})

		for _, tc := range resp.ToolCalls {
			result, status, durationMS := a.runOneTool(ctx, tc)

			toolContent := result.ForLLM
			if a.toolCfg.Enabled && len(toolContent) > a.toolCfg.MaxToolOutputChars && a.toolCfg.MaxToolOutputChars > 0 {
				summary := utils.Truncate(toolContent, 200)
				ref, putErr := a.toolOut.PutToolOutput(store.ToolOutput{
					ToolName: tc.Name, FullOutput: toolContent, ContextSummary: summary, SessionKey: sessionKey,
				})
				if putErr == nil {
					toolContent = fmt.Sprintf("ref://%s (%d chars; %s)", ref, len(result.ForLLM), summary)
					a.metrics.RecordToolOutputBytes(tc.Name, len(result.ForLLM))
				} else {
					logger.WarnCF("agent", "failed to externalize tool output", map[string]interface{}{"tool": tc.Name, "error": putErr.Error()})
				}
			}

			messages = append(messages, providers.Message{
				Role: "tool", Content: toolContent, ToolCallID: tc.ID, BotName: a.bot,
			})

			d := durationMS
			a.worklog.Log(workSessionID, store.LogEntry{
				Level: "tool_call", Category: "tool", BotName: a.bot,
				ToolName: tc.Name, ToolInput: fmt.Sprintf("%v", tc.Arguments),
				ToolOutput: utils.Truncate(result.ForLLM, 500), ToolStatus: status,
				DurationMS: &d,
			})

			if !result.Silent && result.ForUser != "" {
				if err := a.emitOutbound(ctx, channel, chatID, result.ForUser, nil); err != nil {
					logger.WarnCF("agent", "failed to publish tool side-effect message", map[string]interface{}{"tool": tc.Name, "error": err.Error()})
				}
			}
		}
	}

	return "", tokensUsed, fmt.Errorf("exceeded max_iterations (%d) without a final response", maxIter)
}

// runOneTool executes a single requested tool call, enforcing the role
// card's hard bans first for any tool that declares a side effect (spec
// §4.9 step 6a).
func (a *AgentLoop) runOneTool(ctx context.Context, tc providers.ToolCall) (*tools.ToolResult, string, int64) {
	start := time.Now()
	tool, ok := a.tools.Get(tc.Name)
	if !ok {
		return tools.ErrorResult(fmt.Sprintf("unknown tool %q", tc.Name)), "error", time.Since(start).Milliseconds()
	}

	if se, ok := tool.(tools.SideEffect); ok {
		action := se.ActionDescription(tc.Arguments)
		allowed, violation := a.enforcer.CheckAction(a.bot, action)
		if !allowed {
			return tools.ErrorResult(fmt.Sprintf("action banned by role card: %s", violation)), "denied", time.Since(start).Milliseconds()
		}
	}

	toolCtx := ctx
	if a.agentCfg.ToolTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, time.Duration(a.agentCfg.ToolTimeoutSeconds)*time.Second)
		defer cancel()
	}

	result := tool.Execute(toolCtx, tc.Arguments)
	status := "ok"
	if result.IsError {
		status = "error"
	}
	return result, status, time.Since(start).Milliseconds()
}

// callProvider calls the ModelProvider with bounded retry and per-call
// deadlines (spec §4.9 error semantics, §5 cancellation & timeouts).
func (a *AgentLoop) callProvider(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, model string) (*providers.LLMResponse, error) {
	attempts := a.agentCfg.ProviderRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := a.agentCfg.ProviderRetryBackoffSeconds
	if backoff <= 0 {
		backoff = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if a.agentCfg.ProviderTimeoutSeconds > 0 {
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(a.agentCfg.ProviderTimeoutSeconds)*time.Second)
		}
		resp, err := a.provider.Chat(callCtx, messages, toolDefs, model, nil)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if i < attempts-1 {
			wait := time.Duration(backoff*math.Pow(2, float64(i))*float64(time.Second))
			logger.WarnCF("agent", "provider call failed, retrying", map[string]interface{}{
				"bot": a.bot, "attempt": i + 1, "wait_ms": wait.Milliseconds(), "error": err.Error(),
			})
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("provider call failed after %d attempts: %w", attempts, lastErr)
}

func (a *AgentLoop) toolDefinitions() []providers.ToolDefinition {
	all := a.tools.All()
	defs := make([]providers.ToolDefinition, 0, len(all))
	for _, t := range all {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name: t.Name(), Description: t.Description(), Parameters: t.Parameters(),
			},
		})
	}
	return defs
}

// CompactionsForSession reports how many compactions have run against
// sessionKey in this process's lifetime, for the emit-step metadata block
// (spec §4.9 step 9: compactions_this_session).
func (a *AgentLoop) CompactionsForSession(sessionKey string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.compactionsBySess[sessionKey]
}

// ForceCompact runs a compaction pass against sessionKey immediately,
// regardless of its current token usage — the `session compact` CLI
// command's entry point.
func (a *AgentLoop) ForceCompact(ctx context.Context, sessionKey string) error {
	sess := session.GetOrCreate(a.sessionDB, sessionKey)
	if err := a.compactor.Compact(ctx, sess, a.maxCtx, a.maxCtx, false); err != nil {
		return err
	}
	a.mu.Lock()
	a.compactionsBySess[sessionKey]++
	a.mu.Unlock()
	return nil
}

// ContextUsageMetadata renders the step-9 metadata block for content that
// used tokensUsed out of the bot's configured context window.
func (a *AgentLoop) ContextUsageMetadata(sessionKey string, tokensUsed int) map[string]string {
	usage := 0.0
	if a.maxCtx > 0 {
		usage = float64(tokensUsed) / float64(a.maxCtx)
	}
	return map[string]string{
		"context_usage":           fmt.Sprintf("%.4f", usage),
		"tokens_used":             strconv.Itoa(tokensUsed),
		"tokens_remaining":        strconv.Itoa(a.maxCtx - tokensUsed),
		"compactions_this_session": strconv.Itoa(a.CompactionsForSession(sessionKey)),
	}
}

func sanitize(content string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		content = p.ReplaceAllString(content, "[REDACTED]")
	}
	return content
}
