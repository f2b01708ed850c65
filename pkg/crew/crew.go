// Package crew is the root orchestrator: it builds every L1-L12 component
// from one config.Config, wires them together, and runs the single inbound
// consumption loop that ties the MessageBus to the Dispatcher and each bot's
// AgentLoop (spec §4.1, §4.8, §4.9, §9).
package crew

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/crewcore/crew/pkg/agent"
	"github.com/crewcore/crew/pkg/bus"
	"github.com/crewcore/crew/pkg/config"
	"github.com/crewcore/crew/pkg/constants"
	"github.com/crewcore/crew/pkg/cron"
	"github.com/crewcore/crew/pkg/dispatch"
	"github.com/crewcore/crew/pkg/heartbeat"
	"github.com/crewcore/crew/pkg/invoker"
	"github.com/crewcore/crew/pkg/learning"
	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/mcp"
	"github.com/crewcore/crew/pkg/memory"
	"github.com/crewcore/crew/pkg/metrics"
	"github.com/crewcore/crew/pkg/providers"
	"github.com/crewcore/crew/pkg/rolecard"
	"github.com/crewcore/crew/pkg/roster"
	"github.com/crewcore/crew/pkg/router"
	"github.com/crewcore/crew/pkg/store"
	"github.com/crewcore/crew/pkg/tools"
	"github.com/crewcore/crew/pkg/worklog"
)

// Crew owns every shared collaborator plus one AgentLoop per configured bot
// (spec §9: the arena holds state, every component holds only handles).
type Crew struct {
	cfg config.Config
	db  *store.Store
	bus *bus.MessageBus

	roster     *roster.Roster
	cards      *rolecard.Registry
	enforcer   *rolecard.Enforcer
	mem        *memory.Memory
	worklog    *worklog.WorkLog
	exchange   *learning.Exchange
	invoker    *invoker.Invoker
	mcpMgr     *mcp.MCPManager
	metrics    *metrics.Registry
	cron       *cron.Scheduler
	heartbeats *heartbeat.Manager

	loops map[string]*agent.AgentLoop
}

// roomsAdapter exposes *store.Store as learning.Rooms.
type roomsAdapter struct{ db *store.Store }

func (a roomsAdapter) GetRoom(id string) (learning.RoomInfo, bool) {
	r, ok, err := a.db.GetRoom(id)
	if err != nil || !ok {
		return learning.RoomInfo{}, false
	}
	return learning.RoomInfo{ID: r.ID, Kind: r.Kind, Participants: r.Participants}, true
}

// changeStoreAdapter exposes *store.Store as rolecard.ChangeStore without
// pkg/store importing pkg/rolecard's ProposedChange type.
type changeStoreAdapter struct{ db *store.Store }

func (a changeStoreAdapter) SaveProposal(p rolecard.ProposedChange) (string, error) {
	return a.db.SaveRoleCardProposal(p.Bot, p.Diff, p.Rationale)
}

// New builds a Crew from cfg: opens the durable store, the vector memory
// index, the provider stack, and one AgentLoop per configured bot.
func New(cfg config.Config) (*Crew, error) {
	db, err := store.Open(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}

	metricsReg := metrics.NewRegistry()
	messageBus := bus.New(bus.DefaultOptions())
	rosterInstance := roster.New(cfg.Workspace, cfg.Bots)
	cards := rolecard.NewRegistry(cfg.Workspace, map[string]rolecard.RoleCard{})
	if err := cards.Watch(); err != nil {
		logger.WarnCF("crew", "role card hot-reload unavailable", map[string]interface{}{"error": err.Error()})
	}
	enforcer := rolecard.NewEnforcer(cards, changeStoreAdapter{db: db}, 0) // 0 selects the enforcer's default escalation floor

	embedFn := chromem.EmbeddingFunc(func(ctx context.Context, text string) ([]float32, error) {
		oa, ok := provider.(*providers.OpenAIProvider)
		if !ok {
			return nil, fmt.Errorf("no embedding-capable provider configured")
		}
		vecs, err := oa.Embed(ctx, []string{text})
		if err != nil || len(vecs) == 0 {
			return nil, err
		}
		return vecs[0], nil
	})
	vectors, err := memory.NewVectorStore(cfg.Workspace, embedFn)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	extractor := memory.NewKnowledgeExtractor(provider, provider.GetDefaultModel(), vectors, memory.EventSinkFor(db))
	mem := memory.NewMemory(vectors, db, extractor)

	exchange := learning.New(db, roomsAdapter{db: db}, cfg.LearningEx.MinConfidence, cfg.LearningEx.ShareableCategories, cfg.LearningEx.AutoApprove)
	promote := func(entry store.LogEntry) {
		if _, err := exchange.MaybePromote(entry.BotName, entry.Category, entry.Category, entry.Message, confidenceOf(entry), "", nil); err != nil {
			logger.WarnCF("crew", "failed to promote shareable work-log entry", map[string]interface{}{"error": err.Error()})
		}
	}
	wl := worklog.New(db, cfg.Memory.PromotionThreshold, promote)

	mcpMgr := mcp.NewMCPManager()
	mcpMgr.StartFromConfig(cfg.MCPServers)

	c := &Crew{
		cfg: cfg, db: db, bus: messageBus,
		roster: rosterInstance, cards: cards, enforcer: enforcer,
		mem: mem, worklog: wl, exchange: exchange, mcpMgr: mcpMgr,
		metrics: metricsReg, loops: map[string]*agent.AgentLoop{},
	}

	c.invoker = invoker.New(messageBus, c.runTask, metricsReg)
	c.cron = cron.NewScheduler(db, messageBus)
	c.heartbeats = heartbeat.NewManager(time.Minute, c.coordinatorWork)

	assembler := agent.NewAssembler(rosterInstance, cards)
	checks := heartbeat.NewCheckRegistry()
	for _, b := range cfg.Bots {
		loop := agent.New(agent.Deps{
			Bot:                 b.Name,
			Provider:            provider,
			AgentConfig:         cfg.Agent,
			ToolOutputConfig:    cfg.Memory.ToolOutputConfig,
			SessionCompaction:   cfg.Memory.SessionCompaction,
			EmergencyCompaction: cfg.Memory.EmergencyCompaction,
			MaxContextTokens:    cfg.Memory.EnhancedContext.MaxContextTokens,
			Tools:               buildToolRegistry(c, b.Name),
			Assembler:           assembler,
			SessionDB:           db,
			ToolOut:             db,
			WorkLog:             wl,
			Enforcer:            enforcer,
			Memory:              mem,
			Router:              routerFor(b, provider),
			Bus:                 messageBus,
			Metrics:             metricsReg,
		})
		c.loops[b.Name] = loop

		svc := heartbeat.NewService(b.Name, b.Heartbeat, checks, db, metricsReg)
		c.heartbeats.Register(b.Name, svc)

		exchange.RegisterBot(b.Name, c.receiveLearning)
	}

	return c, nil
}

// receiveLearning satisfies learning.Receiver: a distributed package becomes
// a learning owned by the receiving bot, recorded through the exchange's
// Adopt (source learning_exchange, relevance 1.0).
func (c *Crew) receiveLearning(bot string, p store.LearningPackage) error {
	return c.exchange.Adopt(bot, p)
}

func confidenceOf(entry store.LogEntry) float64 {
	if entry.Confidence == nil {
		return 0
	}
	return *entry.Confidence
}

// routerFor builds a bot's model-tier router: a bot's configured model (or
// the provider default when unset) serves every tier, since crew doesn't
// require a dedicated per-tier model catalog the way multi-model deployments
// do.
func routerFor(b config.BotConfig, provider providers.LLMProvider) *router.Router {
	model := b.Model
	if model == "" {
		model = provider.GetDefaultModel()
	}
	table := router.ModelTable{
		router.TierSimple:    model,
		router.TierMedium:    model,
		router.TierCoding:    model,
		router.TierComplex:   model,
		router.TierReasoning: model,
	}
	return router.New(table, model, nil)
}

func buildProvider(cfg config.Config) (providers.LLMProvider, error) {
	var primary, fallback providers.LLMProvider
	if cfg.Providers.Anthropic.APIKey != "" {
		primary = providers.NewClaudeProvider(cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		oa := providers.NewOpenAIProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, "gpt-4o-mini")
		if primary == nil {
			primary = oa
		} else {
			fallback = oa
		}
	}
	if cfg.Providers.OpenRouter.APIKey != "" && fallback == nil {
		fallback = providers.NewOpenAIProvider(cfg.Providers.OpenRouter.APIKey, cfg.Providers.OpenRouter.APIBase, "anthropic/claude-3.5-sonnet")
	}
	if primary == nil {
		return nil, fmt.Errorf("no model provider configured: set providers.anthropic.api_key or providers.openai.api_key")
	}
	if fallback == nil {
		return primary, nil
	}
	return providers.NewFallbackProvider(primary, fallback, primary.GetDefaultModel(), fallback.GetDefaultModel()), nil
}

func buildToolRegistry(c *Crew, bot string) *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(tools.NewThinkTool())

	msgTool := tools.NewMessageTool()
	msgTool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		env := bus.NewEnvelope(constants.KindOutbound, channel, chatID, bot, content)
		env.Metadata = metadata
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return c.bus.Publish(ctx, env)
	})
	reg.Register(msgTool)

	knownBots := make([]string, 0, len(c.roster.Bots()))
	for _, b := range c.roster.Bots() {
		knownBots = append(knownBots, b.Name)
	}
	reg.Register(tools.NewInvokeBotTool(c.invoker.Invoke, knownBots))
	reg.Register(tools.NewMemorySearchTool(c.mem.Vectors))

	for server, defs := range c.mcpMgr.AllTools() {
		for _, def := range defs {
			reg.Register(mcp.NewMCPBridgeTool(c.mcpMgr, server, def))
		}
	}
	return reg
}

// RunCLI resolves roomID (or the implicit all-bots room) to its leader bot
// and runs one synchronous turn, for the `crew agent` CLI command.
func (c *Crew) RunCLI(ctx context.Context, roomID, sessionKey, content string) (string, error) {
	var room dispatch.Room
	var roomCtx agent.RoomContext
	if roomID != "" {
		rc, ok := c.lookupRoom(roomID)
		if !ok {
			return "", fmt.Errorf("room %q not found", roomID)
		}
		room = dispatch.Room{ID: rc.ID, Leader: c.leaderOf(rc.Participants), Participants: rc.Participants}
		roomCtx = agent.RoomContext{ID: rc.ID, Kind: rc.Kind, Participants: rc.Participants, CoordinatorMode: rc.CoordinatorMode}
	} else {
		room, roomCtx = c.roomFor("")
	}

	loop, ok := c.loops[room.Leader]
	if !ok {
		return "", fmt.Errorf("no leader bot resolved for room %q", room.ID)
	}
	if sessionKey == "" {
		sessionKey = "cli:" + room.ID
	}
	return loop.RunCLITurn(ctx, sessionKey, roomCtx, content)
}

func (c *Crew) lookupRoom(id string) (config.RoomConfig, bool) {
	for _, rc := range c.cfg.Rooms {
		if rc.ID == id {
			return rc, true
		}
	}
	return config.RoomConfig{}, false
}

// runTask satisfies invoker.Task: it dispatches to the named bot's AgentLoop.
func (c *Crew) runTask(ctx context.Context, bot, task, taskContext string) (string, error) {
	loop, ok := c.loops[bot]
	if !ok {
		return "", fmt.Errorf("unknown bot %q", bot)
	}
	return loop.RunTask(ctx, bot, task, taskContext)
}

func (c *Crew) coordinatorWork(ctx context.Context) error {
	for name, loop := range c.loops {
		bot, ok := c.roster.Bot(name)
		if ok && bot.IsLeader {
			_, err := loop.RunTask(ctx, name, "coordination heartbeat: review open work across rooms", "")
			return err
		}
	}
	return nil
}

func (c *Crew) roomFor(chatID string) (dispatch.Room, agent.RoomContext) {
	for _, rc := range c.cfg.Rooms {
		if rc.ID == chatID {
			return dispatch.Room{ID: rc.ID, Leader: c.leaderOf(rc.Participants), Participants: rc.Participants},
				agent.RoomContext{ID: rc.ID, Kind: rc.Kind, Participants: rc.Participants, CoordinatorMode: rc.CoordinatorMode}
		}
	}
	all := make([]string, 0, len(c.roster.Bots()))
	for _, b := range c.roster.Bots() {
		all = append(all, b.Name)
	}
	leader := c.leaderOf(all)
	return dispatch.Room{ID: "default", Leader: leader, Participants: all},
		agent.RoomContext{ID: "default", Kind: "open", Participants: all}
}

func (c *Crew) leaderOf(participants []string) string {
	for _, p := range participants {
		if b, ok := c.roster.Bot(p); ok && b.IsLeader {
			return p
		}
	}
	if len(participants) > 0 {
		return participants[0]
	}
	return ""
}

// Run drains inbound envelopes until ctx is cancelled: each resolves to a
// Dispatch decision, the primary bot runs inline, secondaries run as
// fire-and-forget invocations (spec §4.8).
func (c *Crew) Run(ctx context.Context) error {
	c.heartbeats.StartAll(ctx)
	go c.cron.Run(ctx)
	go c.runLearningCycle(ctx)

	for {
		lease, ok := c.bus.Next(ctx, constants.KindInbound)
		if !ok {
			return ctx.Err()
		}
		c.metrics.SetBusDepth("inbound", c.bus.Depth(constants.KindInbound))
		c.handleInbound(ctx, lease)
	}
}

func (c *Crew) handleInbound(ctx context.Context, lease bus.Lease) {
	env := lease.Envelope
	defer lease.Ack()

	room, roomCtx := c.roomFor(env.ChatID)
	decision := dispatch.Dispatch(dispatch.Message{Content: env.Content.Text}, &room, false, "", c.roster)
	c.metrics.RecordDispatch(string(decision.Target))

	primary, ok := c.loops[decision.PrimaryBot]
	if !ok {
		logger.WarnCF("crew", "dispatch resolved to unknown bot", map[string]interface{}{"bot": decision.PrimaryBot})
		return
	}
	if err := primary.ProcessMessage(ctx, env, roomCtx); err != nil {
		logger.WarnCF("crew", "agent loop failed", map[string]interface{}{"bot": decision.PrimaryBot, "error": err.Error()})
	}

	for _, bot := range decision.SecondaryBots {
		c.invoker.Invoke(ctx, bot, env.Content.Text, "", env.Channel, env.ChatID)
	}
}

// runLearningCycle periodically distributes queued, approved learning
// packages (spec §4.9: auto-approved packages distribute on the next cycle).
func (c *Crew) runLearningCycle(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.exchange.RunCycle(); err != nil {
				logger.WarnCF("crew", "learning exchange cycle failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// Close releases every held resource.
func (c *Crew) Close() error {
	c.heartbeats.StopAll()
	c.mcpMgr.StopAll()
	if err := c.cards.Close(); err != nil {
		logger.WarnCF("crew", "failed to close role card watcher", map[string]interface{}{"error": err.Error()})
	}
	return c.db.Close()
}

// Store exposes the underlying durable store for CLI read-only commands.
func (c *Crew) Store() *store.Store { return c.db }

// Bus exposes the MessageBus for channel adapters.
func (c *Crew) Bus() *bus.MessageBus { return c.bus }

// MetricsHandler exposes the Prometheus registry's HTTP handler.
func (c *Crew) MetricsHandler() http.Handler { return c.metrics.Handler() }

// Memory exposes the hybrid memory store for CLI search/inspection commands.
func (c *Crew) Memory() *memory.Memory { return c.mem }

// Loop returns the named bot's AgentLoop, for CLI commands that need to act
// on behalf of a specific bot (e.g. session compact).
func (c *Crew) Loop(bot string) (*agent.AgentLoop, bool) {
	loop, ok := c.loops[bot]
	return loop, ok
}

// LeaderFor resolves roomID (or the implicit default room) to its leader
// bot's name, for CLI commands operating on a room without needing a turn.
func (c *Crew) LeaderFor(roomID string) string {
	if roomID != "" {
		if rc, ok := c.lookupRoom(roomID); ok {
			return c.leaderOf(rc.Participants)
		}
	}
	room, _ := c.roomFor("")
	return room.Leader
}
