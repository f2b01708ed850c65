package tools

import (
	"context"
	"fmt"
)

// InvokeFunc matches invoker.Invoker.Invoke's signature, injected here to
// avoid pkg/tools importing pkg/invoker directly.
type InvokeFunc func(ctx context.Context, bot, task, taskContext, originChannel, originChatID string) string

// InvokeBotTool lets a bot (typically the leader) hand work to another
// registered bot, mirroring spec §4.8's leader-first and direct-mention
// dispatch rules as an explicit in-loop action rather than only an
// envelope-routing decision.
type InvokeBotTool struct {
	invoke        InvokeFunc
	knownBots     []string
	originChannel string
	originChatID  string
}

// NewInvokeBotTool builds the tool. knownBots is used only to render the
// description; invoke does the actual dispatch.
func NewInvokeBotTool(invoke InvokeFunc, knownBots []string) *InvokeBotTool {
	return &InvokeBotTool{invoke: invoke, knownBots: knownBots}
}

func (t *InvokeBotTool) Name() string { return "invoke_bot" }

func (t *InvokeBotTool) Description() string {
	desc := "Hand a task to another bot on the team. Returns immediately with an acknowledgement; the bot's result arrives as a follow-up message once it finishes."
	if len(t.knownBots) > 0 {
		desc += " Known bots: "
		for i, b := range t.knownBots {
			if i > 0 {
				desc += ", "
			}
			desc += b
		}
		desc += "."
	}
	return desc
}

func (t *InvokeBotTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"bot": map[string]interface{}{
				"type":        "string",
				"description": "Name of the bot to invoke",
			},
			"task": map[string]interface{}{
				"type":        "string",
				"description": "The task to hand off",
			},
			"context": map[string]interface{}{
				"type":        "string",
				"description": "Optional extra context for the invoked bot",
			},
		},
		"required": []string{"bot", "task"},
	}
}

// ActionDescription implements SideEffect: invoking another bot is always
// checked against the caller's role card (spec §4.9 step 6a).
func (t *InvokeBotTool) ActionDescription(args map[string]interface{}) string {
	bot, _ := args["bot"].(string)
	return fmt.Sprintf("invoke bot %s", bot)
}

// SetOrigin sets the (channel, chat_id) the invoked bot's completion should
// be published back to.
func (t *InvokeBotTool) SetOrigin(channel, chatID string) {
	t.originChannel = channel
	t.originChatID = chatID
}

func (t *InvokeBotTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	bot, _ := args["bot"].(string)
	task, _ := args["task"].(string)
	taskContext, _ := args["context"].(string)

	if bot == "" || task == "" {
		return ErrorResult("bot and task are required")
	}
	if t.invoke == nil {
		return ErrorResult("bot invocation not configured")
	}

	ack := t.invoke(ctx, bot, task, taskContext, t.originChannel, t.originChatID)
	return &ToolResult{ForLLM: ack, ForUser: ack}
}
