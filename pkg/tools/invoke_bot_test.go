package tools

import (
	"context"
	"testing"
)

func TestInvokeBotTool_Execute_Success(t *testing.T) {
	var gotBot, gotTask, gotCtx, gotChannel, gotChatID string
	tool := NewInvokeBotTool(func(ctx context.Context, bot, task, taskContext, originChannel, originChatID string) string {
		gotBot, gotTask, gotCtx, gotChannel, gotChatID = bot, task, taskContext, originChannel, originChatID
		return "@researcher is on it…"
	}, []string{"researcher", "coder"})
	tool.SetOrigin("cli", "u1")

	result := tool.Execute(context.Background(), map[string]interface{}{
		"bot": "researcher", "task": "summarize the paper", "context": "saved yesterday",
	})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", result.ForLLM)
	}
	if gotBot != "researcher" || gotTask != "summarize the paper" || gotCtx != "saved yesterday" {
		t.Errorf("unexpected invoke args: bot=%s task=%s context=%s", gotBot, gotTask, gotCtx)
	}
	if gotChannel != "cli" || gotChatID != "u1" {
		t.Errorf("expected origin to be forwarded, got channel=%s chat_id=%s", gotChannel, gotChatID)
	}
	if result.ForLLM != "@researcher is on it…" || result.ForUser != "@researcher is on it…" {
		t.Errorf("expected ack text in both ForLLM and ForUser, got %+v", result)
	}
}

func TestInvokeBotTool_Execute_MissingArgs(t *testing.T) {
	tool := NewInvokeBotTool(func(ctx context.Context, bot, task, taskContext, originChannel, originChatID string) string {
		return "ack"
	}, nil)

	result := tool.Execute(context.Background(), map[string]interface{}{"bot": "researcher"})
	if !result.IsError {
		t.Error("expected error when task is missing")
	}
}

func TestInvokeBotTool_Execute_NotConfigured(t *testing.T) {
	tool := NewInvokeBotTool(nil, nil)
	result := tool.Execute(context.Background(), map[string]interface{}{"bot": "researcher", "task": "x"})
	if !result.IsError {
		t.Error("expected error when invoke is not configured")
	}
}

func TestInvokeBotTool_ActionDescription(t *testing.T) {
	tool := NewInvokeBotTool(nil, nil)
	desc := tool.ActionDescription(map[string]interface{}{"bot": "coder"})
	if desc != "invoke bot coder" {
		t.Errorf("expected action description to name the bot, got %q", desc)
	}
}
