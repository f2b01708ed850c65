// Package providers defines the LLM provider contract and the wire types
// used across the crew core (messages, tool calls, responses), plus the
// concrete Anthropic and OpenAI-compatible adapters.
package providers

import "context"

// Message is one turn of a chat history, provider-agnostic.
type Message struct {
	Role       string // system|user|assistant|tool
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
	BotName    string
}

// FunctionCall is the OpenAI-style nested function payload some providers
// emit instead of a flat ToolCall.
type FunctionCall struct {
	Name      string
	Arguments string // raw JSON
}

// ToolCall is a normalized model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
	Function  *FunctionCall
}

// ToolDefinition is a tool's schema as exposed to the model.
type ToolDefinition struct {
	Type     string
	Function ToolFunctionSchema
}

type ToolFunctionSchema struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema: properties, required
}

// UsageInfo carries token accounting for a single completion.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMResponse is a normalized model completion.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *UsageInfo
}

// StreamCallback receives incremental content deltas during a streamed chat.
type StreamCallback func(delta string)

// LLMProvider is the minimal contract every model backend implements.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error)
	GetDefaultModel() string
}

// StreamingProvider is an LLMProvider that can additionally stream content
// deltas as they arrive.
type StreamingProvider interface {
	LLMProvider
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}, onContent StreamCallback) (*LLMResponse, error)
}

// Embedder produces vector embeddings for text, used by the semantic memory
// layer (spec §4.4). An external capability; concrete implementations wrap
// an embedding-capable provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TokenCounter estimates the token count of a rendered message set. An
// external capability: a precise implementation would call the provider's
// own tokenizer. Nothing in crew implements or calls it; the context
// assembler and compactor do their own estimates.
type TokenCounter interface {
	CountTokens(messages []Message) int
}
