// Package tools is the tool contract used by the AgentLoop's tool loop
// (spec §4.9 step 6): a Tool interface, a ToolResult carrying separate
// user-facing and model-facing text, and a name-keyed ToolRegistry.
package tools

import "context"

// ToolResult is what a Tool.Execute call returns. ForLLM is always fed back
// to the model as the tool_result content; ForUser, when non-empty and
// Silent is false, is also sent to the user immediately rather than waiting
// for the model's final response (spec §4.9: some tool effects, like
// sending a message, are user-visible the moment they happen).
type ToolResult struct {
	ForLLM  string
	ForUser string
	Silent  bool
	IsError bool
	Err     error
}

// SilentResult builds a ToolResult visible only to the model.
func SilentResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, Silent: true}
}

// ErrorResult builds a failed ToolResult. The tool loop injects this as the
// tool_result content and continues rather than aborting (spec §4.9 error
// semantics: "tool failures ... the loop continues so the model can respond
// to the failure").
func ErrorResult(message string) *ToolResult {
	return &ToolResult{ForLLM: message, IsError: true}
}

// Tool is one callable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// SideEffect is implemented by tools whose description names a side effect
// that must be checked against a bot's role card before execution (spec
// §4.9 step 6a: "call RoleCardEnforcer.check_action"). Tools that don't
// implement it are assumed side-effect free.
type SideEffect interface {
	ActionDescription(args map[string]interface{}) string
}

// Registry is the name-keyed set of tools available to an AgentLoop.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool, keyed by its Name(). Registering the same name
// twice replaces the earlier entry without changing its position.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
