package llm

import "context"

// Context is the provider-agnostic conversation input. Messages follow the
// chat-completion shape: {"role": ..., "content": ...}.
type Context struct {
	Messages []map[string]any
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is one dialogue-engine reply.
type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// Adapter wraps one external dialogue engine. Implementations translate
// Context to the provider wire format and back; retry lives with the
// caller, not the adapter.
type Adapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Name() string
}

// SystemMessage builds a system-role message map.
func SystemMessage(content string) map[string]any {
	return map[string]any{"role": "system", "content": content}
}

// UserMessage builds a user-role message map.
func UserMessage(content string) map[string]any {
	return map[string]any{"role": "user", "content": content}
}

// AssistantMessage builds an assistant-role message map.
func AssistantMessage(content string) map[string]any {
	return map[string]any{"role": "assistant", "content": content}
}
