// Package llm provides the chat-model capability: a single
// synchronous completion call from a system prompt plus the
// incoming message body to reply text (spec.md §6). Unlike the
// multi-turn, tool-calling client this package was adapted from,
// bots here never call tools and never stream — the pipeline needs
// exactly one request/response round trip per reply.
package llm

// Request is a single completion request.
type Request struct {
	Model        string
	SystemPrompt string
	Input        string

	// Params is opaque per-provider configuration (temperature,
	// max_tokens, etc.) forwarded verbatim from mail.Bot.ChatModelParams.
	Params map[string]any
}

// Response is the unified response from any provider.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}
