package llm

import "context"

// Client is the interface every chat-model provider implements.
type Client interface {
	// Complete sends req and returns the generated reply text.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Ping checks that the provider is reachable.
	Ping(ctx context.Context) error
}
