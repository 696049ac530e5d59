// Package llm is the client for the upstream generation service. The engine
// treats the service as opaque: an ordered list of role-tagged messages plus
// an optional system instruction goes in, a token stream or an error comes
// out.
package llm

import "context"

// Message is one role-tagged entry of the prompt history.
type Message struct {
	Role    string
	Content string
}

// Service is what the API layer depends on; tests substitute a fake.
type Service interface {
	// Complete runs a blocking, non-streamed generation.
	Complete(ctx context.Context, model, system string, messages []Message) (string, error)
	// Stream runs a streamed generation, invoking onChunk for every piece
	// of text in arrival order. A non-nil return from onChunk aborts the
	// stream.
	Stream(ctx context.Context, model, system string, messages []Message, onChunk func(string) error) error
	// CountTokens returns the token count the model would see for the
	// given history.
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)
}

// UpstreamError marks a failure of the generation service, including
// mid-stream drops.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "upstream: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
