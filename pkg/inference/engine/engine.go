package engine

import (
	"context"

	"github.com/go-go-golems/storyteller/pkg/conversation"
)

// Engine is the model collaborator: it turns an ordered sequence of
// messages into a completion. Implementations handle provider-specific
// request shaping for services like OpenAI; the engine core only ever sees
// this interface.
//
// Complete must honor ctx cancellation and classify failures into the
// TransportError / RateLimitError / ModelError taxonomy so callers can
// decide on retry and backoff.
type Engine interface {
	Complete(ctx context.Context, messages conversation.Conversation) (string, error)
}
