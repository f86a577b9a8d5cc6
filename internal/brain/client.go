package brain

import (
	"context"

	"github.com/ent0n29/aria/internal/chat"
)

// EmptyReplyFallback is returned when the model yields an empty completion,
// so a turn always has a visible reply.
const EmptyReplyFallback = "No response from AI"

// Client produces one assistant reply for the full conversation history.
// Implementations apply no internal retries; transient failures surface as
// errors and the turn controller decides the user-facing behavior.
type Client interface {
	Complete(ctx context.Context, history []chat.Message) (string, error)
}
