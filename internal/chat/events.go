// ABOUTME: Stream event types emitted by the orchestrator during one turn
// ABOUTME: Exactly one terminal event (complete or error) ends every stream

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/NEARBuilders/cyborg-gateway/internal/model"
)

// Stream event types
const (
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
)

// StreamEvent is one event in a turn's stream. Zero or more chunk events are
// followed by exactly one terminal event.
type StreamEvent struct {
	Type string
	ID   string
	Data any
}

// ChunkData carries one incremental unit of assistant text
type ChunkData struct {
	Content string `json:"content"`
}

// CompleteData identifies the persisted assistant message ending a turn
type CompleteData struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// ErrorData carries a user-facing failure description
type ErrorData struct {
	Message string `json:"message"`
}

// userFacingMessage maps backend errors to messages safe to surface to clients
func userFacingMessage(err error) string {
	var rateLimit *model.RateLimitError
	var unavailable *model.UnavailableError

	switch {
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, model.ErrNotConfigured):
		return "model backend is not configured"
	case errors.Is(err, model.ErrUnauthorized):
		return "model backend rejected credentials, re-authentication required"
	case errors.As(err, &rateLimit):
		return fmt.Sprintf("model backend rate limited, retry after %.0fs", rateLimit.RetryAfter.Seconds())
	case errors.As(err, &unavailable):
		return fmt.Sprintf("model backend unavailable, retry after %.0fs", unavailable.RetryAfter.Seconds())
	default:
		return "internal error"
	}
}
