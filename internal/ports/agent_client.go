package ports

import (
	"context"

	"github.com/bnema/agent-chat-cli/internal/domain"
)

// AgentClient opens one streaming exchange with the agent service. The
// returned channel is closed after the terminal done or error event, or
// once ctx is cancelled. Chunks for one exchange arrive in network order.
type AgentClient interface {
	Stream(ctx context.Context, message, sessionID string) (<-chan domain.StreamEvent, error)
}
