package ports

import (
	"context"

	"github.com/bnema/agent-chat-cli/internal/domain"
)

// MirrorSink is a best-effort secondary destination for drained batches.
// Failures are isolated from the primary write path: they are logged and
// dropped, never retried.
type MirrorSink interface {
	Publish(ctx context.Context, entries []domain.Entry) error
}
