package ports

import (
	"context"

	"github.com/bnema/agent-chat-cli/internal/domain"
)

// LogStore owns the append-only conversation log and the companion session
// metadata document. Implementations are single-writer: at most one process
// owns the backing files at a time.
type LogStore interface {
	// EnsureInitialized creates the backing directory and an empty log file
	// if absent. Idempotent.
	EnsureInitialized(ctx context.Context) error

	// AppendEntries serializes the batch as JSON lines and appends it in a
	// single write. Rotation happens before the append when the log has
	// crossed its size threshold.
	AppendEntries(ctx context.Context, entries []domain.Entry) error

	// ReadAll returns the entries of the current main log file in append
	// order. Lines that fail to parse are skipped, never fatal.
	ReadAll(ctx context.Context) ([]domain.Entry, error)

	// CorruptLines reports how many log lines have been skipped as
	// unparseable since this store was opened.
	CorruptLines() int64

	LoadSessions(ctx context.Context) (map[string]domain.Session, error)
	SaveSessions(ctx context.Context, sessions map[string]domain.Session) error
}
