package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/bnema/agent-chat-cli/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const mirrorPublishTimeout = 5 * time.Second

// SearchFilter selects log entries; all set fields apply conjunctively.
type SearchFilter struct {
	SessionID string
	Role      domain.Role
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// Statistics aggregates over all known sessions.
type Statistics struct {
	TotalSessions             int
	TotalMessages             int
	TotalTokens               int
	TotalCost                 float64
	AverageMessagesPerSession float64
	MostActiveSessionID       string
}

// Health is the observability surface for durability failures that are
// never raised out of the message hot path.
type Health struct {
	WriteFailures int64
	PendingWrites int
	CorruptLines  int64
}

// ConversationManager is the facade over the log store and the session
// registry. It owns the single current-session pointer and a single-flight
// write queue: entries are appended to the log in enqueue order, one drain
// in flight at a time.
type ConversationManager struct {
	store    ports.LogStore
	registry *SessionRegistry
	mirror   ports.MirrorSink
	clock    ports.Clock
	logger   *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	current  string
	pending  []domain.Entry
	draining bool

	writeFailures atomic.Int64
}

func NewConversationManager(store ports.LogStore, registry *SessionRegistry, mirror ports.MirrorSink, clock ports.Clock, logger *zap.Logger) *ConversationManager {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &ConversationManager{
		store:    store,
		registry: registry,
		mirror:   mirror,
		clock:    clock,
		logger:   logger,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Init prepares the backing storage. Must be called once before use.
func (m *ConversationManager) Init(ctx context.Context) error {
	if err := m.store.EnsureInitialized(ctx); err != nil {
		return fmt.Errorf("initialize log store: %w", err)
	}
	return nil
}

// StartSession resolves a session via the registry and makes it current.
func (m *ConversationManager) StartSession(ctx context.Context, sessionID string) (string, error) {
	session, err := m.registry.GetOrCreate(ctx, sessionID)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.current = session.SessionID
	m.mu.Unlock()

	return session.SessionID, nil
}

// AddMessage enqueues one entry for the current session, auto-starting a
// session if none is current. It returns once the entry is enqueued, not
// once it is durable; storage failures during the drain are retried and
// surfaced only via Health.
func (m *ConversationManager) AddMessage(ctx context.Context, role domain.Role, content string, meta *domain.EntryMetadata) (string, error) {
	if !domain.ValidRole(role) {
		return "", fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	if err := domain.ValidateMessage(content); err != nil {
		return "", err
	}

	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == "" {
		resolved, err := m.StartSession(ctx, "")
		if err != nil {
			return "", fmt.Errorf("auto-start session: %w", err)
		}
		current = resolved
	}

	return m.enqueue(current, role, content, meta)
}

// AddSessionMessage enqueues one entry for an explicit session, regardless
// of which session is current. Used by the streaming coordinator, whose
// requests may adopt a server-assigned session mid-exchange.
func (m *ConversationManager) AddSessionMessage(ctx context.Context, sessionID string, role domain.Role, content string, meta *domain.EntryMetadata) (string, error) {
	if !domain.ValidRole(role) {
		return "", fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	if err := domain.ValidateMessage(content); err != nil {
		return "", err
	}
	if err := domain.ValidateIdentifier(sessionID); err != nil {
		return "", err
	}
	if sessionID == "" {
		return "", fmt.Errorf("%w: session id is empty", domain.ErrInvalidInput)
	}

	return m.enqueue(sessionID, role, content, meta)
}

func (m *ConversationManager) enqueue(sessionID string, role domain.Role, content string, meta *domain.EntryMetadata) (string, error) {
	m.registry.Ensure(sessionID)

	entry := domain.Entry{
		Timestamp: m.clock.Now(),
		SessionID: sessionID,
		MessageID: uuid.NewString(),
		Role:      role,
		Content:   content,
		Metadata:  meta,
	}

	m.mu.Lock()
	m.pending = append(m.pending, entry)
	m.triggerDrainLocked()
	m.mu.Unlock()

	return entry.MessageID, nil
}

// triggerDrainLocked starts a drain pass unless one is already in flight.
// Callers must hold m.mu.
func (m *ConversationManager) triggerDrainLocked() {
	if m.draining || len(m.pending) == 0 {
		return
	}
	m.draining = true
	go m.drain()
}

// drain empties the pending list in batches. On a write failure the batch
// snapshot is pushed back onto the front of a fresh pending list and the
// pass ends; the next trigger retries it. At most one drain runs at a time.
func (m *ConversationManager) drain() {
	ctx := context.Background()

	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.draining = false
			m.cond.Broadcast()
			m.mu.Unlock()
			return
		}
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		if err := m.store.AppendEntries(ctx, batch); err != nil {
			m.writeFailures.Add(1)
			m.logger.Warn("drain failed, batch requeued",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)

			m.mu.Lock()
			requeued := make([]domain.Entry, 0, len(batch)+len(m.pending))
			requeued = append(requeued, batch...)
			requeued = append(requeued, m.pending...)
			m.pending = requeued
			m.draining = false
			m.cond.Broadcast()
			m.mu.Unlock()
			return
		}

		for _, entry := range batch {
			m.registry.RecordMessage(entry.SessionID, entry.Metadata)
		}
		if err := m.registry.Persist(ctx); err != nil {
			m.writeFailures.Add(1)
			m.logger.Warn("session map persist failed", zap.Error(err))
		}

		m.publishMirror(batch)
	}
}

// publishMirror hands the drained batch to the best-effort sink. Sink
// failures never block or retry into the primary write path.
func (m *ConversationManager) publishMirror(batch []domain.Entry) {
	if m.mirror == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorPublishTimeout)
		defer cancel()

		if err := m.mirror.Publish(ctx, batch); err != nil {
			m.logger.Debug("mirror publish failed",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
		}
	}()
}

// Flush blocks until the pending queue has fully drained, running at most
// one additional drain pass. A batch that still cannot be written reports
// ErrWriteFailure instead of blocking forever.
func (m *ConversationManager) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	triggered := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !m.draining {
			if len(m.pending) == 0 {
				return nil
			}
			if triggered {
				return fmt.Errorf("%w: %d entries still pending after flush", domain.ErrWriteFailure, len(m.pending))
			}
			triggered = true
			m.draining = true
			go m.drain()
		}
		m.cond.Wait()
	}
}

// SearchMessages scans the current main log file in file order, applying
// the filter conjunctively and stopping once Limit results are collected.
func (m *ConversationManager) SearchMessages(ctx context.Context, filter SearchFilter) ([]domain.Entry, error) {
	entries, err := m.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	var results []domain.Entry
	for _, entry := range entries {
		if filter.SessionID != "" && entry.SessionID != filter.SessionID {
			continue
		}
		if filter.Role != "" && entry.Role != filter.Role {
			continue
		}
		if !filter.StartDate.IsZero() && entry.Timestamp.Before(filter.StartDate) {
			continue
		}
		if !filter.EndDate.IsZero() && entry.Timestamp.After(filter.EndDate) {
			continue
		}

		results = append(results, entry)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}

	return results, nil
}

func (m *ConversationManager) GetSessionMessages(ctx context.Context, sessionID string) ([]domain.Entry, error) {
	return m.SearchMessages(ctx, SearchFilter{SessionID: sessionID})
}

func (m *ConversationManager) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return m.registry.List(ctx)
}

// GetSessionSummary returns the current session's metadata. Counts may lag
// behind enqueued-but-undrained entries; Flush first when exactness matters.
func (m *ConversationManager) GetSessionSummary(ctx context.Context) (domain.Session, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == "" {
		return domain.Session{}, domain.ErrNoCurrentSession
	}

	return m.registry.Get(ctx, current)
}

// GetStatistics aggregates over all known sessions. The most active session
// is the one with the highest message count; ties resolve to the earliest
// started.
func (m *ConversationManager) GetStatistics(ctx context.Context) (Statistics, error) {
	sessions, err := m.registry.List(ctx)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{TotalSessions: len(sessions)}
	best := -1
	for _, session := range sessions {
		stats.TotalMessages += session.MessageCount
		stats.TotalTokens += session.TotalTokens
		stats.TotalCost += session.TotalCost
		if session.MessageCount > best {
			best = session.MessageCount
			stats.MostActiveSessionID = session.SessionID
		}
	}
	if len(sessions) > 0 {
		stats.AverageMessagesPerSession = float64(stats.TotalMessages) / float64(len(sessions))
	}

	return stats, nil
}

func (m *ConversationManager) PauseSession(ctx context.Context) error {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == "" {
		return domain.ErrNoCurrentSession
	}

	return m.registry.SetStatus(ctx, current, domain.SessionPaused)
}

// CompleteSession marks the current session completed and clears the
// current-session pointer; the next AddMessage resolves a session again.
func (m *ConversationManager) CompleteSession(ctx context.Context) error {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()

	if current == "" {
		return domain.ErrNoCurrentSession
	}

	if err := m.registry.SetStatus(ctx, current, domain.SessionCompleted); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = ""
	m.mu.Unlock()

	return nil
}

func (m *ConversationManager) CleanupOldSessions(ctx context.Context, daysToKeep int) (int, error) {
	if daysToKeep <= 0 {
		daysToKeep = DefaultRetentionDays
	}

	return m.registry.CleanupOlderThan(ctx, time.Duration(daysToKeep)*24*time.Hour)
}

func (m *ConversationManager) Health() Health {
	m.mu.Lock()
	pending := len(m.pending)
	m.mu.Unlock()

	return Health{
		WriteFailures: m.writeFailures.Load(),
		PendingWrites: pending,
		CorruptLines:  m.store.CorruptLines(),
	}
}

// Close flushes pending writes and persists session state.
func (m *ConversationManager) Close(ctx context.Context) error {
	if err := m.Flush(ctx); err != nil {
		return err
	}

	return m.registry.Persist(ctx)
}
