package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/bnema/agent-chat-cli/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionMode string

const (
	// SessionModeUnique generates a fresh collision-resistant identifier
	// for every session started without an explicit ID.
	SessionModeUnique SessionMode = "unique"

	// SessionModeUnified collapses all traffic started without an explicit
	// ID onto one fixed well-known identifier.
	SessionModeUnified SessionMode = "unified"
)

// UnifiedSessionID is the well-known identifier shared by all callers when
// the registry runs in unified mode.
const UnifiedSessionID = "00000000-0000-0000-0000-000000000001"

const (
	DefaultMaxSessions   = 100
	sessionIDTimeLayout  = "20060102T150405"
	DefaultRetentionDays = 30
)

type RegistryConfig struct {
	Mode        SessionMode
	UnifiedID   string
	ProjectID   string
	MaxSessions int
}

// SessionRegistry is the authoritative sessionId -> Session mapping, backed
// by the LogStore's session metadata document with a write-through cache.
type SessionRegistry struct {
	store  ports.LogStore
	clock  ports.Clock
	logger *zap.Logger
	cfg    RegistryConfig

	mu       sync.Mutex
	sessions map[string]domain.Session
	loaded   bool
}

func NewSessionRegistry(store ports.LogStore, clock ports.Clock, logger *zap.Logger, cfg RegistryConfig) *SessionRegistry {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = SessionModeUnique
	}
	if cfg.UnifiedID == "" {
		cfg.UnifiedID = UnifiedSessionID
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}

	return &SessionRegistry{
		store:  store,
		clock:  clock,
		logger: logger,
		cfg:    cfg,
	}
}

// GetOrCreate resolves a session: an existing ID is reactivated, an unknown
// ID gets a zeroed record, and an empty ID is resolved by the session ID
// policy. The updated map is persisted before returning.
func (r *SessionRegistry) GetOrCreate(ctx context.Context, sessionID string) (domain.Session, error) {
	if err := domain.ValidateIdentifier(sessionID); err != nil {
		return domain.Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return domain.Session{}, err
	}

	if sessionID == "" {
		sessionID = r.resolveSessionID()
	}

	now := r.clock.Now()
	session, ok := r.sessions[sessionID]
	if ok {
		session.Status = domain.SessionActive
		session.LastActivity = now
	} else {
		if len(r.sessions) >= r.cfg.MaxSessions {
			return domain.Session{}, fmt.Errorf("%w: %d sessions registered", domain.ErrTooManySessions, len(r.sessions))
		}
		session = domain.Session{
			SessionID:    sessionID,
			ProjectID:    r.cfg.ProjectID,
			StartedAt:    now,
			LastActivity: now,
			Status:       domain.SessionActive,
		}
		r.logger.Info("session created",
			zap.String("session_id", sessionID),
			zap.String("mode", string(r.cfg.Mode)),
		)
	}
	r.sessions[sessionID] = session

	if err := r.store.SaveSessions(ctx, r.sessions); err != nil {
		return domain.Session{}, fmt.Errorf("save sessions: %w", err)
	}

	return session, nil
}

func (r *SessionRegistry) resolveSessionID() string {
	if r.cfg.Mode == SessionModeUnified {
		return r.cfg.UnifiedID
	}

	return r.clock.Now().UTC().Format(sessionIDTimeLayout) + "-" + uuid.NewString()
}

// Ensure registers a session record in memory without touching storage.
// Used on the message hot path, where storage errors must not surface; the
// record is persisted by the next Persist. Sessions adopted mid-exchange
// bypass the MaxSessions cap so an in-flight stream never fails midway.
func (r *SessionRegistry) Ensure(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded || sessionID == "" {
		return
	}
	if _, ok := r.sessions[sessionID]; ok {
		return
	}

	now := r.clock.Now()
	r.sessions[sessionID] = domain.Session{
		SessionID:    sessionID,
		ProjectID:    r.cfg.ProjectID,
		StartedAt:    now,
		LastActivity: now,
		Status:       domain.SessionActive,
	}
}

// RecordMessage folds one appended entry into the session's counters.
// In-memory only; the caller batches persistence via Persist.
func (r *SessionRegistry) RecordMessage(sessionID string, meta *domain.EntryMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	session.MessageCount++
	session.LastActivity = r.clock.Now()
	if meta != nil {
		session.TotalTokens += meta.Tokens
		session.TotalCost += meta.Cost
	}
	r.sessions[sessionID] = session
}

// Persist flushes the cached session map to storage.
func (r *SessionRegistry) Persist(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return nil
	}

	if err := r.store.SaveSessions(ctx, r.sessions); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}

	return nil
}

func (r *SessionRegistry) SetStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return err
	}

	session, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	session.Status = status
	session.LastActivity = r.clock.Now()
	r.sessions[sessionID] = session

	if err := r.store.SaveSessions(ctx, r.sessions); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}

	return nil
}

func (r *SessionRegistry) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return domain.Session{}, err
	}

	session, ok := r.sessions[sessionID]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}

	return session, nil
}

// List returns all known sessions ordered by start time, oldest first.
func (r *SessionRegistry) List(ctx context.Context) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].StartedAt.Before(sessions[j].StartedAt)
		}
		return sessions[i].SessionID < sessions[j].SessionID
	})

	return sessions, nil
}

// CleanupOlderThan removes every session whose last activity predates the
// cutoff and persists the resulting map once. Log entries of removed
// sessions remain in the log, orphaned.
func (r *SessionRegistry) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return 0, err
	}

	cutoff := r.clock.Now().Add(-maxAge)
	removed := 0
	for id, session := range r.sessions {
		if session.LastActivity.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}

	if removed == 0 {
		return 0, nil
	}

	if err := r.store.SaveSessions(ctx, r.sessions); err != nil {
		return 0, fmt.Errorf("save sessions: %w", err)
	}

	r.logger.Info("cleaned up inactive sessions",
		zap.Int("removed", removed),
		zap.Time("cutoff", cutoff),
	)

	return removed, nil
}

func (r *SessionRegistry) loadLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}

	sessions, err := r.store.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	if sessions == nil {
		sessions = map[string]domain.Session{}
	}

	r.sessions = sessions
	r.loaded = true
	return nil
}
