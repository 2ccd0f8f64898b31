package domain

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// Session is a logical conversation thread. MessageCount, TotalTokens and
// TotalCost are monotonically non-decreasing accumulators over the entries
// persisted for this session.
type Session struct {
	SessionID    string
	ProjectID    string
	StartedAt    time.Time
	LastActivity time.Time
	MessageCount int
	TotalTokens  int
	TotalCost    float64
	Status       SessionStatus
}
