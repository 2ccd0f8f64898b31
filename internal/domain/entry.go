package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Entry is one persisted chat turn. Entries are append-only: once written
// to the log they are never mutated or deleted individually.
type Entry struct {
	Timestamp time.Time
	SessionID string
	MessageID string
	Role      Role
	Content   string
	Metadata  *EntryMetadata
}

// EntryMetadata carries optional usage accounting and tool-call records
// attached to an entry.
type EntryMetadata struct {
	Tokens    int
	Cost      float64
	Model     string
	ToolCalls []ToolCall
}

type ToolCall struct {
	ID     string
	Name   string
	Result string
}

func ValidRole(role Role) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
