package logstore

import (
	"time"

	"github.com/bnema/agent-chat-cli/internal/domain"
)

// entrySchema is the JSON Lines wire form of a domain.Entry: one object per
// line in the conversation log, fields stable across releases.
type entrySchema struct {
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	MessageID string          `json:"messageId"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  *metadataSchema `json:"metadata,omitempty"`
}

type metadataSchema struct {
	Tokens    int              `json:"tokens,omitempty"`
	Cost      float64          `json:"cost,omitempty"`
	Model     string           `json:"model,omitempty"`
	ToolCalls []toolCallSchema `json:"toolCalls,omitempty"`
}

type toolCallSchema struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
}

// sessionSchema is one element of the session metadata document, which is a
// single JSON array rewritten in full on every save.
type sessionSchema struct {
	SessionID    string  `json:"sessionId"`
	ProjectID    string  `json:"projectId"`
	StartedAt    string  `json:"startedAt"`
	LastActivity string  `json:"lastActivity"`
	MessageCount int     `json:"messageCount"`
	TotalTokens  int     `json:"totalTokens"`
	TotalCost    float64 `json:"totalCost"`
	Status       string  `json:"status"`
}

func toEntrySchema(entry domain.Entry) entrySchema {
	encoded := entrySchema{
		Timestamp: formatTime(entry.Timestamp),
		SessionID: entry.SessionID,
		MessageID: entry.MessageID,
		Role:      string(entry.Role),
		Content:   entry.Content,
	}

	if entry.Metadata != nil {
		meta := metadataSchema{
			Tokens: entry.Metadata.Tokens,
			Cost:   entry.Metadata.Cost,
			Model:  entry.Metadata.Model,
		}
		for _, call := range entry.Metadata.ToolCalls {
			meta.ToolCalls = append(meta.ToolCalls, toolCallSchema(call))
		}
		encoded.Metadata = &meta
	}

	return encoded
}

func fromEntrySchema(entry entrySchema) domain.Entry {
	decoded := domain.Entry{
		Timestamp: parseTime(entry.Timestamp),
		SessionID: entry.SessionID,
		MessageID: entry.MessageID,
		Role:      domain.Role(entry.Role),
		Content:   entry.Content,
	}

	if entry.Metadata != nil {
		meta := domain.EntryMetadata{
			Tokens: entry.Metadata.Tokens,
			Cost:   entry.Metadata.Cost,
			Model:  entry.Metadata.Model,
		}
		for _, call := range entry.Metadata.ToolCalls {
			meta.ToolCalls = append(meta.ToolCalls, domain.ToolCall(call))
		}
		decoded.Metadata = &meta
	}

	return decoded
}

func toSessionSchema(session domain.Session) sessionSchema {
	return sessionSchema{
		SessionID:    session.SessionID,
		ProjectID:    session.ProjectID,
		StartedAt:    formatTime(session.StartedAt),
		LastActivity: formatTime(session.LastActivity),
		MessageCount: session.MessageCount,
		TotalTokens:  session.TotalTokens,
		TotalCost:    session.TotalCost,
		Status:       string(session.Status),
	}
}

func fromSessionSchema(session sessionSchema) domain.Session {
	return domain.Session{
		SessionID:    session.SessionID,
		ProjectID:    session.ProjectID,
		StartedAt:    parseTime(session.StartedAt),
		LastActivity: parseTime(session.LastActivity),
		MessageCount: session.MessageCount,
		TotalTokens:  session.TotalTokens,
		TotalCost:    session.TotalCost,
		Status:       domain.SessionStatus(session.Status),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
