package transcript

import (
	"testing"
	"time"

	"github.com/bnema/agent-chat-cli/internal/application"
	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSessionsListing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	output, err := RenderSessions([]domain.Session{
		{
			SessionID:    "20260301T090000-abcd1234",
			StartedAt:    now.Add(-3 * time.Hour),
			LastActivity: now.Add(-30 * time.Second),
			MessageCount: 8,
			TotalTokens:  1200,
			TotalCost:    0.0345,
			Status:       domain.SessionActive,
		},
		{
			SessionID:    "20260228T100000-ef567890",
			ProjectID:    "demo",
			StartedAt:    now.Add(-26 * time.Hour),
			LastActivity: now.Add(-25 * time.Hour),
			MessageCount: 2,
			TotalTokens:  90,
			TotalCost:    0.0012,
			Status:       domain.SessionCompleted,
		},
	}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "sessions: 2")
	assert.Contains(t, output, "20260301T090000-abcd1234 (active)")
	assert.Contains(t, output, "20260228T100000-ef567890 [demo] (completed)")
	assert.Contains(t, output, "8 messages, 1200 tokens, $0.0345")
	assert.Contains(t, output, "started 3 hours ago, last activity just now")
	assert.Contains(t, output, "last activity 1 day ago")
	assert.Contains(t, output, "[")
	assert.Contains(t, output, "]")
}

func TestRenderSessionsEmpty(t *testing.T) {
	output, err := RenderSessions(nil, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, output, "sessions: 0")
	assert.Contains(t, output, "No sessions recorded.")
}

func TestRenderReport(t *testing.T) {
	output, err := RenderReport(application.Statistics{
		TotalSessions:             2,
		TotalMessages:             10,
		TotalTokens:               1290,
		TotalCost:                 0.0357,
		AverageMessagesPerSession: 5,
		MostActiveSessionID:       "20260301T090000-abcd1234",
	}, application.Health{}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "sessions: 2")
	assert.Contains(t, output, "messages: 10")
	assert.Contains(t, output, "tokens: 1290")
	assert.Contains(t, output, "cost: $0.0357")
	assert.Contains(t, output, "avg messages/session: 5.0")
	assert.Contains(t, output, "most active: 20260301T090000-abcd1234")
	assert.Contains(t, output, "write failures: 0")
}

func TestRenderReportFlagsUnhealthyCounters(t *testing.T) {
	output, err := RenderReport(application.Statistics{}, application.Health{
		WriteFailures: 3,
		PendingWrites: 2,
		CorruptLines:  1,
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "write failures: 3")
	assert.Contains(t, output, "pending writes: 2")
	assert.Contains(t, output, "corrupt lines: 1")
}
