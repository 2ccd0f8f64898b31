package transcript

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/agent-chat-cli/internal/application"
	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

func renderSessionsView(sessions []domain.Session, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Recorded Sessions"),
		s.header.Render(fmt.Sprintf("sessions: %d", len(sessions))),
	}

	if len(sessions) == 0 {
		lines = append(lines, s.empty.Render("No sessions recorded."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	maxMessages := 0
	for _, session := range sessions {
		if session.MessageCount > maxMessages {
			maxMessages = session.MessageCount
		}
	}

	for _, session := range sessions {
		lines = append(lines, s.section.Render(renderSession(session, maxMessages, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSession(session domain.Session, maxMessages int, opts RenderOptions, s styles) string {
	parts := []string{
		s.session.Render(sessionTitle(session)),
	}

	bar := renderActivityBar(session.MessageCount, maxMessages, 24, s)
	counts := s.detail.Render(fmt.Sprintf("%d messages, %d tokens, %s", session.MessageCount, session.TotalTokens, formatCost(session.TotalCost)))
	parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Top, bar, " ", counts))

	activity := s.detail.Render(fmt.Sprintf("started %s, last activity %s",
		formatRelative(session.StartedAt, opts.Now),
		formatRelative(session.LastActivity, opts.Now),
	))
	parts = append(parts, activity)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderReportView(stats application.Statistics, health application.Health, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Conversation Report"),
		statLine(s, "sessions", fmt.Sprintf("%d", stats.TotalSessions)),
		statLine(s, "messages", fmt.Sprintf("%d", stats.TotalMessages)),
		statLine(s, "tokens", fmt.Sprintf("%d", stats.TotalTokens)),
		statLine(s, "cost", formatCost(stats.TotalCost)),
		statLine(s, "avg messages/session", fmt.Sprintf("%.1f", stats.AverageMessagesPerSession)),
	}

	if stats.MostActiveSessionID != "" {
		lines = append(lines, statLine(s, "most active", stats.MostActiveSessionID))
	}

	lines = append(lines, s.section.Render(renderHealth(health, s)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderHealth(health application.Health, s styles) string {
	lines := []string{
		s.title.Render("Health"),
		healthLine(s, "write failures", health.WriteFailures),
		healthLine(s, "pending writes", int64(health.PendingWrites)),
		healthLine(s, "corrupt lines", health.CorruptLines),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func statLine(s styles, key, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		s.statKey.Render(key+":"),
		" ",
		s.statValue.Render(value),
	)
}

func healthLine(s styles, key string, value int64) string {
	rendered := s.statValue.Render(fmt.Sprintf("%d", value))
	if value > 0 {
		rendered = s.warning.Render(fmt.Sprintf("%d", value))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, s.statKey.Render(key+":"), " ", rendered)
}

func sessionTitle(session domain.Session) string {
	title := fmt.Sprintf("%s (%s)", session.SessionID, session.Status)
	if session.ProjectID != "" {
		title = fmt.Sprintf("%s [%s] (%s)", session.SessionID, session.ProjectID, session.Status)
	}
	return title
}

func renderActivityBar(count, max, width int, s styles) string {
	if width <= 0 || max <= 0 {
		return ""
	}

	fraction := float64(count) / float64(max)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	filled := int(math.Round(float64(width) * fraction))
	if filled > width {
		filled = width
	}
	empty := width - filled

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func formatCost(cost float64) string {
	return fmt.Sprintf("$%.4f", cost)
}

func formatRelative(at, now time.Time) string {
	if at.IsZero() {
		return "never"
	}
	if now.IsZero() || at.After(now) {
		return at.Format(time.RFC3339)
	}

	elapsed := now.Sub(at)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		minutes := int(elapsed.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case elapsed < 24*time.Hour:
		hours := int(elapsed.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(elapsed.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
