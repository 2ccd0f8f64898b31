// Package sse streams chat exchanges from the agent service over
// server-sent events.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/bnema/agent-chat-cli/internal/ports"
	"go.uber.org/zap"
)

const chatPath = "/api/chat"
const maxErrorBodyBytes = 1 << 20

// Frames can carry whole tool results, so the line buffer has to be
// generous.
const maxFrameBytes = 4 << 20

// Client talks to the agent service chat endpoint and converts its SSE
// frames into domain stream events.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

var _ ports.AgentClient = (*Client)(nil)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type eventFrame struct {
	Type         string  `json:"type"`
	SessionID    string  `json:"session_id"`
	Content      string  `json:"content"`
	Name         string  `json:"name"`
	ID           string  `json:"id"`
	ToolID       string  `json:"tool_id"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Error        string  `json:"error"`
}

// Stream opens one streamed exchange. The returned channel is closed when
// the server sends a terminal frame, the connection drops, or ctx is
// cancelled. Opening failures are returned synchronously; everything after
// that arrives as events.
func (c *Client) Stream(ctx context.Context, message string, sessionID string) (<-chan domain.StreamEvent, error) {
	endpoint, err := buildChatURL(c.BaseURL)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail := readErrorBody(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("open chat stream: status %d%s", resp.StatusCode, detail)
	}

	events := make(chan domain.StreamEvent)
	go c.readFrames(ctx, resp.Body, events)
	return events, nil
}

// readFrames parses `data: {json}` lines from the response body and forwards
// them until a terminal frame, a read error, or ctx cancellation.
func (c *Client) readFrames(ctx context.Context, body io.ReadCloser, events chan<- domain.StreamEvent) {
	defer close(events)
	defer func() { _ = body.Close() }()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)

	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			// Blank separator lines and comment frames.
			continue
		}

		var frame eventFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			c.logger().Warn("skipping malformed stream frame", zap.Error(err))
			continue
		}

		event := toDomainEvent(frame)
		select {
		case events <- event:
		case <-ctx.Done():
			return
		}

		if event.Type == domain.StreamDone || event.Type == domain.StreamError {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger().Warn("chat stream read failed", zap.Error(err))
	}
}

func toDomainEvent(frame eventFrame) domain.StreamEvent {
	event := domain.StreamEvent{
		Type:         domain.StreamEventType(frame.Type),
		SessionID:    frame.SessionID,
		Content:      frame.Content,
		ToolName:     frame.Name,
		ToolID:       frame.ToolID,
		InputTokens:  frame.InputTokens,
		OutputTokens: frame.OutputTokens,
		CostUSD:      frame.CostUSD,
		ErrorMessage: frame.Error,
	}

	// Tool invocation frames carry the call identifier in "id"; result
	// frames refer back to it via "tool_id".
	if event.Type == domain.StreamToolUse && frame.ID != "" {
		event.ToolID = frame.ID
	}
	if event.Type == domain.StreamToolResult {
		event.ToolContent = frame.Content
		event.Content = ""
	}
	return event
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return ""
	}
	return ": " + text
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func buildChatURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", errors.New("agent base url is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse agent base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("agent base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("agent base url host is required")
	}

	endpoint, err := parsed.Parse(chatPath)
	if err != nil {
		return "", fmt.Errorf("parse chat path: %w", err)
	}
	return endpoint.String(), nil
}
