package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()

	var out []domain.StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestStreamParsesEventFrames(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "hello", payload["message"])
		assert.Equal(t, "s-1", payload["session_id"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"session_created\",\"session_id\":\"s-1\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"processing\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"hi \"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"there\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"result\",\"input_tokens\":3,\"output_tokens\":2,\"cost_usd\":0.004}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"done\"}\n\n")
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	events, err := client.Stream(context.Background(), "hello", "s-1")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 6)
	assert.Equal(t, domain.StreamSessionCreated, got[0].Type)
	assert.Equal(t, "s-1", got[0].SessionID)
	assert.Equal(t, domain.StreamProcessing, got[1].Type)
	assert.Equal(t, "hi ", got[2].Content)
	assert.Equal(t, "there", got[3].Content)
	assert.Equal(t, 3, got[4].InputTokens)
	assert.Equal(t, 2, got[4].OutputTokens)
	assert.InDelta(t, 0.004, got[4].CostUSD, 1e-9)
	assert.Equal(t, domain.StreamDone, got[5].Type)
}

func TestStreamMapsToolFrames(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"tool_use\",\"name\":\"read_file\",\"id\":\"call-1\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"tool_result\",\"tool_id\":\"call-1\",\"content\":\"file contents\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"done\"}\n\n")
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	events, err := client.Stream(context.Background(), "read it", "")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, domain.StreamToolUse, got[0].Type)
	assert.Equal(t, "read_file", got[0].ToolName)
	assert.Equal(t, "call-1", got[0].ToolID)
	assert.Equal(t, domain.StreamToolResult, got[1].Type)
	assert.Equal(t, "call-1", got[1].ToolID)
	assert.Equal(t, "file contents", got[1].ToolContent)
	assert.Empty(t, got[1].Content)
}

func TestStreamSkipsMalformedFrames(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"survived\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"done\"}\n\n")
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	events, err := client.Stream(context.Background(), "hello", "")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, "survived", got[0].Content)
	assert.Equal(t, domain.StreamDone, got[1].Type)
}

func TestStreamStopsAfterErrorFrame(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":\"model overloaded\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"never delivered\"}\n\n")
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	events, err := client.Stream(context.Background(), "hello", "")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StreamError, got[0].Type)
	assert.Equal(t, "model overloaded", got[0].ErrorMessage)
}

func TestStreamReportsHTTPErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	_, err := client.Stream(context.Background(), "hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "service unavailable")
}

func TestStreamClosesOnDroppedConnection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"partial\"}\n\n")
		// Returning without a done frame drops the connection.
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	events, err := client.Stream(context.Background(), "hello", "")
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, "partial", got[0].Content)
}

func TestStreamRejectsInvalidBaseURL(t *testing.T) {
	t.Parallel()

	client := &Client{}
	_, err := client.Stream(context.Background(), "hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base url")

	client = &Client{BaseURL: "ftp://example.com"}
	_, err = client.Stream(context.Background(), "hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http or https")
}
