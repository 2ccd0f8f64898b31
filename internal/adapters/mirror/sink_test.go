package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishPostsBatch(t *testing.T) {
	t.Parallel()

	var received mirrorBatch
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	sink := &Sink{Endpoint: server.URL + "/mirror", HTTPClient: server.Client()}
	entries := []domain.Entry{
		{
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			SessionID: "s-1",
			MessageID: "m-1",
			Role:      domain.RoleUser,
			Content:   "hello",
		},
	}

	require.NoError(t, sink.Publish(context.Background(), entries))
	require.Len(t, received.Entries, 1)
	assert.Equal(t, "s-1", received.Entries[0].SessionID)
	assert.Equal(t, "hello", received.Entries[0].Content)
}

func TestPublishEmptyBatchIsNoOp(t *testing.T) {
	t.Parallel()

	sink := &Sink{Endpoint: "http://unreachable.invalid"}
	require.NoError(t, sink.Publish(context.Background(), nil))
}

func TestPublishReportsErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	sink := &Sink{Endpoint: server.URL, HTTPClient: server.Client()}
	err := sink.Publish(context.Background(), []domain.Entry{{SessionID: "s-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestPublishRejectsInvalidEndpoint(t *testing.T) {
	t.Parallel()

	sink := &Sink{}
	err := sink.Publish(context.Background(), []domain.Entry{{SessionID: "s-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint is required")
}
