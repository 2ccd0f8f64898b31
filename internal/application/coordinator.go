package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/bnema/agent-chat-cli/internal/ports"
	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds one streaming exchange end to end.
const DefaultRequestTimeout = 10 * time.Minute

type TerminalReason string

const (
	ReasonCompleted TerminalReason = "completed"
	ReasonCancelled TerminalReason = "cancelled"
	ReasonTimedOut  TerminalReason = "timed_out"
	ReasonFailed    TerminalReason = "failed"
)

// Listener receives incremental output for a request. OnContent always
// carries the full accumulated text so far, so re-rendering it is
// idempotent under chunk re-delivery.
type Listener interface {
	OnContent(requestID int64, accumulated string)
	OnDone(requestID int64, reason TerminalReason, err error)
}

type streamingRequest struct {
	id        int64
	sessionID string
	cancel    context.CancelFunc
	timer     *time.Timer

	// All fields below are guarded by the coordinator mutex.
	done        bool
	reason      TerminalReason
	accumulated strings.Builder
	meta        domain.EntryMetadata
}

// StreamingRequestCoordinator manages the set of concurrently in-flight
// streaming exchanges with the agent service. Each request is independently
// cancellable and time-boxed; outputs of different requests are independent
// and may interleave.
type StreamingRequestCoordinator struct {
	agent    ports.AgentClient
	manager  *ConversationManager
	listener Listener
	logger   *zap.Logger
	timeout  time.Duration

	nextID atomic.Int64

	mu     sync.Mutex
	active map[int64]*streamingRequest
}

func NewStreamingRequestCoordinator(agent ports.AgentClient, manager *ConversationManager, listener Listener, logger *zap.Logger, timeout time.Duration) *StreamingRequestCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &StreamingRequestCoordinator{
		agent:    agent,
		manager:  manager,
		listener: listener,
		logger:   logger,
		timeout:  timeout,
		active:   map[int64]*streamingRequest{},
	}
}

// Submit persists the user turn, registers a new cancellable time-boxed
// request and begins the streamed exchange. It returns as soon as the
// request is registered; progress is reported through the Listener.
func (c *StreamingRequestCoordinator) Submit(ctx context.Context, message, sessionID string) (int64, error) {
	if err := domain.ValidateMessage(message); err != nil {
		return 0, err
	}

	resolvedID, err := c.manager.StartSession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("resolve session: %w", err)
	}

	// The user turn is persisted at submit time; a later cancellation or
	// failure leaves it in history without an assistant counterpart.
	if _, err := c.manager.AddSessionMessage(ctx, resolvedID, domain.RoleUser, message, nil); err != nil {
		return 0, fmt.Errorf("persist user turn: %w", err)
	}

	requestID := c.nextID.Add(1)
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	request := &streamingRequest{
		id:        requestID,
		sessionID: resolvedID,
		cancel:    cancel,
	}
	request.timer = time.AfterFunc(c.timeout, func() {
		c.finish(request, ReasonTimedOut, nil)
	})

	c.mu.Lock()
	c.active[requestID] = request
	c.mu.Unlock()

	go c.run(reqCtx, request, message)

	c.logger.Debug("streaming request submitted",
		zap.Int64("request_id", requestID),
		zap.String("session_id", resolvedID),
	)

	return requestID, nil
}

func (c *StreamingRequestCoordinator) run(ctx context.Context, request *streamingRequest, message string) {
	events, err := c.agent.Stream(ctx, message, request.sessionID)
	if err != nil {
		c.finish(request, ReasonFailed, fmt.Errorf("open stream: %w", err))
		return
	}

	for event := range events {
		switch event.Type {
		case domain.StreamSessionCreated:
			if event.SessionID != "" {
				c.mu.Lock()
				request.sessionID = event.SessionID
				c.mu.Unlock()
			}

		case domain.StreamContent:
			accumulated, ok := c.appendContent(request, event.Content)
			if !ok {
				// Terminal state already reached; stop forwarding.
				return
			}
			if c.listener != nil {
				c.listener.OnContent(request.id, accumulated)
			}

		case domain.StreamToolUse:
			c.mu.Lock()
			request.meta.ToolCalls = append(request.meta.ToolCalls, domain.ToolCall{
				ID:   event.ToolID,
				Name: event.ToolName,
			})
			c.mu.Unlock()

		case domain.StreamToolResult:
			c.mu.Lock()
			for i := range request.meta.ToolCalls {
				if request.meta.ToolCalls[i].ID == event.ToolID {
					request.meta.ToolCalls[i].Result = event.ToolContent
					break
				}
			}
			c.mu.Unlock()

		case domain.StreamResult:
			c.mu.Lock()
			request.meta.Tokens += event.InputTokens + event.OutputTokens
			request.meta.Cost += event.CostUSD
			c.mu.Unlock()

		case domain.StreamDone:
			c.complete(ctx, request)
			return

		case domain.StreamError:
			c.finish(request, ReasonFailed, fmt.Errorf("agent error: %s", event.ErrorMessage))
			return

		default:
			// Unrecognized event types are a no-op passthrough.
		}
	}

	// Stream ended without a terminal event: cancellation, timeout, or a
	// dropped connection.
	if ctx.Err() != nil {
		c.finish(request, ReasonCancelled, nil)
		return
	}
	c.finish(request, ReasonFailed, fmt.Errorf("stream ended without done event"))
}

// appendContent accumulates one chunk, refusing chunks for requests that
// already reached a terminal state.
func (c *StreamingRequestCoordinator) appendContent(request *streamingRequest, chunk string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if request.done {
		return "", false
	}

	request.accumulated.WriteString(chunk)
	return request.accumulated.String(), true
}

// complete persists the accumulated assistant turn and finishes the request.
func (c *StreamingRequestCoordinator) complete(ctx context.Context, request *streamingRequest) {
	c.mu.Lock()
	if request.done {
		c.mu.Unlock()
		return
	}
	content := request.accumulated.String()
	meta := request.meta
	c.mu.Unlock()

	if content != "" {
		if _, err := c.manager.AddSessionMessage(ctx, request.sessionID, domain.RoleAssistant, content, &meta); err != nil {
			c.logger.Warn("persist assistant turn failed",
				zap.Int64("request_id", request.id),
				zap.Error(err),
			)
		}
	}

	c.finish(request, ReasonCompleted, nil)
}

// finish applies the terminal transition exactly once: removes the request
// from the active set, releases its timer, and cancels its context.
func (c *StreamingRequestCoordinator) finish(request *streamingRequest, reason TerminalReason, err error) {
	c.mu.Lock()
	if request.done {
		c.mu.Unlock()
		return
	}
	request.done = true
	request.reason = reason
	delete(c.active, request.id)
	c.mu.Unlock()

	request.timer.Stop()
	request.cancel()

	if err != nil {
		c.logger.Warn("streaming request failed",
			zap.Int64("request_id", request.id),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
	}

	if c.listener != nil {
		c.listener.OnDone(request.id, reason, err)
	}
}

// Cancel stops one in-flight request. No further chunk for this request is
// forwarded after Cancel returns, and the request is no longer active.
func (c *StreamingRequestCoordinator) Cancel(requestID int64) error {
	c.mu.Lock()
	request, ok := c.active[requestID]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrRequestNotFound, requestID)
	}

	c.finish(request, ReasonCancelled, nil)
	return nil
}

// CancelAll cancels every active request.
func (c *StreamingRequestCoordinator) CancelAll() {
	c.mu.Lock()
	requests := make([]*streamingRequest, 0, len(c.active))
	for _, request := range c.active {
		requests = append(requests, request)
	}
	c.mu.Unlock()

	for _, request := range requests {
		c.finish(request, ReasonCancelled, nil)
	}
}

// Active returns the IDs of in-flight requests in ascending order.
func (c *StreamingRequestCoordinator) Active() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int64, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
