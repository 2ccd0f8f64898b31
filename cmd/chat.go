package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/agent-chat-cli/internal/application"
	"github.com/spf13/cobra"
)

func newChatCmd(app *app) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message to the agent and stream the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, app, sessionID, args[0])
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (default: per configured session mode)")

	return cmd
}

// chatListener bridges coordinator callbacks into channels the command loop
// can select on.
type chatListener struct {
	mu          sync.Mutex
	accumulated string
	printed     int

	firstOnce    sync.Once
	firstContent chan struct{}
	contentCh    chan struct{}
	doneCh       chan struct{}

	reason application.TerminalReason
	err    error
}

func newChatListener() *chatListener {
	return &chatListener{
		firstContent: make(chan struct{}),
		contentCh:    make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}
}

func (l *chatListener) OnContent(_ int64, accumulated string) {
	l.mu.Lock()
	l.accumulated = accumulated
	l.mu.Unlock()

	l.firstOnce.Do(func() { close(l.firstContent) })
	select {
	case l.contentCh <- struct{}{}:
	default:
	}
}

func (l *chatListener) OnDone(_ int64, reason application.TerminalReason, err error) {
	l.reason = reason
	l.err = err
	close(l.doneCh)
}

func (l *chatListener) printDelta(out io.Writer) {
	l.mu.Lock()
	pending := l.accumulated[l.printed:]
	l.printed = len(l.accumulated)
	l.mu.Unlock()

	if pending != "" {
		_, _ = fmt.Fprint(out, pending)
	}
}

func runChat(cmd *cobra.Command, app *app, sessionID, message string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.manager.Init(ctx); err != nil {
		return err
	}

	listener := newChatListener()
	coordinator := application.NewStreamingRequestCoordinator(app.agent, app.manager, listener, app.logger, app.requestTimeout)

	requestID, err := coordinator.Submit(ctx, message, sessionID)
	if err != nil {
		return err
	}

	// Spinner runs on stderr so stdout carries only the reply.
	if err := runChatSpinner(ctx, cmd.ErrOrStderr(), func(ctx context.Context) error {
		select {
		case <-listener.firstContent:
		case <-listener.doneCh:
		case <-ctx.Done():
		}
		return nil
	}); err != nil {
		coordinator.CancelAll()
		return err
	}

	out := cmd.OutOrStdout()
loop:
	for {
		listener.printDelta(out)
		select {
		case <-listener.doneCh:
			listener.printDelta(out)
			break loop
		case <-listener.contentCh:
		case <-ctx.Done():
			// Cancel reaches the terminal state before it returns.
			_ = coordinator.Cancel(requestID)
			break loop
		}
	}
	_, _ = fmt.Fprintln(out)

	var runErr error
	switch listener.reason {
	case application.ReasonCancelled:
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "request cancelled")
	case application.ReasonTimedOut:
		runErr = fmt.Errorf("request %d timed out after %s", requestID, app.requestTimeout)
	case application.ReasonFailed:
		runErr = fmt.Errorf("request %d failed: %w", requestID, listener.err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.manager.Close(closeCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("flush conversation log: %w", err)
	}

	return runErr
}
