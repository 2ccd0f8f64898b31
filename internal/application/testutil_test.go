package application

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/bnema/agent-chat-cli/internal/ports"
)

// fakeLogStore is an in-memory ports.LogStore with append failure injection.
type fakeLogStore struct {
	mu           sync.Mutex
	entries      []domain.Entry
	sessions     map[string]domain.Session
	failAppends  int
	appendCalls  int
	saveCalls    int
	corruptLines int64
}

var _ ports.LogStore = (*fakeLogStore)(nil)

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{sessions: map[string]domain.Session{}}
}

func (f *fakeLogStore) EnsureInitialized(context.Context) error { return nil }

func (f *fakeLogStore) AppendEntries(_ context.Context, entries []domain.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.appendCalls++
	if f.failAppends > 0 {
		f.failAppends--
		return domain.ErrWriteFailure
	}

	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeLogStore) ReadAll(context.Context) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.Entry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeLogStore) CorruptLines() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.corruptLines
}

func (f *fakeLogStore) LoadSessions(context.Context) (map[string]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]domain.Session, len(f.sessions))
	for id, session := range f.sessions {
		out[id] = session
	}
	return out, nil
}

func (f *fakeLogStore) SaveSessions(_ context.Context, sessions map[string]domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saveCalls++
	f.sessions = make(map[string]domain.Session, len(sessions))
	for id, session := range sessions {
		f.sessions[id] = session
	}
	return nil
}

func (f *fakeLogStore) storedEntries() []domain.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// fixedClock advances by step on every Now call so timestamps stay ordered.
type fixedClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFixedClock(start time.Time) *fixedClock {
	return &fixedClock{now: start, step: time.Millisecond}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(c.step)
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAgent hands out test-controlled event channels, one per Stream call.
type fakeAgent struct {
	mu      sync.Mutex
	streams []chan domain.StreamEvent
	openErr error
}

var _ ports.AgentClient = (*fakeAgent)(nil)

func (a *fakeAgent) Stream(_ context.Context, _, _ string) (<-chan domain.StreamEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.openErr != nil {
		return nil, a.openErr
	}

	ch := make(chan domain.StreamEvent, 32)
	a.streams = append(a.streams, ch)
	return ch, nil
}

func (a *fakeAgent) stream(i int) chan domain.StreamEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streams[i]
}

func (a *fakeAgent) streamCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.streams)
}

// recordingListener captures incremental content and terminal transitions.
type recordingListener struct {
	mu       sync.Mutex
	contents map[int64][]string
	reasons  map[int64]TerminalReason
	errs     map[int64]error
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		contents: map[int64][]string{},
		reasons:  map[int64]TerminalReason{},
		errs:     map[int64]error{},
	}
}

func (l *recordingListener) OnContent(requestID int64, accumulated string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contents[requestID] = append(l.contents[requestID], accumulated)
}

func (l *recordingListener) OnDone(requestID int64, reason TerminalReason, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons[requestID] = reason
	l.errs[requestID] = err
}

func (l *recordingListener) contentHistory(requestID int64) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.contents[requestID]))
	copy(out, l.contents[requestID])
	return out
}

func (l *recordingListener) reason(requestID int64) (TerminalReason, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	reason, ok := l.reasons[requestID]
	return reason, ok
}

// fakeMirror records published batches.
type fakeMirror struct {
	mu      sync.Mutex
	batches [][]domain.Entry
}

var _ ports.MirrorSink = (*fakeMirror)(nil)

func (f *fakeMirror) Publish(_ context.Context, entries []domain.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	batch := make([]domain.Entry, len(entries))
	copy(batch, entries)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeMirror) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}
