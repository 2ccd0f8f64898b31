package domain

type StreamEventType string

const (
	StreamSessionCreated StreamEventType = "session_created"
	StreamProcessing     StreamEventType = "processing"
	StreamContent        StreamEventType = "content"
	StreamToolUse        StreamEventType = "tool_use"
	StreamToolResult     StreamEventType = "tool_result"
	StreamResult         StreamEventType = "result"
	StreamDone           StreamEventType = "done"
	StreamError          StreamEventType = "error"
)

// StreamEvent is one typed event from the agent service. A stream is
// terminated by exactly one done or error event; unrecognized event types
// are passed through and ignored by consumers.
type StreamEvent struct {
	Type         StreamEventType
	SessionID    string
	Content      string
	ToolName     string
	ToolID       string
	ToolContent  string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	ErrorMessage string
}
