package ws

// Message types sent by clients.
const (
	TypeHello = "hello"
	TypeChat  = "chat"
)

// Message types sent by the server.
const (
	TypeHelloAck = "hello_ack"
	TypeDelta    = "delta"
	TypeDone     = "done"
	TypeError    = "error"
)

// Error codes.
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeSessionBusy    = "session_busy"
	ErrorCodeInternalError  = "internal_error"
)

// BaseMessage contains the fields shared by every message.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage binds a connection to a session. An empty session id asks
// the server for a new one.
type HelloMessage struct {
	BaseMessage
	UserID string `json:"user_id,omitempty"`
}

// ChatMessage is one user turn.
type ChatMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// DeltaMessage carries one chunk of the assistant reply.
type DeltaMessage struct {
	BaseMessage
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

// DoneMessage ends a reply.
type DoneMessage struct {
	BaseMessage
	Strategy  string `json:"strategy,omitempty"`
	PlanID    string `json:"plan_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ErrorMessage reports a failed request.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}
