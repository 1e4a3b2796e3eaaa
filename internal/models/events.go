package models

// Event types published on the session topic.
const (
	EventIndexBuilt   = "session.index.built"
	EventSessionReset = "session.reset"
	EventAnswer       = "session.answer.completed"
	EventQueryFailed  = "session.answer.failed"
)

// SessionEvent reports a lifecycle change of a conversation session.
type SessionEvent struct {
	EventType     string `json:"eventType" validate:"required"`
	SessionID     string `json:"sessionId" validate:"required"`
	MediaIdentity string `json:"mediaIdentity,omitempty"`
	ChunkCount    int    `json:"chunkCount,omitempty" validate:"gte=0"`
	Timestamp     int64  `json:"timestamp" validate:"required"`
}

// AnswerEvent reports a completed (or failed) question on the answer topic.
type AnswerEvent struct {
	EventType string   `json:"eventType" validate:"required"`
	SessionID string   `json:"sessionId" validate:"required"`
	QueryID   string   `json:"queryId" validate:"required"`
	Question  string   `json:"question" validate:"required"`
	Answer    string   `json:"answer,omitempty"`
	Sources   []string `json:"sources,omitempty"`
	Error     string   `json:"error,omitempty"`
	LatencyMs int64    `json:"latencyMs"`
	Timestamp int64    `json:"timestamp" validate:"required"`
}
