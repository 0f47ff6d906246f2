package model

// Roles a conversation turn can carry.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation. Ordering within a
// conversation is chronological and significant.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ChatRequest is the inbound payload for the completion endpoint. ID is
// optional; when absent a fresh identifier is generated at persistence time.
type ChatRequest struct {
	ID       string    `json:"id,omitempty"`
	Messages []Message `json:"messages" validate:"required,min=1,dive"`
}

// Chat is the persisted conversation record. It is written once, after a
// generation stream completes, and never mutated afterwards.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"userId"`
	CreatedAt int64     `json:"createdAt"` // epoch milliseconds
	Path      string    `json:"path"`
	Messages  []Message `json:"messages"`
}

// StreamEvent is a single fragment relayed to the client. A non-empty Error
// means the stream terminated abnormally and no further events follow.
type StreamEvent struct {
	Content string
	Error   string
}
