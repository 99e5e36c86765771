package domain

import "time"

// Message roles stored in a thread and sent upstream.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn held by a thread.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is a short-lived conversation session. Threads live only in memory
// and are evicted after a period of inactivity.
type Thread struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Messages     []Message `json:"messages"`
	Context      *Snapshot `json:"context,omitempty"`
}

// ThreadSummary is the listing shape for a live thread.
type ThreadSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}
