package tutor

import "time"

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser           Role = "user"
	RoleAssistant      Role = "assistant"
	RoleConsentRequest Role = "consent-request"
)

// Message is one rendered transcript entry. Messages are append-only.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ThreadID  string    `json:"threadId,omitempty"`
}

// PendingConsent is an open human-in-the-loop gate awaiting approve/reject.
type PendingConsent struct {
	Prompt   string `json:"prompt"`
	ThreadID string `json:"threadId"`
}
