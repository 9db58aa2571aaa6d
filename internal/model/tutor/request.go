package tutor

// Decision is the user's answer to a consent prompt.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether d is approve or reject.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// HistoryEntry is one {role, content} pair of the outbound context window.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HITLInput carries a consent decision back to the server.
type HITLInput struct {
	Content Decision `json:"content"`
}

// ChatRequest is the body of POST /api/v1/ai-tutor/chat.
type ChatRequest struct {
	Message             string         `json:"message"`
	ProjectID           string         `json:"project_id"`
	ThreadID            string         `json:"thread_id,omitempty"`
	ConversationHistory []HistoryEntry `json:"conversation_history"`
	HighlightedText     *string        `json:"highlighted_text"`
	HITLInput           *HITLInput     `json:"hitl_input,omitempty"`
}

// IsConsentResolution reports whether the request answers a consent prompt
// rather than starting a new turn.
func (r ChatRequest) IsConsentResolution() bool {
	return r.HITLInput != nil
}
