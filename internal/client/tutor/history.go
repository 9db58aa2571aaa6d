package tutor

import (
	model "github.com/zhouzirui/z-notes/internal/model/tutor"
)

// HistoryWindow is the number of most recent user turns sent as context.
const HistoryWindow = 5

// BuildHistory returns the context window for the next request: the complete
// exchanges of the last window user turns, oldest first. Consent prompts are
// not conversational turns and are left out.
func BuildHistory(messages []model.Message, window int) []model.HistoryEntry {
	history := make([]model.HistoryEntry, 0)
	if window <= 0 || len(messages) == 0 {
		return history
	}

	start := 0
	users := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != model.RoleUser {
			continue
		}
		users++
		if users == window {
			start = i
			break
		}
	}
	if users < window {
		// Fewer user turns than the window: everything is in range.
		start = 0
	}

	for _, msg := range messages[start:] {
		switch msg.Role {
		case model.RoleUser:
			history = append(history, model.HistoryEntry{Role: "user", Content: msg.Content})
		case model.RoleConsentRequest:
			continue
		default:
			history = append(history, model.HistoryEntry{Role: "assistant", Content: msg.Content})
		}
	}
	return history
}
