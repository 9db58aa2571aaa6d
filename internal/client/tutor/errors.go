package tutor

import (
	"errors"
	"fmt"
)

var (
	ErrBlankMessage     = errors.New("message is blank")
	ErrNoProject        = errors.New("no active project")
	ErrBusy             = errors.New("assistant is still answering")
	ErrConsentPending   = errors.New("a consent decision is pending")
	ErrNoPendingConsent = errors.New("no consent decision is pending")
	ErrInvalidDecision  = errors.New("decision must be approve or reject")
	ErrClosed           = errors.New("chat session closed")
)

// TransportError means the chat request could not be sent or was answered
// with a non-success status.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Message != "" {
			return fmt.Sprintf("chat request failed: status=%d: %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("chat request failed: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("chat request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StreamCorruptionError is one payload line that is not valid JSON.
type StreamCorruptionError struct {
	Payload string
	Err     error
}

func (e *StreamCorruptionError) Error() string {
	return fmt.Sprintf("decode stream payload: %v", e.Err)
}

func (e *StreamCorruptionError) Unwrap() error {
	return e.Err
}
