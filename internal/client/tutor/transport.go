package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	model "github.com/zhouzirui/z-notes/internal/model/tutor"
)

// ChatPath is the tutor chat endpoint relative to the API base URL.
const ChatPath = "/api/v1/ai-tutor/chat"

const maxErrorBody = 4 * 1024

// Transport opens one streaming chat request.
type Transport interface {
	Open(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error)
}

// HTTPTransport posts chat requests to the notes API.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport targets baseURL. A nil client gets one without a timeout,
// since the response body stays open for the whole turn.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		endpoint: strings.TrimRight(baseURL, "/") + ChatPath,
		client:   client,
	}
}

// Open sends req and returns the event stream body once the server accepts it.
func (t *HTTPTransport) Open(ctx context.Context, req model.ChatRequest) (io.ReadCloser, error) {
	if req.ConversationHistory == nil {
		req.ConversationHistory = []model.HistoryEntry{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}
	return resp.Body, nil
}

// errorMessage extracts the "error" field of a JSON error body, falling back
// to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
