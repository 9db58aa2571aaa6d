package tutor

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	model "github.com/zhouzirui/z-notes/internal/model/tutor"
)

func TestHTTPTransportStreamsIntoSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ChatPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("unexpected Accept header %q", got)
		}
		var req model.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.ProjectID != "biology" || req.Message != "hi" {
			t.Errorf("unexpected body %#v", req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		payload := frames(
			model.Event{Type: model.EventStep, Content: "Let me think about that for a bit.", ThreadID: "t1"},
			model.Event{Type: model.EventFinal, Content: "Hello!", ThreadID: "t1"},
		)
		// Deliver in uneven fragments to exercise reassembly.
		for len(payload) > 0 {
			n := 7
			if n > len(payload) {
				n = len(payload)
			}
			_, _ = w.Write([]byte(payload[:n]))
			flusher.Flush()
			payload = payload[n:]
		}
	}))
	defer server.Close()

	session := NewSession(Options{
		Transport: NewHTTPTransport(server.URL+"/", server.Client()),
		Pacing:    -1,
	})
	session.BindProject("biology")

	if err := session.Submit(t.Context(), "hi"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	snap := session.Snapshot()
	if len(snap.Messages) != 3 || snap.Messages[2].Content != "Hello!" {
		t.Fatalf("unexpected transcript: %#v", snap.Messages)
	}
	if snap.State != StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
}

func TestHTTPTransportNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"project_id is required"}`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL, server.Client())
	_, err := transport.Open(t.Context(), model.ChatRequest{Message: "hi"})

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.StatusCode != http.StatusBadRequest || transportErr.Message != "project_id is required" {
		t.Fatalf("unexpected error: %#v", transportErr)
	}
}

func TestHTTPTransportDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPTransport(url, nil).Open(t.Context(), model.ChatRequest{Message: "hi"})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.StatusCode != 0 || transportErr.Err == nil {
		t.Fatalf("expected dial TransportError, got %v", err)
	}
}
