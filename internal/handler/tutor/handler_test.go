package tutor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	clienttutor "github.com/zhouzirui/z-notes/internal/client/tutor"
	tutormodel "github.com/zhouzirui/z-notes/internal/model/tutor"
	projectsvc "github.com/zhouzirui/z-notes/internal/service/project"
	tutorsvc "github.com/zhouzirui/z-notes/internal/service/tutor"
)

type stubGenerator struct {
	reply string
}

func (s stubGenerator) Generate(context.Context, tutorsvc.Prompt) (string, error) {
	return s.reply, nil
}

func newTestRouter(t *testing.T, workflow *tutorsvc.Workflow) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	New(workflow, nil).RegisterRoutes(r)
	return r
}

func newTestWorkflow(t *testing.T, reply string) *tutorsvc.Workflow {
	t.Helper()
	store, err := projectsvc.NewStore(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	if _, err := store.CreateProject(context.Background(), "Bio"); err != nil {
		t.Fatalf("CreateProject err: %v", err)
	}
	return tutorsvc.NewWorkflow(stubGenerator{reply: reply}, store, nil, nil, tutorsvc.Config{})
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ai-tutor/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeEvents(t *testing.T, body string) []tutormodel.Event {
	t.Helper()
	parser := clienttutor.NewFrameParser(nil)
	parser.Feed(body)
	events := parser.Drain()
	if parser.Pending() != 0 || parser.Dropped() != 0 {
		t.Fatalf("stream not cleanly framed: pending=%d dropped=%d", parser.Pending(), parser.Dropped())
	}
	return events
}

func TestChatWithoutModelIsUnavailable(t *testing.T) {
	rec := post(newTestRouter(t, nil), `{"message":"hi","project_id":"Bio"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestChatRejectsInvalidRequests(t *testing.T) {
	r := newTestRouter(t, newTestWorkflow(t, "unused"))

	cases := map[string]struct {
		body string
		code int
	}{
		"malformed":       {`{"message":`, http.StatusBadRequest},
		"blank message":   {`{"message":"  ","project_id":"Bio"}`, http.StatusBadRequest},
		"no project":      {`{"message":"hi"}`, http.StatusBadRequest},
		"unknown project": {`{"message":"hi","project_id":"Chem"}`, http.StatusNotFound},
		"bad decision":    {`{"thread_id":"t1","hitl_input":{"content":"maybe"}}`, http.StatusBadRequest},
		"no thread":       {`{"hitl_input":{"content":"approve"}}`, http.StatusBadRequest},
		"unknown thread":  {`{"thread_id":"t1","hitl_input":{"content":"approve"}}`, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := post(r, tc.body)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("expected error payload, got %s", rec.Body.String())
			}
		})
	}
}

func TestChatStreamsGeneralAnswer(t *testing.T) {
	r := newTestRouter(t, newTestWorkflow(t, "Photosynthesis turns light into sugar."))

	rec := post(r, `{"message":"Explain photosynthesis","project_id":"Bio","conversation_history":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := decodeEvents(t, rec.Body.String())
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %#v", events)
	}
	if events[0].Type != tutormodel.EventStep || events[0].Content != tutorsvc.StepThinking {
		t.Fatalf("unexpected first event %#v", events[0])
	}
	if events[1].Type != tutormodel.EventFinal || events[1].Content != "Photosynthesis turns light into sugar." {
		t.Fatalf("unexpected final event %#v", events[1])
	}
	if events[0].ThreadID == "" || events[0].ThreadID != events[1].ThreadID {
		t.Fatalf("events must share a thread id: %#v", events)
	}
}

func TestChatConsentRoundTrip(t *testing.T) {
	r := newTestRouter(t, newTestWorkflow(t, "- Chlorophyll absorbs light"))

	rec := post(r, `{"message":"add this to my note","project_id":"Bio"}`)
	events := decodeEvents(t, rec.Body.String())
	last := events[len(events)-1]
	if last.Type != tutormodel.EventConsent || !strings.Contains(last.Content, "- Chlorophyll absorbs light") {
		t.Fatalf("expected consent event, got %#v", events)
	}

	resolve := `{"message":"","project_id":"Bio","thread_id":"` + last.ThreadID + `","hitl_input":{"content":"approve"}}`
	events = decodeEvents(t, post(r, resolve).Body.String())
	if len(events) != 2 {
		t.Fatalf("expected note and final, got %#v", events)
	}
	if events[0].Type != tutormodel.EventNote || events[0].Content != "- Chlorophyll absorbs light" {
		t.Fatalf("unexpected note event %#v", events[0])
	}
	if events[1].Type != tutormodel.EventFinal || events[1].Content != tutorsvc.FinalNoteAdded {
		t.Fatalf("unexpected final event %#v", events[1])
	}

	if rec := post(r, resolve); rec.Code != http.StatusNotFound {
		t.Fatalf("a thread resolves once, got %d", rec.Code)
	}
}
