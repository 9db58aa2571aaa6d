package tutor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	model "github.com/zhouzirui/z-notes/internal/model/tutor"
)

const (
	// DefaultPacing separates consecutive step events so they read as a
	// progression instead of arriving at once.
	DefaultPacing = 100 * time.Millisecond

	// FallbackReply is the single user-visible rendering of every transport
	// or stream failure.
	FallbackReply = "I'm experiencing technical difficulties. Please try again later!"
)

// State is the position of a Session in the turn-taking protocol.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingConsent
	StateResolvingConsent
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingConsent:
		return "awaiting_consent"
	case StateResolvingConsent:
		return "resolving_consent"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	State          State
	Messages       []model.Message
	Thinking       bool
	PendingConsent *model.PendingConsent
}

// Options configures a Session. Only Transport is required.
type Options struct {
	Transport Transport
	Sink      DocumentSink
	Logger    *zap.Logger

	// Pacing is the delay after each step event. Zero selects DefaultPacing,
	// a negative value disables it.
	Pacing time.Duration

	IDs   func() string
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	// OnChange receives a fresh snapshot after every transition. It is called
	// without the session lock held.
	OnChange func(Snapshot)
}

// Session runs the chat turn protocol against a Transport: one user turn or
// consent resolution at a time, interrupted by consent gates.
type Session struct {
	transport Transport
	sink      DocumentSink
	logger    *zap.Logger
	pacing    time.Duration
	newID     func() string
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	onChange  func(Snapshot)

	// sinkMu orders note appends against Reset and Close.
	sinkMu sync.Mutex

	mu             sync.Mutex
	state          State
	messages       []model.Message
	thinking       bool
	pending        *model.PendingConsent
	consentProject string
	projectID      string
	selection      string
	generation     uint64
	cancel         context.CancelFunc
	closed         bool
}

type turn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
}

// NewSession builds an idle session with an empty transcript.
func NewSession(opts Options) *Session {
	s := &Session{
		transport: opts.Transport,
		sink:      opts.Sink,
		logger:    opts.Logger,
		pacing:    opts.Pacing,
		newID:     opts.IDs,
		now:       opts.Clock,
		sleep:     opts.Sleep,
		onChange:  opts.OnChange,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.pacing == 0 {
		s.pacing = DefaultPacing
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	return s
}

// BindProject sets the project that subsequent turns are about. An empty id
// unbinds it.
func (s *Session) BindProject(projectID string) {
	s.mu.Lock()
	s.projectID = strings.TrimSpace(projectID)
	s.mu.Unlock()
}

// SetSelection sets the highlighted text sent with the next turn. An empty
// string sends null.
func (s *Session) SetSelection(text string) {
	s.mu.Lock()
	s.selection = text
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Submit sends a new user turn and blocks until the turn ends. It returns an
// error only when the turn is rejected up front; delivery failures are
// rendered into the transcript instead.
func (s *Session) Submit(ctx context.Context, text string) error {
	s.mu.Lock()
	if err := s.checkSubmitLocked(text); err != nil {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("chat submit rejected", zap.String("state", state.String()), zap.Error(err))
		return err
	}

	history := BuildHistory(s.messages, HistoryWindow)
	s.appendLocked(model.RoleUser, text, "")
	s.thinking = true
	s.state = StateSending

	req := model.ChatRequest{
		Message:             text,
		ProjectID:           s.projectID,
		ConversationHistory: history,
		HighlightedText:     optionalString(s.selection),
	}
	projectID := s.projectID
	t := s.beginTurnLocked(ctx)
	s.mu.Unlock()
	s.notify()

	s.run(t, req, projectID, false)
	return nil
}

// Resolve answers the pending consent prompt and blocks until the
// continuation ends.
func (s *Session) Resolve(ctx context.Context, decision model.Decision) error {
	if !decision.Valid() {
		return ErrInvalidDecision
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.pending == nil || s.state != StateAwaitingConsent {
		s.mu.Unlock()
		return ErrNoPendingConsent
	}

	projectID := s.consentProject
	req := model.ChatRequest{
		Message:             "",
		ProjectID:           projectID,
		ThreadID:            s.pending.ThreadID,
		ConversationHistory: []model.HistoryEntry{},
		HighlightedText:     nil,
		HITLInput:           &model.HITLInput{Content: decision},
	}
	s.state = StateResolvingConsent
	s.thinking = true
	t := s.beginTurnLocked(ctx)
	s.mu.Unlock()
	s.notify()

	s.logger.Info("resolving consent",
		zap.String("thread_id", req.ThreadID),
		zap.String("decision", string(decision)),
	)
	s.run(t, req, projectID, true)
	return nil
}

// Close cancels any in-flight stream and rejects further turns. Events that
// arrive for the cancelled stream are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.invalidateLocked()
	s.mu.Unlock()
	s.waitForSink()
}

// Reset cancels any in-flight stream and starts a new, empty conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	s.invalidateLocked()
	s.messages = nil
	s.pending = nil
	s.consentProject = ""
	s.thinking = false
	s.state = StateIdle
	s.mu.Unlock()
	s.waitForSink()
	s.notify()
}

// waitForSink returns once an append that began before the latest
// invalidation has finished.
func (s *Session) waitForSink() {
	s.sinkMu.Lock()
	s.sinkMu.Unlock()
}

func (s *Session) checkSubmitLocked(text string) error {
	switch {
	case s.closed:
		return ErrClosed
	case strings.TrimSpace(text) == "":
		return ErrBlankMessage
	case s.projectID == "":
		return ErrNoProject
	case s.pending != nil:
		return ErrConsentPending
	case s.state != StateIdle:
		return ErrBusy
	}
	return nil
}

func (s *Session) beginTurnLocked(parent context.Context) turn {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return turn{ctx: ctx, cancel: cancel, generation: s.generation}
}

func (s *Session) invalidateLocked() {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.thinking = false
	s.state = StateIdle
}

func (s *Session) currentLocked(t turn) bool {
	return !s.closed && t.generation == s.generation
}

// run drives one stream to its end. The lock is only taken per event.
func (s *Session) run(t turn, req model.ChatRequest, projectID string, resolving bool) {
	defer t.cancel()

	body, err := s.transport.Open(t.ctx, req)
	if err != nil {
		s.fail(t, err)
		return
	}
	defer body.Close()

	if resolving {
		s.mu.Lock()
		if s.currentLocked(t) {
			s.pending = nil
			s.consentProject = ""
		}
		s.mu.Unlock()
		s.notify()
	}

	decoder := NewDecoder(body, NewFrameParser(s.logger))
	for {
		event, err := decoder.Next(t.ctx)
		if errors.Is(err, io.EOF) {
			s.finish(t)
			return
		}
		if err != nil {
			s.fail(t, err)
			return
		}

		done, pace := s.handle(t, event, projectID)
		if done {
			return
		}
		if pace && s.pacing > 0 {
			if err := s.sleep(t.ctx, s.pacing); err != nil {
				s.fail(t, err)
				return
			}
		}
	}
}

// handle applies one event. done reports that the stream should no longer be
// read; pace reports that the pacing delay applies.
func (s *Session) handle(t turn, event model.Event, projectID string) (done, pace bool) {
	s.mu.Lock()
	if !s.currentLocked(t) {
		s.mu.Unlock()
		s.logger.Debug("discarding event for stale turn", zap.String("type", string(event.Type)))
		return true, false
	}

	switch event.Type {
	case model.EventNote:
		sink := s.sink
		s.mu.Unlock()
		if sink == nil {
			s.logger.Warn("note event without a document sink", zap.String("thread_id", event.ThreadID))
			return false, false
		}
		if !s.appendNote(t, sink, event.Content) {
			s.logger.Debug("discarding note for stale turn", zap.String("thread_id", event.ThreadID))
			return true, false
		}
		return false, false

	case model.EventConsent:
		s.appendLocked(model.RoleConsentRequest, event.Content, event.ThreadID)
		s.pending = &model.PendingConsent{Prompt: event.Content, ThreadID: event.ThreadID}
		s.consentProject = projectID
		s.thinking = false
		s.state = StateAwaitingConsent
		s.mu.Unlock()
		s.notify()
		return true, false

	case model.EventFinal:
		s.appendLocked(model.RoleAssistant, event.Content, event.ThreadID)
		s.thinking = false
		s.state = StateIdle
		s.mu.Unlock()
		s.notify()
		return true, false

	default:
		if !event.Type.Known() {
			s.logger.Warn("unrecognized stream event type",
				zap.String("kind", "protocol_violation"),
				zap.String("type", string(event.Type)),
			)
		}
		s.appendLocked(model.RoleAssistant, event.Content, event.ThreadID)
		s.mu.Unlock()
		s.notify()
		return false, true
	}
}

// appendNote writes content to sink unless the turn was invalidated first.
func (s *Session) appendNote(t turn, sink DocumentSink, content string) bool {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()

	s.mu.Lock()
	current := s.currentLocked(t)
	s.mu.Unlock()
	if !current {
		return false
	}
	sink.Append(content)
	return true
}

// finish handles a stream that closed without a terminal event.
func (s *Session) finish(t turn) {
	s.mu.Lock()
	if !s.currentLocked(t) {
		s.mu.Unlock()
		return
	}
	s.thinking = false
	s.state = StateIdle
	s.mu.Unlock()
	s.notify()
}

func (s *Session) fail(t turn, err error) {
	s.mu.Lock()
	if !s.currentLocked(t) {
		s.mu.Unlock()
		return
	}

	if errors.Is(err, context.Canceled) {
		s.thinking = false
		s.state = StateIdle
		if s.pending != nil {
			// The decision was not delivered; the prompt is still open.
			s.state = StateAwaitingConsent
		}
		s.mu.Unlock()
		s.logger.Info("chat turn cancelled")
		s.notify()
		return
	}

	s.appendLocked(model.RoleAssistant, FallbackReply, "")
	s.thinking = false
	s.pending = nil
	s.consentProject = ""
	s.state = StateIdle
	s.mu.Unlock()

	var transportErr *TransportError
	switch {
	case errors.As(err, &transportErr) && transportErr.StatusCode != 0:
		s.logger.Warn("chat request rejected",
			zap.String("kind", "transport_error"),
			zap.Int("status", transportErr.StatusCode),
			zap.String("message", transportErr.Message),
		)
	case errors.As(err, &transportErr):
		s.logger.Error("chat request failed", zap.String("kind", "transport_error"), zap.Error(err))
	default:
		s.logger.Error("chat stream interrupted", zap.String("kind", "stream_read_error"), zap.Error(err))
	}
	s.notify()
}

func (s *Session) appendLocked(role model.Role, content, threadID string) {
	s.messages = append(s.messages, model.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
		ThreadID:  threadID,
	})
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:    s.state,
		Messages: append([]model.Message(nil), s.messages...),
		Thinking: s.thinking,
	}
	if s.pending != nil {
		pending := *s.pending
		snap.PendingConsent = &pending
	}
	return snap
}

func (s *Session) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Snapshot())
}

func optionalString(text string) *string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return &text
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
