package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-notes/internal/analysis/intent"
	"github.com/zhouzirui/z-notes/internal/model/project"
	tutormodel "github.com/zhouzirui/z-notes/internal/model/tutor"
	projectsvc "github.com/zhouzirui/z-notes/internal/service/project"
)

// Fixed progress and outcome messages of the tutor workflow.
const (
	StepThinking       = "Let me think about that for a bit."
	StepSearching      = "Searching your project files..."
	StepNoFiles        = "No relevant files found in your project."
	StepSearchFailed   = "Had trouble searching files, but I'll do my best to help."
	StepGeneratingNote = "Let me generate some information for your note..."
	StepNoteGenerated  = "Note content generated."
	FinalNoteAdded     = "Successfully edited note!"
	FinalCancelled     = "Operation cancelled by user."
	FinalModelFailed   = "Sorry, I couldn't reach the language model. Please try again later."
)

var (
	ErrEmptyMessage    = errors.New("message is required")
	ErrProjectRequired = errors.New("project_id is required")
	ErrThreadRequired  = errors.New("thread_id is required to resolve a consent prompt")
	ErrInvalidDecision = errors.New("hitl_input.content must be approve or reject")
)

// Notes is the part of the project store the workflow reads from.
type Notes interface {
	GetProject(ctx context.Context, id string) (project.Project, error)
	Search(ctx context.Context, projectID string, terms []string, limit int) (projectsvc.SearchResult, error)
	ActiveFile(ctx context.Context) (*string, error)
	OpenPath(ctx context.Context, rel string) (project.File, error)
}

// Emitter delivers one event to the client. An error stops the workflow.
type Emitter func(event tutormodel.Event) error

// Config tunes the workflow.
type Config struct {
	// IntentLLMEnabled asks the model to classify queries before falling back
	// to keyword heuristics.
	IntentLLMEnabled bool
	SearchLimit      int
}

// Workflow answers tutor chat turns: it classifies the query, then searches
// notes, drafts a note behind a consent prompt, or answers directly.
type Workflow struct {
	generator Generator
	notes     Notes
	threads   ThreadStore
	logger    *zap.Logger
	cfg       Config
	newID     func() string
}

// NewWorkflow wires the workflow to its collaborators.
func NewWorkflow(generator Generator, notes Notes, threads ThreadStore, logger *zap.Logger, cfg Config) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threads == nil {
		threads = NewMemoryThreadStore(DefaultThreadTTL)
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = projectsvc.DefaultSearchLimit
	}
	return &Workflow{
		generator: generator,
		notes:     notes,
		threads:   threads,
		logger:    logger,
		cfg:       cfg,
		newID:     uuid.NewString,
	}
}

// Turn is a validated request ready to stream.
type Turn struct {
	w        *Workflow
	req      tutormodel.ChatRequest
	threadID string
	resumed  *PendingThread
}

// ThreadID identifies the turn; every emitted event carries it.
func (t *Turn) ThreadID() string {
	return t.threadID
}

// Prepare validates req. Resolving a consent prompt claims its suspended
// thread, so a thread can be resolved only once.
func (w *Workflow) Prepare(ctx context.Context, req tutormodel.ChatRequest) (*Turn, error) {
	if req.IsConsentResolution() {
		if strings.TrimSpace(req.ThreadID) == "" {
			return nil, ErrThreadRequired
		}
		if !req.HITLInput.Content.Valid() {
			return nil, ErrInvalidDecision
		}
		thread, err := w.threads.Take(ctx, req.ThreadID)
		if err != nil {
			return nil, err
		}
		return &Turn{w: w, req: req, threadID: thread.ID, resumed: &thread}, nil
	}

	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, ErrProjectRequired
	}
	if _, err := w.notes.GetProject(ctx, req.ProjectID); err != nil {
		return nil, err
	}
	return &Turn{w: w, req: req, threadID: w.newID()}, nil
}

// Run prepares and runs one request.
func (w *Workflow) Run(ctx context.Context, req tutormodel.ChatRequest, emit Emitter) error {
	turn, err := w.Prepare(ctx, req)
	if err != nil {
		return err
	}
	return turn.Run(ctx, emit)
}

// Run streams the turn's events through emit.
func (t *Turn) Run(ctx context.Context, emit Emitter) error {
	if t.resumed != nil {
		return t.resume(emit)
	}

	decision := t.w.analyze(ctx, t.req)
	t.w.logger.Info("tutor turn started",
		zap.String("thread_id", t.threadID),
		zap.String("project_id", t.req.ProjectID),
		zap.String("query_type", string(decision.Type)),
	)

	switch decision.Type {
	case intent.Search:
		return t.search(ctx, emit, decision.Keywords)
	case intent.AddToNote:
		return t.draftNote(ctx, emit)
	default:
		if err := t.emit(emit, tutormodel.EventStep, StepThinking); err != nil {
			return err
		}
		return t.answer(ctx, emit, "")
	}
}

func (t *Turn) resume(emit Emitter) error {
	decision := t.req.HITLInput.Content
	t.w.logger.Info("resuming tutor thread",
		zap.String("thread_id", t.threadID),
		zap.String("decision", string(decision)),
	)

	if decision != tutormodel.DecisionApprove {
		return t.emit(emit, tutormodel.EventFinal, FinalCancelled)
	}
	if err := t.emit(emit, tutormodel.EventNote, t.resumed.Note); err != nil {
		return err
	}
	return t.emit(emit, tutormodel.EventFinal, FinalNoteAdded)
}

func (t *Turn) search(ctx context.Context, emit Emitter, keywords []string) error {
	if err := t.emit(emit, tutormodel.EventStep, StepSearching); err != nil {
		return err
	}

	files := ""
	result, err := t.w.notes.Search(ctx, t.req.ProjectID, keywords, t.w.cfg.SearchLimit)
	switch {
	case err != nil:
		t.w.logger.Warn("note search failed", zap.String("thread_id", t.threadID), zap.Error(err))
		if err := t.emit(emit, tutormodel.EventStep, StepSearchFailed); err != nil {
			return err
		}
	case result.Total > 0:
		msg := fmt.Sprintf("Found %d relevant file(s). Analyzing the content...", result.Total)
		if err := t.emit(emit, tutormodel.EventStep, msg); err != nil {
			return err
		}
		files = formatHits(result.Hits)
	default:
		if err := t.emit(emit, tutormodel.EventStep, StepNoFiles); err != nil {
			return err
		}
	}

	return t.answer(ctx, emit, files)
}

func (t *Turn) answer(ctx context.Context, emit Emitter, files string) error {
	pc := t.promptContext(ctx)
	pc.Files = files

	reply, err := t.w.generator.Generate(ctx, Prompt{
		Task:    taskAnswer,
		System:  answerSystemPrompt,
		History: t.req.ConversationHistory,
		Query:   answerQuery(pc),
	})
	if err != nil {
		return t.modelFailed(emit, err)
	}
	return t.emit(emit, tutormodel.EventFinal, reply)
}

func (t *Turn) draftNote(ctx context.Context, emit Emitter) error {
	if err := t.emit(emit, tutormodel.EventStep, StepGeneratingNote); err != nil {
		return err
	}

	note, err := t.w.generator.Generate(ctx, Prompt{
		Task:    taskNote,
		System:  noteSystemPrompt,
		History: t.req.ConversationHistory,
		Query:   noteQuery(t.promptContext(ctx)),
	})
	if err != nil {
		return t.modelFailed(emit, err)
	}
	if err := t.emit(emit, tutormodel.EventStep, StepNoteGenerated); err != nil {
		return err
	}

	if err := t.w.threads.Save(ctx, PendingThread{
		ID:        t.threadID,
		ProjectID: t.req.ProjectID,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.w.logger.Error("failed to suspend thread", zap.String("thread_id", t.threadID), zap.Error(err))
		if emitErr := t.emit(emit, tutormodel.EventFinal, FinalModelFailed); emitErr != nil {
			return emitErr
		}
		return err
	}

	prompt := fmt.Sprintf("I've generated the following:\n%s\n===\nDo you want me to add this to your notes?", note)
	return t.emit(emit, tutormodel.EventConsent, prompt)
}

func (t *Turn) modelFailed(emit Emitter, err error) error {
	t.w.logger.Error("model call failed", zap.String("thread_id", t.threadID), zap.Error(err))
	if emitErr := t.emit(emit, tutormodel.EventFinal, FinalModelFailed); emitErr != nil {
		return emitErr
	}
	return err
}

func (t *Turn) emit(emit Emitter, kind tutormodel.EventType, content string) error {
	return emit(tutormodel.Event{Type: kind, Content: content, ThreadID: t.threadID})
}

// promptContext gathers the request text, selection and open note content.
func (t *Turn) promptContext(ctx context.Context) promptContext {
	return promptContext{
		Message:     t.req.Message,
		Highlighted: t.req.HighlightedText,
		ActiveFile:  t.w.activeFileContent(ctx),
	}
}

// analyze classifies the request with the model when enabled, and with
// keyword heuristics otherwise or when the model reply is unusable.
func (w *Workflow) analyze(ctx context.Context, req tutormodel.ChatRequest) intent.Decision {
	if !w.cfg.IntentLLMEnabled {
		return intent.Classify(req.Message)
	}

	reply, err := w.generator.Generate(ctx, Prompt{
		Task:    taskAnalyze,
		System:  analysisSystemPrompt,
		History: req.ConversationHistory,
		Query:   analysisQuery(promptContext{Message: req.Message, Highlighted: req.HighlightedText}),
	})
	if err != nil {
		w.logger.Warn("query analysis failed, using keyword classifier", zap.Error(err))
		return intent.Classify(req.Message)
	}

	decision, err := intent.Parse(reply, req.Message)
	if err != nil {
		w.logger.Warn("unusable query analysis, using keyword classifier",
			zap.String("reply", reply),
			zap.Error(err),
		)
		return intent.Classify(req.Message)
	}
	return decision
}

func (w *Workflow) activeFileContent(ctx context.Context) string {
	path, err := w.notes.ActiveFile(ctx)
	if err != nil || path == nil {
		return ""
	}
	file, err := w.notes.OpenPath(ctx, *path)
	if err != nil {
		w.logger.Debug("active file unreadable", zap.String("path", *path), zap.Error(err))
		return ""
	}
	return file.Content
}
