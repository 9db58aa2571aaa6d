// Package document holds the note currently open in the terminal client.
package document

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-notes/internal/model/project"
)

var ErrNoDocument = errors.New("no document is open")

// Files loads and stores notes.
type Files interface {
	OpenFile(ctx context.Context, projectID, fileID string) (project.File, error)
	SaveFile(ctx context.Context, projectID, fileID, content string) (project.File, error)
}

// State is a copy of the document for rendering.
type State struct {
	Open      bool
	ProjectID string
	FileID    string
	Path      string
	Content   string
	Unsaved   bool
	// Revision increases on every append; a view scrolls to the end when it
	// sees a new value.
	Revision int
}

// Document is the open note. It is safe for concurrent use; notes streamed
// by the tutor are appended from the chat goroutine.
type Document struct {
	files    Files
	logger   *zap.Logger
	onChange func()

	mu    sync.Mutex
	state State
}

// New creates a document with nothing open. onChange may be nil.
func New(files Files, logger *zap.Logger, onChange func()) *Document {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Document{files: files, logger: logger, onChange: onChange}
}

// Open loads a note and replaces the current document.
func (d *Document) Open(ctx context.Context, projectID, fileID string) error {
	f, err := d.files.OpenFile(ctx, projectID, fileID)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.state = State{
		Open:      true,
		ProjectID: projectID,
		FileID:    f.Name,
		Path:      f.Path,
		Content:   f.Content,
		Revision:  d.state.Revision,
	}
	d.mu.Unlock()

	d.logger.Info("document opened", zap.String("path", f.Path))
	d.notify()
	return nil
}

// Append adds markdown at the end of the document, separated from existing
// text by a blank line. It does nothing when no document is open.
func (d *Document) Append(content string) {
	d.mu.Lock()
	if !d.state.Open {
		d.mu.Unlock()
		d.logger.Warn("note dropped, no document open", zap.Int("bytes", len(content)))
		return
	}
	d.state.Content = join(d.state.Content, content)
	d.state.Unsaved = true
	d.state.Revision++
	d.mu.Unlock()

	d.notify()
}

// Save writes the document back to its project.
func (d *Document) Save(ctx context.Context) error {
	d.mu.Lock()
	if !d.state.Open {
		d.mu.Unlock()
		return ErrNoDocument
	}
	projectID, fileID, content := d.state.ProjectID, d.state.FileID, d.state.Content
	d.mu.Unlock()

	if _, err := d.files.SaveFile(ctx, projectID, fileID, content); err != nil {
		return err
	}

	d.mu.Lock()
	// Appends that landed during the save keep the document dirty.
	if d.state.Open && d.state.FileID == fileID && d.state.Content == content {
		d.state.Unsaved = false
	}
	d.mu.Unlock()

	d.logger.Info("document saved", zap.String("project_id", projectID), zap.String("file_id", fileID))
	d.notify()
	return nil
}

// State returns a copy of the document.
func (d *Document) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastParagraph returns the final non-empty block of the document. The
// terminal client sends it as highlighted text.
func (d *Document) LastParagraph() string {
	d.mu.Lock()
	content := d.state.Content
	d.mu.Unlock()

	blocks := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")
	for i := len(blocks) - 1; i >= 0; i-- {
		if block := strings.TrimSpace(blocks[i]); block != "" {
			return block
		}
	}
	return ""
}

func (d *Document) notify() {
	if d.onChange != nil {
		d.onChange()
	}
}

func join(existing, addition string) string {
	addition = strings.TrimLeft(addition, "\n")
	switch {
	case strings.TrimSpace(existing) == "":
		return addition
	case strings.HasSuffix(existing, "\n\n"):
		return existing + addition
	case strings.HasSuffix(existing, "\n"):
		return existing + "\n" + addition
	default:
		return existing + "\n\n" + addition
	}
}
