package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-notes/internal/client/document"
	clienttutor "github.com/zhouzirui/z-notes/internal/client/tutor"
	"github.com/zhouzirui/z-notes/internal/model/project"
	tutormodel "github.com/zhouzirui/z-notes/internal/model/tutor"
)

const (
	glamourStyle = "dark"
	inputHeight  = 3
)

// Chat is the tutor conversation driven by the view.
type Chat interface {
	Submit(ctx context.Context, text string) error
	Resolve(ctx context.Context, decision tutormodel.Decision) error
	Snapshot() clienttutor.Snapshot
	BindProject(projectID string)
	SetSelection(text string)
	Reset()
}

// Document is the open note.
type Document interface {
	Open(ctx context.Context, projectID, fileID string) error
	State() document.State
	Save(ctx context.Context) error
	LastParagraph() string
}

// Workspace reports which project and note are active.
type Workspace interface {
	Config(ctx context.Context) (project.WorkspaceConfig, error)
}

// SessionChangedMsg carries a chat snapshot into the event loop.
type SessionChangedMsg struct {
	Snapshot clienttutor.Snapshot
}

// DocumentChangedMsg tells the view to re-read the document.
type DocumentChangedMsg struct{}

type loadedMsg struct {
	projectID string
	fileID    string
	err       error
}

type chatDoneMsg struct {
	text string
	err  error
}

type savedMsg struct{ err error }

type renderedMsg struct {
	nonce    int
	revision int
	out      string
}

type Model struct {
	ctx       context.Context
	chat      Chat
	doc       Document
	workspace Workspace
	logger    *zap.Logger

	docView  viewport.Model
	chatView viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	width  int
	height int

	snapshot         clienttutor.Snapshot
	docState         document.State
	renderNonce      int
	scrolledRevision int
	useSelection     bool
	projectID        string

	status string
	err    error
}

func NewModel(ctx context.Context, chat Chat, doc Document, workspace Workspace, logger *zap.Logger) Model {
	if logger == nil {
		logger = zap.NewNop()
	}

	ta := textarea.New()
	ta.Placeholder = "Ask the tutor..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	docView := viewport.New(60, 20)
	docView.SetContent("Loading workspace...")

	return Model{
		ctx:       ctx,
		chat:      chat,
		doc:       doc,
		workspace: workspace,
		logger:    logger,
		docView:   docView,
		chatView:  viewport.New(40, 20),
		input:     ta,
		spinner:   sp,
		help:      help.New(),
		keys:      defaultKeys(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textarea.Blink, m.loadCmd())
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		cfg, err := m.workspace.Config(m.ctx)
		if err != nil {
			return loadedMsg{err: err}
		}

		var msg loadedMsg
		if cfg.ActiveProjectID != nil {
			msg.projectID = *cfg.ActiveProjectID
		}
		if cfg.ActiveFilePath == nil {
			return msg
		}
		projectID, fileID, ok := splitNotePath(*cfg.ActiveFilePath)
		if !ok {
			msg.err = fmt.Errorf("unrecognized active file %q", *cfg.ActiveFilePath)
			return msg
		}
		if msg.projectID == "" {
			msg.projectID = projectID
		}
		if err := m.doc.Open(m.ctx, projectID, fileID); err != nil {
			msg.err = err
			return msg
		}
		msg.fileID = fileID
		return msg
	}
}

func (m Model) submitCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return chatDoneMsg{text: text, err: m.chat.Submit(m.ctx, text)}
	}
}

func (m Model) resolveCmd(decision tutormodel.Decision) tea.Cmd {
	return func() tea.Msg {
		return chatDoneMsg{err: m.chat.Resolve(m.ctx, decision)}
	}
}

func (m Model) saveCmd() tea.Cmd {
	return func() tea.Msg {
		return savedMsg{err: m.doc.Save(m.ctx)}
	}
}

// renderCmd renders the document with glamour off the event loop. Results
// from superseded renders are dropped by nonce.
func (m *Model) renderCmd() tea.Cmd {
	if !m.docState.Open {
		m.docView.SetContent("No note open.\n\nStart with -project and -file to pick one.")
		return nil
	}

	m.renderNonce++
	nonce := m.renderNonce
	revision := m.docState.Revision
	content := m.docState.Content
	wrap := m.docView.Width - 2
	if wrap < 20 {
		wrap = 20
	}

	return func() tea.Msg {
		out := content
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(glamourStyle),
			glamour.WithWordWrap(wrap),
		)
		if err == nil {
			if rendered, renderErr := r.Render(content); renderErr == nil {
				out = rendered
			}
		}
		return renderedMsg{nonce: nonce, revision: revision, out: out}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refreshTranscript()
		return m, m.renderCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SessionChangedMsg:
		m.snapshot = msg.Snapshot
		m.refreshTranscript()
		if m.awaitingConsent() {
			m.input.Blur()
			return m, nil
		}
		return m, m.input.Focus()

	case DocumentChangedMsg:
		m.docState = m.doc.State()
		return m, m.renderCmd()

	case renderedMsg:
		if msg.nonce != m.renderNonce {
			return m, nil
		}
		m.docView.SetContent(msg.out)
		if msg.revision > m.scrolledRevision {
			m.docView.GotoBottom()
			m.scrolledRevision = msg.revision
		}
		return m, nil

	case loadedMsg:
		m.err = msg.err
		m.projectID = msg.projectID
		m.chat.BindProject(msg.projectID)
		switch {
		case msg.err != nil:
			m.status = "Could not load workspace"
			m.logger.Warn("workspace load failed", zap.Error(msg.err))
		case msg.projectID == "":
			m.status = "No active project"
		default:
			m.status = "Project " + msg.projectID
		}
		m.docState = m.doc.State()
		m.scrolledRevision = m.docState.Revision
		return m, m.renderCmd()

	case chatDoneMsg:
		if msg.err == nil {
			return m, nil
		}
		m.err = nil
		m.status = describeChatError(msg.err)
		if msg.text != "" && m.input.Value() == "" {
			m.input.SetValue(msg.text)
		}
		return m, nil

	case savedMsg:
		m.err = msg.err
		if msg.err != nil {
			m.status = "Save failed"
			m.logger.Warn("document save failed", zap.Error(msg.err))
		} else {
			m.status = "Saved"
		}
		m.docState = m.doc.State()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Save):
		return m, m.saveCmd()
	case key.Matches(msg, m.keys.Selection):
		m.useSelection = !m.useSelection
		m.syncSelection()
		return m, nil
	case key.Matches(msg, m.keys.NewChat):
		m.chat.Reset()
		m.status = "New conversation"
		return m, nil
	case key.Matches(msg, m.keys.DocUp):
		m.docView.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.DocDown):
		m.docView.HalfViewDown()
		return m, nil
	}

	if m.awaitingConsent() {
		switch {
		case key.Matches(msg, m.keys.Approve):
			return m, m.resolveCmd(tutormodel.DecisionApprove)
		case key.Matches(msg, m.keys.Reject):
			return m, m.resolveCmd(tutormodel.DecisionReject)
		}
		return m, nil
	}

	if key.Matches(msg, m.keys.Send) {
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.syncSelection()
		m.input.Reset()
		m.status = ""
		m.err = nil
		return m, m.submitCmd(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// syncSelection sends the document's last paragraph as highlighted text
// while selection mode is on.
func (m *Model) syncSelection() {
	if m.useSelection {
		m.chat.SetSelection(m.doc.LastParagraph())
		return
	}
	m.chat.SetSelection("")
}

func (m Model) awaitingConsent() bool {
	return m.snapshot.PendingConsent != nil && m.snapshot.State == clienttutor.StateAwaitingConsent
}

func (m *Model) refreshTranscript() {
	width := m.chatView.Width
	if width < 10 {
		width = 10
	}
	wrap := lipgloss.NewStyle().Width(width)

	blocks := make([]string, 0, len(m.snapshot.Messages))
	for _, msg := range m.snapshot.Messages {
		switch msg.Role {
		case tutormodel.RoleUser:
			blocks = append(blocks, userStyle.Render("You")+"\n"+wrap.Render(msg.Content))
		case tutormodel.RoleConsentRequest:
			blocks = append(blocks, consentStyle.Width(width-2).Render(msg.Content))
		default:
			blocks = append(blocks, assistantStyle.Render("Tutor")+"\n"+wrap.Render(msg.Content))
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, statusStyle.Render("Ask about your notes, or ask me to add something to them."))
	}
	m.chatView.SetContent(strings.Join(blocks, "\n\n"))
	m.chatView.GotoBottom()
}

func (m Model) paneWidths() (int, int) {
	left := m.width * 3 / 5
	if left < 30 {
		left = 30
	}
	right := m.width - left
	if right < 24 {
		right = 24
	}
	return left, right
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	left, right := m.paneWidths()

	bodyHeight := m.height - 2
	if bodyHeight < 10 {
		bodyHeight = 10
	}

	m.docView.Width = left - 4
	m.docView.Height = bodyHeight - 2

	m.chatView.Width = right - 4
	m.chatView.Height = bodyHeight - 2 - inputHeight - 2
	if m.chatView.Height < 3 {
		m.chatView.Height = 3
	}
	m.input.SetWidth(right - 4)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	left, right := m.paneWidths()
	height := m.height - 2

	docPane := panelStyle(false).Width(left - 2).Height(height - 2).Render(m.docView.View())
	chatPane := panelStyle(true).Width(right - 2).Height(height - 2).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatView.View(),
			m.thinkingLine(),
			m.inputView(),
		),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusLine(),
		lipgloss.JoinHorizontal(lipgloss.Top, docPane, chatPane),
		m.help.View(m.keys),
	)
}

func (m Model) thinkingLine() string {
	if !m.snapshot.Thinking {
		return ""
	}
	return m.spinner.View() + statusStyle.Render(" thinking...")
}

func (m Model) inputView() string {
	if m.awaitingConsent() {
		return consentBarStyle.Render("Add this to your note? [y] yes  [n] no")
	}
	return m.input.View()
}

func (m Model) statusLine() string {
	parts := []string{}
	if m.projectID != "" {
		parts = append(parts, "project="+m.projectID)
	}
	if m.docState.Open {
		file := m.docState.Path
		if m.docState.Unsaved {
			file += " *"
		}
		parts = append(parts, "file="+file)
	}
	if m.useSelection {
		parts = append(parts, "[selection]")
	}
	line := statusStyle.Render(strings.Join(parts, "  "))
	if m.status != "" {
		if m.err != nil {
			line += "  " + errorStyle.Render(m.status+": "+m.err.Error())
		} else {
			line += "  " + statusStyle.Render(m.status)
		}
	}
	return line
}

func describeChatError(err error) string {
	switch {
	case errors.Is(err, clienttutor.ErrNoProject):
		return "No active project; start with -project"
	case errors.Is(err, clienttutor.ErrBusy):
		return "The tutor is still answering"
	case errors.Is(err, clienttutor.ErrConsentPending):
		return "Answer the pending question first (y/n)"
	case errors.Is(err, clienttutor.ErrClosed):
		return "Chat closed"
	default:
		return err.Error()
	}
}

// splitNotePath turns "Project/note.md" into its project and file ids.
func splitNotePath(p string) (projectID, fileID string, ok bool) {
	projectID, rest, found := strings.Cut(strings.Trim(p, "/"), "/")
	if !found || projectID == "" || rest == "" || strings.Contains(rest, "/") {
		return "", "", false
	}
	return projectID, strings.TrimSuffix(rest, ".md"), true
}
