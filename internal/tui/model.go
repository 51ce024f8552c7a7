package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"imgchat/internal/app"
	"imgchat/internal/chat"
	"imgchat/internal/transport"
)

type focusArea int

const (
	focusSidebar focusArea = iota
	focusInput
	focusChat
)

type (
	sessionMsg struct{ session chat.Session }
	historyMsg struct {
		threads []chat.Thread
		err     error
	}
	sendDoneMsg struct {
		session chat.Session
		content string
		err     error
	}
	uploadDoneMsg struct {
		session chat.Session
		title   string
		err     error
	}
	statusMsg struct {
		status *transport.ServerStatus
		err    error
	}
	deleteDoneMsg struct {
		threads []chat.Thread
		session chat.Session
		err     error
	}
	spinMsg struct{}
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Model is the bubbletea presentation layer over the conversation engine. It
// never mutates session state directly; every action goes through the
// controller and comes back as a snapshot message.
type Model struct {
	app   *app.Application
	theme Theme
	keys  keyMap

	width  int
	height int
	ready  bool
	focus  focusArea

	session    chat.Session
	history    []chat.Thread
	sidebarSel int
	sidebarOff int

	input    textarea.Model
	chatVP   viewport.Model
	markdown *MarkdownRenderer

	uploadMode  bool
	uploadInput textinput.Model

	busy       bool
	statusText string
	serverNote string
	banner     string
	spinnerPos int
}

func New(application *app.Application) *Model {
	ta := textarea.New()
	ta.Placeholder = "Ask something about this image..."
	ta.CharLimit = 4000
	ta.SetHeight(1)
	ta.Prompt = " "
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ta.Focus()

	ti := textinput.New()
	ti.Placeholder = "Path to an image file, e.g. ~/Pictures/cat.jpg"
	ti.CharLimit = 1024

	theme := NewTheme(application.Config.Theme)
	return &Model{
		app:         application,
		theme:       theme,
		keys:        defaultKeyMap(),
		width:       100,
		height:      30,
		focus:       focusInput,
		session:     application.Controller.Snapshot(),
		input:       ta,
		uploadInput: ti,
		markdown:    NewMarkdownRenderer(theme),
		statusText:  "Ready",
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.checkServerCmd(), m.refreshHistoryCmd())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		layout := m.computeLayout()
		if !m.ready {
			m.chatVP = viewport.New(layout.ChatW, layout.ChatH)
			m.ready = true
		} else {
			m.chatVP.Width = layout.ChatW
			m.chatVP.Height = layout.ChatH
		}
		m.input.SetWidth(max(10, layout.InputW))
		m.uploadInput.Width = max(10, layout.InputW)
		m.updateChatViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionMsg:
		m.busy = false
		m.statusText = "Ready"
		m.session = msg.session
		m.updateChatViewport()
		m.chatVP.GotoBottom()
		return m, nil

	case historyMsg:
		if msg.err != nil && msg.err != chat.ErrStaleResult {
			m.banner = "Failed to load chat history"
			return m, nil
		}
		m.history = msg.threads
		if m.sidebarSel >= len(m.history) {
			m.sidebarSel = max(0, len(m.history)-1)
		}
		return m, nil

	case sendDoneMsg:
		m.session = msg.session
		if msg.err != nil && msg.err != chat.ErrStaleResult {
			m.banner = msg.err.Error()
			// Put the rolled-back message back so enter retries it.
			if strings.TrimSpace(m.input.Value()) == "" {
				m.input.SetValue(msg.content)
			}
		} else {
			m.banner = ""
		}
		m.updateChatViewport()
		m.chatVP.GotoBottom()
		if !m.app.Controller.Sending() {
			m.statusText = "Ready"
		}
		return m, nil

	case uploadDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.statusText = "Ready"
			m.banner = "Upload failed: " + msg.err.Error()
			return m, nil
		}
		m.statusText = "Uploaded " + msg.title
		m.session = msg.session
		m.banner = ""
		m.updateChatViewport()
		return m, m.refreshHistoryCmd()

	case deleteDoneMsg:
		if msg.err != nil {
			m.banner = "Failed to delete chat history"
			return m, nil
		}
		m.history = msg.threads
		m.session = msg.session
		if m.sidebarSel >= len(m.history) {
			m.sidebarSel = max(0, len(m.history)-1)
		}
		m.updateChatViewport()
		return m, nil

	case statusMsg:
		switch {
		case msg.err != nil:
			m.serverNote = "server unreachable"
		case msg.status.Database.Status != "Connected":
			m.serverNote = "database issue"
		default:
			m.serverNote = "connected"
		}
		return m, nil

	case spinMsg:
		m.spinnerPos = (m.spinnerPos + 1) % len(spinnerFrames)
		if m.busy || m.app.Controller.Sending() {
			m.updateChatViewport()
			return m, m.spinTick()
		}
		return m, nil
	}

	return m, m.updateChildren(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.uploadMode {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Dismiss):
			m.uploadMode = false
			m.uploadInput.Reset()
			return m, nil
		case key.Matches(msg, m.keys.Enter):
			path := strings.TrimSpace(m.uploadInput.Value())
			if path == "" {
				return m, nil
			}
			m.uploadMode = false
			m.uploadInput.Reset()
			m.busy = true
			m.statusText = "Uploading and analyzing..."
			return m, tea.Batch(m.uploadCmd(path), m.spinTick())
		}
		var cmd tea.Cmd
		m.uploadInput, cmd = m.uploadInput.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.FocusNext):
		m.cycleFocus()
		return m, nil

	case key.Matches(msg, m.keys.Dismiss):
		m.banner = ""
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshHistoryCmd()

	case key.Matches(msg, m.keys.Upload):
		m.uploadMode = true
		m.uploadInput.Focus()
		m.input.Blur()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.StartOver):
		m.app.Controller.Reset()
		m.session = m.app.Controller.Snapshot()
		m.history = nil
		m.banner = ""
		m.updateChatViewport()
		return m, m.refreshHistoryCmd()

	case key.Matches(msg, m.keys.Delete):
		if m.focus == focusSidebar && m.sidebarSel < len(m.history) {
			return m, m.deleteCmd(m.history[m.sidebarSel].ImageID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		switch m.focus {
		case focusSidebar:
			if m.sidebarSel < len(m.history) {
				m.busy = true
				m.statusText = "Loading conversation..."
				return m, tea.Batch(m.selectCmd(m.history[m.sidebarSel].ImageID), m.spinTick())
			}
			return m, nil
		case focusInput:
			return m, m.onSend()
		}
		return m, nil

	case msg.Type == tea.KeyUp:
		switch m.focus {
		case focusSidebar:
			m.moveSidebar(-1)
			return m, nil
		case focusChat:
			m.chatVP.LineUp(1)
			return m, nil
		}
	case msg.Type == tea.KeyDown:
		switch m.focus {
		case focusSidebar:
			m.moveSidebar(1)
			return m, nil
		case focusChat:
			m.chatVP.LineDown(1)
			return m, nil
		}
	case msg.Type == tea.KeyPgUp:
		m.chatVP.ViewUp()
		return m, nil
	case msg.Type == tea.KeyPgDown:
		m.chatVP.ViewDown()
		return m, nil
	}

	return m, m.updateChildren(msg)
}

func (m *Model) updateChildren(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	if m.focus == focusInput && !m.uploadMode {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.chatVP, cmd = m.chatVP.Update(msg)
	cmds = append(cmds, cmd)
	return tea.Batch(cmds...)
}

func (m *Model) onSend() tea.Cmd {
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return nil
	}
	if m.session.CurrentImage == nil {
		m.banner = "Upload an image or select one from history to start chatting"
		return nil
	}
	if m.app.Controller.Sending() {
		// The send action is disabled while one is in flight.
		return nil
	}
	m.input.Reset()
	m.statusText = "Sending..."
	return tea.Batch(m.sendCmd(content), m.spinTick())
}

func (m *Model) cycleFocus() {
	m.focus++
	if m.focus > focusChat {
		m.focus = focusSidebar
	}
	if m.focus == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) moveSidebar(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.sidebarSel += delta
	if m.sidebarSel < 0 {
		m.sidebarSel = 0
	}
	if m.sidebarSel >= len(m.history) {
		m.sidebarSel = len(m.history) - 1
	}
	visible := m.computeLayout().SidebarH
	if visible <= 0 {
		visible = 1
	}
	if m.sidebarSel < m.sidebarOff {
		m.sidebarOff = m.sidebarSel
	}
	if m.sidebarSel >= m.sidebarOff+visible {
		m.sidebarOff = m.sidebarSel - visible + 1
	}
}

func (m *Model) spinTick() tea.Cmd {
	return tea.Tick(90*time.Millisecond, func(time.Time) tea.Msg { return spinMsg{} })
}

// Commands. Controller calls are synchronous, so each runs in its own
// tea.Cmd goroutine and reports back with a fresh snapshot.

func (m *Model) refreshHistoryCmd() tea.Cmd {
	ctrl := m.app.Controller
	return func() tea.Msg {
		err := ctrl.RefreshHistory(context.Background())
		return historyMsg{threads: ctrl.History(), err: err}
	}
}

func (m *Model) selectCmd(imageID string) tea.Cmd {
	ctrl := m.app.Controller
	return func() tea.Msg {
		if err := ctrl.SelectFromHistory(context.Background(), imageID); err == chat.ErrStaleResult {
			return nil
		}
		return sessionMsg{session: ctrl.Snapshot()}
	}
}

func (m *Model) sendCmd(content string) tea.Cmd {
	ctrl := m.app.Controller
	return func() tea.Msg {
		err := ctrl.Send(context.Background(), content)
		return sendDoneMsg{session: ctrl.Snapshot(), content: content, err: err}
	}
}

func (m *Model) uploadCmd(path string) tea.Cmd {
	application := m.app
	return func() tea.Msg {
		ctx := context.Background()
		res, err := application.Backend.UploadImage(ctx, expandHome(path), "", "", application.Identity.CurrentUser().ID)
		if err != nil {
			return uploadDoneMsg{session: application.Controller.Snapshot(), err: err}
		}
		img := &transport.ImageRef{
			ImageID:           res.ImageID,
			Title:             res.Title,
			Description:       res.Description,
			GeneratedTitle:    res.GeneratedTitle,
			VisionDescription: res.VisionDescription,
			Labels:            res.Labels,
		}
		err = application.Controller.OnImageUploaded(ctx, img)
		return uploadDoneMsg{session: application.Controller.Snapshot(), title: img.DisplayTitle(), err: err}
	}
}

func (m *Model) deleteCmd(imageID string) tea.Cmd {
	ctrl := m.app.Controller
	return func() tea.Msg {
		err := ctrl.DeleteThread(context.Background(), imageID)
		return deleteDoneMsg{threads: ctrl.History(), session: ctrl.Snapshot(), err: err}
	}
}

func (m *Model) checkServerCmd() tea.Cmd {
	backend := m.app.Backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		status, err := backend.Status(ctx)
		return statusMsg{status: status, err: err}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
