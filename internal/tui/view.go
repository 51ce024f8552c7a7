package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"imgchat/internal/chat"
)

type layoutInfo struct {
	SidebarW int
	SidebarH int
	ChatW    int
	ChatH    int
	InputW   int
}

func (m *Model) computeLayout() layoutInfo {
	topH, footH, inputH := 1, 1, 3
	mainH := m.height - topH - footH - inputH
	if mainH < 3 {
		mainH = 3
	}

	sidebarW := 0
	if m.width >= 80 {
		sidebarW = m.width / 3
		if sidebarW > 40 {
			sidebarW = 40
		}
	}
	chatW := m.width - sidebarW
	if sidebarW > 0 {
		chatW--
	}

	return layoutInfo{
		SidebarW: sidebarW,
		SidebarH: mainH - 3,
		ChatW:    chatW - 2,
		ChatH:    mainH - 2,
		InputW:   chatW - 6,
	}
}

func (m *Model) View() string {
	if !m.ready {
		return "…"
	}
	layout := m.computeLayout()
	top := m.renderTopBar()
	main := m.renderMain(layout)
	input := m.renderInputArea(layout)
	footer := m.renderFooter()
	return lipgloss.JoinVertical(lipgloss.Left, top, main, input, footer)
}

func (m *Model) renderTopBar() string {
	left := m.theme.TopBarTitle.Render("imgchat")
	user := m.app.Identity.CurrentUser()
	who := user.Username
	if who == "" {
		who = user.ID
	}
	left += " " + m.theme.TopBarBadge.Render(who)

	status := m.statusText
	if m.busy || m.app.Controller.Sending() {
		status = m.theme.Spinner.Render(spinnerFrames[m.spinnerPos] + " " + status)
	} else {
		status = m.theme.TopBarMeta.Render(status)
	}
	right := m.theme.TopBarMeta.Render(m.serverNote + " " + time.Now().Format("15:04"))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(status) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	a := gap / 2
	return m.theme.TopBar.Render(left + strings.Repeat(" ", a) + status + strings.Repeat(" ", gap-a) + right)
}

func (m *Model) renderMain(l layoutInfo) string {
	chatPane := m.renderChatPane(l)
	if l.SidebarW <= 0 {
		return chatPane
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(l), " ", chatPane)
}

func (m *Model) renderSidebar(l layoutInfo) string {
	title := m.theme.PaneTitle.Render("Your Chat History")
	if m.focus == focusSidebar {
		title = m.theme.PaneTitleF.Render("Your Chat History")
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")

	if len(m.history) == 0 {
		b.WriteString(m.theme.SidebarMeta.Render("No chat history found"))
	}
	visible := l.SidebarH
	if visible < 1 {
		visible = 1
	}
	end := m.sidebarOff + visible
	if end > len(m.history) {
		end = len(m.history)
	}
	for i := m.sidebarOff; i < end; i++ {
		th := m.history[i]
		label := sidebarLabel(th)
		label = truncate(label, l.SidebarW-6)
		var line string
		if i == m.sidebarSel && m.focus == focusSidebar {
			line = "> " + m.theme.SidebarItemSel.Render(label)
		} else if m.isCurrent(th.ImageID) {
			line = "* " + m.theme.SidebarItem.Render(label)
		} else {
			line = "  " + m.theme.SidebarItem.Render(label)
		}
		b.WriteString(line)
		b.WriteString("\n")
		b.WriteString("    " + m.theme.SidebarMeta.Render(fmt.Sprintf("%d turns · %s", len(th.Turns), relativeTime(th.LastActivity))))
		b.WriteString("\n")
	}

	pane := m.theme.Pane
	if m.focus == focusSidebar {
		pane = m.theme.PaneFocused
	}
	return pane.Width(l.SidebarW - 2).Height(l.SidebarH + 2).Render(strings.TrimRight(b.String(), "\n"))
}

func sidebarLabel(th chat.Thread) string {
	if th.Title != "" {
		return th.Title
	}
	if len(th.Turns) > 0 {
		return th.Turns[0].ContextTitle
	}
	return "Chat Conversation"
}

func (m *Model) isCurrent(imageID string) bool {
	return m.session.CurrentImage != nil && m.session.CurrentImage.ImageID == imageID
}

func (m *Model) renderChatPane(l layoutInfo) string {
	pane := m.theme.Pane
	if m.focus == focusChat {
		pane = m.theme.PaneFocused
	}
	header := m.renderChatHeader(l.ChatW)
	body := m.chatVP.View()
	return pane.Width(l.ChatW).Render(header + "\n" + body)
}

func (m *Model) renderChatHeader(width int) string {
	if m.session.CurrentImage == nil {
		return m.theme.PaneTitle.Render("Chat with AI")
	}
	img := m.session.CurrentImage
	title := m.theme.PaneTitleF.Render(truncate(img.DisplayTitle(), width/2))
	if len(img.Labels) == 0 {
		return title
	}
	chips := make([]string, 0, len(img.Labels))
	for _, label := range img.Labels {
		chips = append(chips, fmt.Sprintf("%s %d%%", label.Label, int(label.Confidence*100+0.5)))
	}
	return title + "  " + m.theme.LabelChip.Render(truncate(strings.Join(chips, " · "), width-lipgloss.Width(title)-2))
}

func (m *Model) updateChatViewport() {
	if !m.ready {
		return
	}
	width := m.computeLayout().ChatW - 2
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	switch {
	case m.session.Status == chat.StatusIdle && m.session.CurrentImage == nil:
		b.WriteString(m.theme.RoleSys.Render("Upload an image (ctrl+u) or select one from history to start chatting"))
	case m.session.CurrentThread == nil || len(m.session.CurrentThread.Turns) == 0:
		b.WriteString(m.theme.RoleSys.Render("No messages yet. Start a conversation!"))
	default:
		for _, turn := range m.session.CurrentThread.Turns {
			b.WriteString(m.renderTurn(turn, width))
			b.WriteString("\n\n")
		}
	}
	m.chatVP.SetContent(strings.TrimRight(b.String(), "\n"))
}

func (m *Model) renderTurn(turn chat.Turn, width int) string {
	meta := m.theme.TopBarMeta.Render(turn.Timestamp.Local().Format("15:04"))
	you := m.theme.RoleYou.Render("YOU") + " " + meta + "\n" +
		lipgloss.NewStyle().Foreground(m.theme.TextPrimary).Width(width).Render(turn.UserMessage)

	if turn.Kind == chat.TurnPending {
		wait := m.theme.Spinner.Render(spinnerFrames[m.spinnerPos] + " thinking...")
		return you + "\n" + m.theme.RoleAI.Render("AI") + " " + wait
	}

	var body string
	if turn.BotResponse == chat.NoResponse {
		body = m.theme.RoleSys.Render(chat.NoResponse)
	} else {
		body = m.markdown.Render(turn.BotResponse, width)
	}
	return you + "\n" + m.theme.RoleAI.Render("AI") + " " + meta + "\n" + body
}

func (m *Model) renderInputArea(l layoutInfo) string {
	if m.banner != "" {
		box := m.theme.InputBox.BorderForeground(m.theme.Error).Width(m.width - 2)
		return box.Render(m.theme.ErrorBanner.Render(m.banner) + m.theme.Footer.Render("  (esc to dismiss, enter to retry)"))
	}
	if m.uploadMode {
		box := m.theme.InputBoxF.Width(m.width - 2)
		return box.Render(m.theme.PaneTitleF.Render("Upload: ") + m.uploadInput.View())
	}
	box := m.theme.InputBox
	if m.focus == focusInput {
		box = m.theme.InputBoxF
	}
	return box.Width(m.width - 2).Render(m.input.View())
}

func (m *Model) renderFooter() string {
	// Ordered by importance; trailing hints drop first on narrow terminals.
	hints := []string{
		"tab focus", "enter send", "ctrl+c quit", "ctrl+u upload",
		"ctrl+r refresh", "ctrl+d delete", "ctrl+n start over",
	}
	line := " " + strings.Join(hints, " · ")
	for len(hints) > 1 && lipgloss.Width(line) > m.width {
		hints = hints[:len(hints)-1]
		line = " " + strings.Join(hints, " · ")
	}
	return m.theme.Footer.MaxWidth(m.width).Render(line)
}

func truncate(s string, limit int) string {
	if limit < 4 {
		limit = 4
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "just now"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2")
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
