package chat

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chatwire/chatwire/internal/tui"
)

const sidebarWidth = 20

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}

	header := m.renderHeader()
	conversation := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.conversationWidth()).
		Render(m.viewport.View())
	sidebar := m.renderSidebar()

	body := lipgloss.JoinHorizontal(lipgloss.Top, conversation, sidebar)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		m.renderTypingLine(),
		m.input.View(),
		m.renderHelpBar(),
	)
}

func (m Model) renderHeader() string {
	left := tui.Title.Render("chatwire") + "  " +
		tui.Subtitle.Render(m.active.label())
	right := m.username + " " + tui.StatusText(m.connected)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(tui.Subtitle.Render(" Online") + "\n")
	for _, user := range m.online {
		name := user
		if user == m.username {
			name = tui.Dimmed.Render(user + " (you)")
		}
		b.WriteString(" " + tui.OnlineDot + " " + name + "\n")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(sidebarWidth).
		Height(m.conversationHeight()).
		Render(b.String())
}

func (m Model) renderConversation() string {
	lines := m.conversations[m.active.key()]
	if m.active.name == "" {
		return tui.Dimmed.Render("Use /msg <user> or /join <group> to start chatting.")
	}

	var b strings.Builder
	for _, line := range lines {
		if line.system {
			b.WriteString(tui.Dimmed.Render(line.text) + "\n")
			continue
		}
		senderStyle := tui.SenderStyle
		if line.sender == m.username {
			senderStyle = tui.OwnSenderStyle
		}
		b.WriteString(tui.TimestampStyle.Render(line.when.Local().Format("15:04")) + " " +
			senderStyle.Render(line.sender) + " " +
			line.text + "\n")
	}
	return b.String()
}

func (m Model) renderTypingLine() string {
	if len(m.typing) == 0 {
		if m.statusLine != "" {
			return tui.ErrorStyle.Render(" " + m.statusLine)
		}
		return " "
	}

	users := make([]string, 0, len(m.typing))
	for user := range m.typing {
		users = append(users, user)
	}
	sort.Strings(users)

	label := strings.Join(users, ", ") + " is typing..."
	if len(users) > 1 {
		label = strings.Join(users, ", ") + " are typing..."
	}
	return tui.TypingStyle.Render(" " + label)
}

func (m Model) renderHelpBar() string {
	return tui.Help.Render(" /msg <user> · /join <group> · /leave · /quit · esc to exit")
}
