package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	onlineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	senderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Bold(true)
	selfStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("216")).Bold(true)
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	statusColor   = lipgloss.Color("220")
	degradedColor = lipgloss.Color("196")
)

func (m *Model) View() string {
	lines := []string{
		m.renderHeader(),
		m.viewport.View(),
		metaStyle.Render(m.typersLine()),
		m.input.View(),
	}
	if m.degraded != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(degradedColor).Render(m.degraded))
	} else {
		lines = append(lines, lipgloss.NewStyle().Foreground(statusColor).Render(m.status))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) renderHeader() string {
	parts := []string{headerStyle.Render("#" + m.chat.Name)}
	for _, id := range m.members {
		if id == m.userID {
			continue
		}
		dot := offlineStyle.Render("○")
		if m.bus != nil && m.bus.IsUserOnline(id) {
			dot = onlineStyle.Render("●")
		}
		parts = append(parts, dot+" "+m.displayName(id))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) resize() {
	m.input.SetWidth(max(m.width-2, 10))
	// header, typing line, input and status
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-4, 1)
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		name := senderStyle.Render(m.displayName(msg.SenderID))
		if msg.SenderID == m.userID {
			name = selfStyle.Render(m.displayName(msg.SenderID))
		}
		stamp := metaStyle.Render(time.UnixMilli(msg.SentAt).Format("15:04"))
		body := msg.Body
		if msg.MediaRef != "" {
			body = strings.TrimSpace(body + " [" + mediaLabel(msg.MediaType) + ": " + msg.MediaRef + "]")
		}
		b.WriteString(stamp + " " + name + " " + body)
		if msg.SenderID == m.userID {
			if readers := m.readBy[msg.ID]; len(readers) > 0 {
				b.WriteString(metaStyle.Render(" ✓"))
			}
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}
