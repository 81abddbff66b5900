package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/conductorhq/conductor/internal/tui/style"
)

func (m Model) View() string {
	if m.width <= 0 {
		return "Initializing...\n"
	}

	footer := style.FooterStyle.Render(m.footerText())
	input := style.BoxStyle.Width(m.width - 2).Render(m.textarea.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		footer,
		input,
	)
}

func (m Model) footerText() string {
	if m.pending != nil {
		return fmt.Sprintf("awaiting approval for %s (y/s/n)", m.pending.toolName)
	}
	if m.running {
		return m.spinner.View() + " working... (esc to cancel)"
	}
	return m.modelName + " | ctrl+c to quit"
}
