package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/events"
	"github.com/conductorhq/conductor/internal/tui/style"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 4
		m.textarea.SetWidth(msg.Width - 2)
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		if msg.event == nil {
			return m, nil
		}
		m.applyEvent(msg.event)
		m.refreshViewport()
		return m, waitForEvent(m.events)

	case tea.KeyMsg:
		return m.updateKey(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.pending != nil {
		if decision, ok := decisionFor(msg.String()); ok {
			m.controller.ResolveApproval(m.pending.callID, decision)
			m.pending = nil
			m.refreshViewport()
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		m.controller.CancelCurrentOperation()
		return m, nil
	case tea.KeyEnter:
		text := m.textarea.Value()
		if text == "" {
			return m, nil
		}
		m.textarea.Reset()
		m.running = true
		m.lines = append(m.lines, style.UserStyle.Render(style.BulletUser+" "+text))
		m.refreshViewport()
		m.controller.SendMessage(text, m.modelName)
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// applyEvent folds one Event Bus event into the rendered transcript and
// approval-prompt state.
func (m *Model) applyEvent(ev events.Event) {
	switch e := ev.(type) {
	case events.ProcessingStarted:
		m.running = true
	case events.ProcessingFinished:
		m.running = false
	case events.MessageAdded:
		m.appendMessage(e.Message)
	case events.RequestToolApproval:
		m.pending = &pendingApproval{callID: e.ID, toolName: e.ToolName, params: e.Parameters}
	case events.ToolCallStarted:
		m.lines = append(m.lines, style.ToolStyle.Render(fmt.Sprintf("%s running %s", style.BulletTool, e.Name)))
	case events.ToolCallCompleted:
		m.lines = append(m.lines, style.OkStyle.Render(fmt.Sprintf("%s %s done", style.BulletTool, e.ID)))
	case events.ToolCallFailed:
		m.lines = append(m.lines, style.ErrorStyle.Render(fmt.Sprintf("%s %s failed: %s", style.BulletError, e.ID, e.Error)))
	case events.ToolCallCancelled:
		m.lines = append(m.lines, style.ToolStyle.Render(fmt.Sprintf("%s %s cancelled", style.BulletTool, e.ID)))
	case events.Error:
		m.lines = append(m.lines, style.ErrorStyle.Render(style.BulletError+" "+e.Message))
	}
}

func (m *Model) appendMessage(msg chatmodel.Message) {
	switch data := msg.Data.(type) {
	case chatmodel.UserMessage:
		for _, c := range data.Content {
			if t, ok := c.(chatmodel.UserText); ok {
				m.lines = append(m.lines, style.UserStyle.Render(style.BulletUser+" "+t.Text))
			}
		}
	case chatmodel.AssistantMessage:
		if _, text, ok := data.LastText(); ok && text.Text != "" {
			rendered := text.Text
			if m.renderer != nil {
				if out, err := m.renderer.Render(text.Text); err == nil {
					rendered = out
				}
			}
			m.lines = append(m.lines, style.AgentStyle.Render(style.BulletAgent+" ")+rendered)
		}
	}
}

func (m *Model) refreshViewport() {
	content := ""
	for _, line := range m.lines {
		content += line + "\n"
	}
	if m.pending != nil {
		content += style.ErrorStyle.Render(fmt.Sprintf("\napproval requested for %s: [y]es once, [s]ession, [n]o\n%s\n", m.pending.toolName, string(m.pending.params)))
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}
