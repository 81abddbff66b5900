// Package tui is a minimal bubbletea chat view over a session Controller:
// it subscribes to the Event Bus, renders the visible transcript, and
// relays keystrokes back as send_message/cancel_current_operation calls.
// Layout and keybindings are intentionally plain; this package exists to
// exercise the event/chat-store contract end to end, not to specify a
// terminal design.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/events"
	"github.com/conductorhq/conductor/internal/session"
	"github.com/conductorhq/conductor/internal/tui/style"
)

// eventMsg wraps one Event Bus event as a bubbletea message.
type eventMsg struct{ event events.Event }

// pendingApproval is the tool call currently awaiting a y/n/s decision from
// the terminal.
type pendingApproval struct {
	callID   string
	toolName string
	params   []byte
}

// Model is the bubbletea root model.
type Model struct {
	cwd        string
	controller *session.Controller
	modelName  string
	events     <-chan events.Event

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	lines     []string
	pending   *pendingApproval
	running   bool
	width     int
	height    int
	statusMsg string
}

// New builds a Model wired to ctrl; ctrl must already be constructed via
// session.New.
func New(cwd, modelName string, ctrl *session.Controller) Model {
	ch, _ := ctrl.SubscribeEvents()

	ta := textarea.New()
	ta.Placeholder = "Ask the agent..."
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent(fmt.Sprintf("Model: %s\nWorking directory: %s\n\nType a message and press enter. Esc cancels a running turn.\n", modelName, cwd))

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = style.SpinnerStyle

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
		glamour.WithColorProfile(termenv.ANSI),
	)

	return Model{
		cwd:        cwd,
		controller: ctrl,
		modelName:  modelName,
		events:     ch,
		viewport:   vp,
		textarea:   ta,
		spinner:    sp,
		renderer:   renderer,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, waitForEvent(m.events))
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

// decisionFor maps the tui's y/s/n keys onto an approval.Decision.
func decisionFor(key string) (approval.Decision, bool) {
	switch key {
	case "y":
		return approval.Decision{Outcome: approval.Approved, Scope: approval.OneShot}, true
	case "s":
		return approval.Decision{Outcome: approval.Approved, Scope: approval.SessionPersistent}, true
	case "n":
		return approval.Decision{Outcome: approval.Denied}, true
	default:
		return approval.Decision{}, false
	}
}
