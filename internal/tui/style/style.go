// Package style holds the shared lipgloss palette for the chat view.
package style

import "github.com/charmbracelet/lipgloss"

var (
	BurntOrange = lipgloss.Color("#DA702C")
	MutedGray   = lipgloss.Color("245")
	White       = lipgloss.Color("#FFFFFF")
	Red         = lipgloss.Color("196")
	Green       = lipgloss.Color("#2E8B57")
)

var (
	BulletUser  = ">"
	BulletAgent = "●"
	BulletTool  = "○"
	BulletError = "x"
)

var (
	UserStyle  = lipgloss.NewStyle().Foreground(White)
	AgentStyle = lipgloss.NewStyle().Foreground(BurntOrange)
	ToolStyle  = lipgloss.NewStyle().Foreground(MutedGray)
	ErrorStyle = lipgloss.NewStyle().Foreground(Red)
	OkStyle    = lipgloss.NewStyle().Foreground(Green)

	SpinnerStyle = lipgloss.NewStyle().Foreground(BurntOrange)
	FooterStyle  = lipgloss.NewStyle().Foreground(MutedGray)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BurntOrange).
			Padding(0, 1)
)
