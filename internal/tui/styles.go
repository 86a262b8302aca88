package tui

import "github.com/charmbracelet/lipgloss"

var (
	// TitleStyle is used for the screen title.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")). // Purple
			MarginBottom(1)

	// ColumnStyle is used for board column headings.
	ColumnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")). // Light purple
			Bold(true)

	// EntryStyle is used for changelog entries.
	EntryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Light gray

	// TicketStyle highlights ticket keys.
	TicketStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")). // Light blue
			Underline(true)

	// ErrorStyle is used for error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// WarnStyle is used for report problems.
	WarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Orange

	// SuccessStyle is used when the run finished cleanly.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// MutedStyle is used for timestamps and secondary text.
	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")) // Dark gray

	// PanelStyle frames the notification log.
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1).
			MarginTop(1)
)
