// Package tui provides shared theme and styles for the chatwire terminal client.
package tui

import "github.com/charmbracelet/lipgloss"

// Colors — brand palette.
var (
	ColorPrimary   = lipgloss.Color("#0EA5E9") // sky
	ColorSecondary = lipgloss.Color("#6366F1") // indigo
	ColorAccent    = lipgloss.Color("#F59E0B") // amber

	ColorSuccess = lipgloss.Color("#10B981") // emerald
	ColorWarning = lipgloss.Color("#F59E0B") // amber
	ColorError   = lipgloss.Color("#EF4444") // red
	ColorMuted   = lipgloss.Color("#6B7280") // gray-500
	ColorText    = lipgloss.Color("#E5E7EB") // gray-200
	ColorSubtle  = lipgloss.Color("#9CA3AF") // gray-400
)

// Shared styles used across the client views.
var (
	// Title is the main heading style.
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		MarginBottom(1)

	// Subtitle for secondary headings.
	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	// Selected highlights the currently focused item.
	Selected = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	// Dimmed for non-focused items.
	Dimmed = lipgloss.NewStyle().
		Foreground(ColorMuted)

	// Success for positive messages.
	Success = lipgloss.NewStyle().
		Foreground(ColorSuccess)

	// ErrorStyle for error messages (avoiding collision with builtin error).
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	// Help for keybind hints at the bottom.
	Help = lipgloss.NewStyle().
		Foreground(ColorMuted)

	// SenderStyle for message author names.
	SenderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	// OwnSenderStyle for the local user's name in the conversation.
	OwnSenderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// TimestampStyle for message times.
	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// TypingStyle for the typing indicator line.
	TypingStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(ColorSubtle)

	// OnlineDot marks a user with a live connection.
	OnlineDot = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Render("●")
)

// StatusText returns a colored connection status label.
func StatusText(connected bool) string {
	if connected {
		return Success.Render("connected")
	}
	return ErrorStyle.Render("reconnecting")
}
