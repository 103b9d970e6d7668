package main

import "github.com/charmbracelet/lipgloss"

// Color palette shared by all terminal output. Tuned for dark backgrounds.
const (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorSuccess   = lipgloss.Color("#10B981")
	ColorError     = lipgloss.Color("#EF4444")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorHighlight = lipgloss.Color("#3B82F6")
)

var (
	// TitleStyle is for primary headers and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle is for secondary headers and descriptions.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SuccessStyle is for success messages.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// ErrorStyle is for errors.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	// WarningStyle is for warnings.
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// Preview styles, one per instance state.
	nextStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHighlight)
	pastStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
	cancelledStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Strikethrough(true)
	rescheduledStyle = lipgloss.NewStyle().
				Foreground(ColorWarning)
	overriddenStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Italic(true)

	previewBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1)
)
