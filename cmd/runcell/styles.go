// SPDX-License-Identifier: EPL-2.0

package main

import "github.com/charmbracelet/lipgloss"

// Color palette and reusable styles for CLI output, adapted from the
// teacher's cmd/invowk/styles.go palette.
var (
	ColorPrimary = lipgloss.Color("#7C3AED")
	ColorMuted   = lipgloss.Color("#6B7280")
	ColorSuccess = lipgloss.Color("#10B981")
	ColorError   = lipgloss.Color("#EF4444")
	ColorWarning = lipgloss.Color("#F59E0B")
	ColorHighlight = lipgloss.Color("#3B82F6")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)
	CmdStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight)
)
