package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("#10B981") // green
	titleColor  = lipgloss.Color("#06B6D4") // cyan
	warnColor   = lipgloss.Color("#F59E0B") // amber
	errColor    = lipgloss.Color("#EF4444") // red
	mutedColor  = lipgloss.Color("#6B7280") // gray
	selfColor   = lipgloss.Color("#7C3AED") // purple

	bannerStyle  = lipgloss.NewStyle().Foreground(titleColor).Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(warnColor).Bold(true)
	promptStyle  = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	systemStyle  = lipgloss.NewStyle().Foreground(accentColor).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errColor)
	subtleStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	dividerStyle = lipgloss.NewStyle().Foreground(mutedColor).Faint(true)
	selfStyle    = lipgloss.NewStyle().Foreground(selfColor).Bold(true)
	peerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Bold(true)
	linkStyle    = lipgloss.NewStyle().Foreground(titleColor).Underline(true)
)
