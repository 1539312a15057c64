package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	answerStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#45475A")).
			Padding(0, 1)
)

const progressWidth = 24

// progressLine renders "[#####.....] 5/10 pages".
func progressLine(current, total int) string {
	filled := 0
	if total > 0 {
		filled = min(current, total) * progressWidth / total
	}
	bar := accentStyle.Render(strings.Repeat("#", filled)) + mutedStyle.Render(strings.Repeat(".", progressWidth-filled))
	return fmt.Sprintf("[%s] %d/%d pages", bar, current, total)
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "ready":
		return successStyle
	case "failed":
		return errorStyle
	default:
		return warningStyle
	}
}
