package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/colony/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

func sliceStyle(s models.SliceStatus) lipgloss.Style {
	switch s {
	case models.SliceStatusCompleted:
		return okStyle
	case models.SliceStatusTimedOut:
		return warnStyle
	case models.SliceStatusFailed:
		return failStyle
	case models.SliceStatusRunning:
		return runningStyle
	default:
		return pendingStyle
	}
}

func agentStyle(s models.AgentState) lipgloss.Style {
	switch s {
	case models.AgentStateWarned, models.AgentStateWarned2:
		return warnStyle
	case models.AgentStateRevoked:
		return failStyle
	default:
		return okStyle
	}
}

func qaStyle(s models.QAStatus) lipgloss.Style {
	switch s {
	case models.QAPassed:
		return okStyle
	case models.QAPartial:
		return warnStyle
	default:
		return failStyle
	}
}
