package display

import (
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/pterm/pterm"
)

// Colors adapt to light and dark terminals
var (
	HeadingColor = lipgloss.AdaptiveColor{Light: "#212529", Dark: "#F8F9FA"}
	MutedColor   = lipgloss.AdaptiveColor{Light: "#6C757D", Dark: "#ADB5BD"}
	PathColor    = lipgloss.AdaptiveColor{Light: "#6C757D", Dark: "#A0A8B0"}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(HeadingColor).
			Bold(true)

	StageStyle = lipgloss.NewStyle().
			Foreground(HeadingColor).
			Bold(true).
			Underline(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	PathStyle = lipgloss.NewStyle().
			Foreground(PathColor).
			Italic(true)
)

// StatusStyle returns the badge style for an item status
func StatusStyle(status types.ItemStatus) *pterm.Style {
	switch status {
	case types.ItemSucceeded:
		return pterm.NewStyle(pterm.BgGreen, pterm.FgWhite)
	case types.ItemFailed:
		return pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	case types.ItemPlanned:
		return pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	case types.ItemSkipped:
		return pterm.NewStyle(pterm.FgYellow)
	default:
		return pterm.NewStyle(pterm.FgGray)
	}
}

// LevelStyle returns the style for a script safety level
func LevelStyle(level types.SafetyLevel) *pterm.Style {
	switch level {
	case types.SafetyBlocked:
		return pterm.NewStyle(pterm.BgRed, pterm.FgWhite, pterm.Bold)
	case types.SafetyDangerous:
		return pterm.NewStyle(pterm.FgRed, pterm.Bold)
	case types.SafetyWarning:
		return pterm.NewStyle(pterm.FgYellow)
	default:
		return pterm.NewStyle(pterm.FgGreen)
	}
}
