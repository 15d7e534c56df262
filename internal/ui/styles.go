package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. One lime accent, gray scale for everything else.
const (
	ColorLime     = "154" // primary accent
	ColorWhite    = "255" // file names
	ColorGray     = "245" // summaries, paths
	ColorDarkGray = "238" // separators
	ColorRed      = "196" // errors
	ColorYellow   = "220" // warnings
)

// Styles holds the render styles for CLI output.
type Styles struct {
	Name    lipgloss.Style
	Path    lipgloss.Style
	Summary lipgloss.Style
	Score   lipgloss.Style
	Header  lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Dim     lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Name:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		Path:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Summary: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
	}
}

// NoColorStyles returns unstyled equivalents for pipes and NO_COLOR.
func NoColorStyles() Styles {
	return Styles{
		Name:    lipgloss.NewStyle(),
		Path:    lipgloss.NewStyle(),
		Summary: lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Header:  lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
	}
}
