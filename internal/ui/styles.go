// Package ui renders CLI output: styled text, search results, progress
// lines, and stat tables.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette - single lime accent over grays.
const (
	ColorLime     = "154" // primary accent
	ColorLimeDim  = "106" // secondary accent
	ColorWhite    = "255" // headers
	ColorGray     = "245" // labels, secondary text
	ColorDarkGray = "238" // separators
	ColorRed      = "196" // errors
	ColorYellow   = "220" // warnings
)

// Styles holds the render styles for one console.
type Styles struct {
	Header    lipgloss.Style
	Title     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Dim       lipgloss.Style
	Label     lipgloss.Style
	Highlight lipgloss.Style
	Timestamp lipgloss.Style
	Score     lipgloss.Style
}

// DefaultStyles returns the lime-accent styles for TTY output.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLimeDim)),
		Timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLimeDim)),
		Score:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

// NoColorStyles returns unstyled components for pipes and CI.
func NoColorStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle(),
		Title:     lipgloss.NewStyle(),
		Success:   lipgloss.NewStyle(),
		Warning:   lipgloss.NewStyle(),
		Error:     lipgloss.NewStyle(),
		Dim:       lipgloss.NewStyle(),
		Label:     lipgloss.NewStyle(),
		Highlight: lipgloss.NewStyle(),
		Timestamp: lipgloss.NewStyle(),
		Score:     lipgloss.NewStyle(),
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// StylesFor picks colored or plain styles based on the writer and an
// explicit no-color override.
func StylesFor(w io.Writer, noColor bool) Styles {
	if noColor || !IsTerminal(w) {
		return NoColorStyles()
	}
	return DefaultStyles()
}
