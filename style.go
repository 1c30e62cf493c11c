package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	green   = lipgloss.Color("#04B575")
	red     = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	yellow  = lipgloss.AdaptiveColor{Light: "#A67C00", Dark: "#ECFD65"}
	grayFg  = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	brightF = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#DDDADA"}

	keyword   = lipgloss.NewStyle().Foreground(green).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render
	faint     = lipgloss.NewStyle().Foreground(grayFg).Render
	warning   = lipgloss.NewStyle().Foreground(red).Render
	bright    = lipgloss.NewStyle().Foreground(brightF).Bold(true).Render
)

// stateStyle colors a scheduler state name.
func stateStyle(state string) string {
	switch state {
	case "running", "idle":
		return faint(state)
	case "stopped":
		return warning(state)
	default:
		return lipgloss.NewStyle().Foreground(yellow).Render(state)
	}
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// terminalWidth returns the width of stdout, capped at 120. Non-terminals
// get 80.
func terminalWidth() int {
	if !stdoutIsTerminal() {
		return 80
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return min(w, 120)
}
