package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dukerupert/tasknotify/internal/model"
	"github.com/dukerupert/tasknotify/internal/toast"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	colorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	colorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorWhite).
	Background(colorBlue).
	Padding(0, 1)

var statusBarStyle = lipgloss.NewStyle().
	Foreground(colorWhite).
	Background(colorSubtle).
	Padding(0, 1)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var mutedStyle = lipgloss.NewStyle().
	Foreground(colorGray).
	Italic(true)

var toastBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1)

// toastStyle colours the border and title of a toast by type.
func toastStyle(t toast.Type, selected bool) lipgloss.Style {
	c := lipgloss.TerminalColor(colorBlue)
	switch t {
	case toast.TypeSuccess:
		c = colorGreen
	case toast.TypeWarning:
		c = colorYellow
	case toast.TypeError:
		c = colorRed
	}
	s := toastBoxStyle.BorderForeground(c)
	if selected {
		s = s.BorderStyle(lipgloss.ThickBorder())
	}
	return s
}

func connStyle(st model.ConnectionState) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch st {
	case model.ConnOpen:
		return base.Foreground(colorGreen)
	case model.ConnConnecting, model.ConnReconnecting:
		return base.Foreground(colorYellow)
	case model.ConnError:
		return base.Foreground(colorRed)
	default:
		return base.Foreground(colorGray)
	}
}
