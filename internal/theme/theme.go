// Package theme provides the Lip Gloss palette and styles shared by the
// beefctl commands. It is a leaf package apart from the beefweb types.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/beefweb/beefclient/internal/beefweb"
)

// Playback colors.
var (
	ColorPlaying = lipgloss.Color("#22c55e")
	ColorPaused  = lipgloss.Color("#d97706")
	ColorStopped = lipgloss.Color("#6b7280")
)

// HTTP status colors.
var (
	ColorStatusOK       = lipgloss.Color("#22c55e")
	ColorStatusRedirect = lipgloss.Color("#06b6d4")
	ColorStatusClient   = lipgloss.Color("#d97706")
	ColorStatusServer   = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#a855f7")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a playback state.
func StateColor(state beefweb.PlaybackState) lipgloss.Color {
	switch state {
	case beefweb.Playing:
		return ColorPlaying
	case beefweb.Paused:
		return ColorPaused
	default:
		return ColorStopped
	}
}

// StateGlyph returns a glyph for a playback state.
func StateGlyph(state beefweb.PlaybackState) string {
	switch state {
	case beefweb.Playing:
		return "▶"
	case beefweb.Paused:
		return "❚❚"
	case beefweb.Stopped:
		return "■"
	default:
		return "·"
	}
}

// StatusColor returns the color for an HTTP status code. Zero means no
// response was received.
func StatusColor(code int) lipgloss.Color {
	switch {
	case code == 0:
		return ColorDimmed
	case code < 300:
		return ColorStatusOK
	case code < 400:
		return ColorStatusRedirect
	case code < 500:
		return ColorStatusClient
	default:
		return ColorStatusServer
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleAccent = lipgloss.NewStyle().
		Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorDanger)
)
