// Package theme provides the Lip Gloss color palette and reusable styles
// for the session watcher TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Connectivity colors.
var (
	ColorUnknown   = lipgloss.Color("#6b7280")
	ColorOffline   = lipgloss.Color("#dc2626")
	ColorQRPending = lipgloss.Color("#d97706")
	ColorLoggedIn  = lipgloss.Color("#22c55e")
	ColorExpired   = lipgloss.Color("#a855f7")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorFocus   = lipgloss.Color("#3b82f6")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorInfo    = lipgloss.Color("#2563eb")
	ColorAccent  = lipgloss.Color("#7c3aed")
)

// ConnectivityColor returns the color for a login_status value.
func ConnectivityColor(state string) lipgloss.Color {
	switch state {
	case "offline":
		return ColorOffline
	case "qr_pending":
		return ColorQRPending
	case "logged_in":
		return ColorLoggedIn
	case "expired":
		return ColorExpired
	default:
		return ColorUnknown
	}
}

// ConnectivityGlyph returns a Unicode glyph for a login_status value.
func ConnectivityGlyph(state string) string {
	switch state {
	case "offline":
		return "○"
	case "qr_pending":
		return "◌"
	case "logged_in":
		return "●"
	case "expired":
		return "✗"
	default:
		return "·"
	}
}

// ConnectivityBadge renders a colored glyph and label, e.g. "● logged_in".
func ConnectivityBadge(state string) string {
	if state == "" {
		state = "unknown"
	}
	return lipgloss.NewStyle().
		Foreground(ConnectivityColor(state)).
		Render(ConnectivityGlyph(state) + " " + state)
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
