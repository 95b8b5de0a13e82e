// Package help renders the keybinding overlay from Markdown with glamour.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgoai/tgo-sessionwatch/internal/theme"
)

// Binding is one row of the keybinding table.
type Binding struct {
	Keys string
	Desc string
}

// Model holds the help overlay configuration.
type Model struct {
	Bindings []Binding
	// Style is a glamour standard style name.
	Style string

	cacheWidth int
	cached     string
}

// New creates a help model for bindings.
func New(bindings []Binding) Model {
	return Model{Bindings: bindings, Style: "dark"}
}

// Markdown returns the overlay source.
func (m Model) Markdown() string {
	var sb strings.Builder
	sb.WriteString("# Session Watch\n\n")
	sb.WriteString("Status polls every **5s** until the session is logged in, then every **30s**. ")
	sb.WriteString("Screenshots refresh every **10s**.\n\n")
	sb.WriteString("| Key | Action |\n|---|---|\n")
	for _, b := range m.Bindings {
		fmt.Fprintf(&sb, "| `%s` | %s |\n", b.Keys, b.Desc)
	}
	return sb.String()
}

// Render renders the Markdown for width, reusing the last result when the
// width is unchanged.
func (m *Model) Render(width int) (string, error) {
	if m.cached != "" && m.cacheWidth == width {
		return m.cached, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.Style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(m.Markdown())
	if err != nil {
		return "", err
	}
	m.cached, m.cacheWidth = out, width
	return out, nil
}

// View renders the help overlay panel.
func (m *Model) View(width, height int) string {
	innerW := width - 8
	if innerW < 30 {
		innerW = 30
	}
	body, err := m.Render(innerW)
	if err != nil {
		body = m.Markdown()
	}
	footer := theme.StyleDimmed.Render("?/esc:close")
	return lipgloss.NewStyle().
		Width(innerW + 4).
		MaxHeight(height).
		Padding(0, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, strings.TrimRight(body, "\n"), footer))
}
