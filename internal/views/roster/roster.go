// Package roster provides the session list sidebar.
package roster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/theme"
)

// Model holds the roster state. Entries are kept sorted by ID so the
// selection is stable across deltas.
type Model struct {
	Width   int
	Height  int
	Focused bool

	entries  []client.RosterEntry
	selected int
}

// New creates an empty roster.
func New() Model {
	return Model{}
}

// SetSessions replaces the roster with a snapshot, keeping the current
// selection when it survives.
func (m *Model) SetSessions(sessions []client.RosterEntry) {
	prev, _ := m.Selected()
	m.entries = append(m.entries[:0:0], sessions...)
	m.sort()
	m.reselect(prev.ID)
}

// ApplyDelta upserts updates and drops removed IDs.
func (m *Model) ApplyDelta(updates []client.RosterEntry, removed []string) {
	prev, _ := m.Selected()
	for _, u := range updates {
		if i := m.index(u.ID); i >= 0 {
			m.entries[i] = u
		} else {
			m.entries = append(m.entries, u)
		}
	}
	if len(removed) > 0 {
		drop := make(map[string]bool, len(removed))
		for _, id := range removed {
			drop[id] = true
		}
		kept := m.entries[:0]
		for _, e := range m.entries {
			if !drop[e.ID] {
				kept = append(kept, e)
			}
		}
		m.entries = kept
	}
	m.sort()
	m.reselect(prev.ID)
}

// Upsert inserts or replaces one entry.
func (m *Model) Upsert(e client.RosterEntry) {
	m.ApplyDelta([]client.RosterEntry{e}, nil)
}

// Entries returns the roster in display order.
func (m Model) Entries() []client.RosterEntry {
	return m.entries
}

// Len returns the number of sessions.
func (m Model) Len() int { return len(m.entries) }

// Selected returns the highlighted entry.
func (m Model) Selected() (client.RosterEntry, bool) {
	if m.selected < 0 || m.selected >= len(m.entries) {
		return client.RosterEntry{}, false
	}
	return m.entries[m.selected], true
}

// Select highlights id, reporting whether it exists.
func (m *Model) Select(id string) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.selected = i
	return true
}

// MoveUp moves the highlight up one row.
func (m *Model) MoveUp() {
	if m.selected > 0 {
		m.selected--
	}
}

// MoveDown moves the highlight down one row.
func (m *Model) MoveDown() {
	if m.selected < len(m.entries)-1 {
		m.selected++
	}
}

func (m *Model) sort() {
	sort.SliceStable(m.entries, func(i, j int) bool {
		return m.entries[i].ID < m.entries[j].ID
	})
}

func (m *Model) reselect(id string) {
	if id != "" && m.Select(id) {
		return
	}
	if m.selected >= len(m.entries) {
		m.selected = len(m.entries) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m Model) index(id string) int {
	for i, e := range m.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// View renders the roster sidebar.
func (m Model) View() string {
	width := m.Width
	if width < 20 {
		width = 20
	}
	border := theme.ColorBorder
	if m.Focused {
		border = theme.ColorFocus
	}

	lines := []string{theme.StyleHeader.Render("Sessions")}
	if len(m.entries) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("No sessions"))
	}
	nameW := width - 6
	for i, e := range m.entries {
		name := e.DisplayName()
		if len(name) > nameW {
			name = name[:nameW-1] + "…"
		}
		glyph := lipgloss.NewStyle().Foreground(theme.ConnectivityColor(string(e.LoginStatus))).
			Render(theme.ConnectivityGlyph(string(e.LoginStatus)))
		if !e.Enabled {
			glyph = theme.StyleDimmed.Render("-")
			name = theme.StyleDimmed.Render(name)
		}
		cursor := "  "
		if i == m.selected {
			cursor = theme.StyleSelected.Render("> ")
			if e.Enabled {
				name = theme.StyleSelected.Render(name)
			}
		}
		lines = append(lines, fmt.Sprintf("%s%s %s", cursor, glyph, name))
	}

	style := lipgloss.NewStyle().
		Width(width - 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border)
	if m.Height > 2 {
		style = style.Height(m.Height - 2)
	}
	return style.Render(strings.Join(lines, "\n"))
}
