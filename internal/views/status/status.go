package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgoai/tgo-sessionwatch/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected    bool
	SessionID    string
	Connectivity string
	Heartbeat    time.Time
	NextPoll     time.Duration
	Reconnecting bool
	Enabled      bool
	Sessions     int
	Width        int
	Now          func() time.Time

	spinner spinner.Model
}

// New creates a status bar model.
func New() Model {
	return Model{
		Now:     time.Now,
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot)),
	}
}

// Tick starts the reconnect spinner.
func (m Model) Tick() tea.Cmd {
	return m.spinner.Tick
}

// Update advances the spinner.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(spinner.TickMsg); !ok {
		return m, nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	if !m.Reconnecting {
		return m, nil
	}
	return m, cmd
}

// HeartbeatAge formats how long ago the last heartbeat was seen.
func HeartbeatAge(hb, now time.Time) string {
	if hb.IsZero() {
		return "never"
	}
	d := now.Sub(hb)
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Backend")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	parts := []string{connStr, fmt.Sprintf("%d sessions", m.Sessions)}

	if m.SessionID != "" {
		parts = append(parts, theme.StyleHeader.Render(m.SessionID))
		if !m.Enabled {
			parts = append(parts, theme.StyleDimmed.Render("disabled"))
		} else {
			parts = append(parts, theme.ConnectivityBadge(m.Connectivity))
			now := time.Now()
			if m.Now != nil {
				now = m.Now()
			}
			parts = append(parts, "heartbeat "+HeartbeatAge(m.Heartbeat, now))
			if m.NextPoll > 0 {
				parts = append(parts, theme.StyleDimmed.Render("poll "+m.NextPoll.String()))
			}
			if m.Reconnecting {
				parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorWarning).
					Render(m.spinner.View()+" reconnecting"))
			}
		}
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := strings.Join(parts, sep)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
