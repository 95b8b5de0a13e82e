// Package panel lays out the session body: the screenshot, and beside it
// the QR login code while the session waits for a scan. The split animates
// with a harmonica spring when the QR panel comes and goes.
package panel

import (
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgoai/tgo-sessionwatch/internal/imaging"
	"github.com/tgoai/tgo-sessionwatch/internal/theme"
)

const (
	fps = 60

	minQRWidth  = 24
	minPanelCol = 6
)

// Content is what the panel displays for the selected session.
type Content struct {
	SessionID  string
	Enabled    bool
	QR         []byte
	Frame      []byte
	CapturedAt time.Time
	Err        string
}

// Layout is a resolved split, in columns.
type Layout struct {
	QRWidth   int
	ShotWidth int
}

// ShowsQR reports whether the QR panel is visible.
func (l Layout) ShowsQR() bool { return l.QRWidth > 0 }

// FrameMsg advances the split animation.
type FrameMsg struct{}

// Model holds the panel layout and its animation state.
type Model struct {
	Width  int
	Height int

	showQR    bool
	pos       float64
	vel       float64
	spring    harmonica.Spring
	animating bool
	cache     *imaging.Cache
}

// New creates a panel model rendering through cache.
func New(cache *imaging.Cache) Model {
	if cache == nil {
		cache = imaging.NewCache(16)
	}
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 1.0),
		cache:  cache,
	}
}

// QRPanelWidth is the width the QR panel settles at for a total width.
func QRPanelWidth(width int) int {
	w := width * 2 / 5
	if w < minQRWidth {
		w = minQRWidth
	}
	if w > width-minPanelCol {
		w = width - minPanelCol
	}
	if w < 0 {
		w = 0
	}
	return w
}

// Target returns the layout the panel is moving towards.
func Target(width int, showQR bool) Layout {
	if !showQR {
		return Layout{ShotWidth: width}
	}
	qr := QRPanelWidth(width)
	return Layout{QRWidth: qr, ShotWidth: width - qr}
}

// Target returns the layout this panel is moving towards.
func (m Model) Target() Layout {
	return Target(m.Width, m.showQR)
}

// Current returns the layout as drawn right now.
func (m Model) Current() Layout {
	qr := int(math.Round(m.pos))
	if qr < minPanelCol {
		qr = 0
	}
	if qr > m.Width {
		qr = m.Width
	}
	return Layout{QRWidth: qr, ShotWidth: m.Width - qr}
}

// Animating reports whether the split is still moving.
func (m Model) Animating() bool { return m.animating }

// SetQR shows or hides the QR panel, starting the animation if needed.
func (m Model) SetQR(show bool) (Model, tea.Cmd) {
	if show == m.showQR {
		return m, nil
	}
	m.showQR = show
	return m.animate()
}

// SetSize updates the panel dimensions. The split jumps to the new target.
func (m Model) SetSize(width, height int) Model {
	m.Width = width
	m.Height = height
	m.pos = float64(m.Target().QRWidth)
	m.vel = 0
	m.animating = false
	return m
}

func (m Model) animate() (Model, tea.Cmd) {
	if m.animating {
		return m, nil
	}
	m.animating = true
	return m, frame()
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{} })
}

// Update steps the animation on FrameMsg.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(FrameMsg); !ok || !m.animating {
		return m, nil
	}
	target := float64(m.Target().QRWidth)
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, target)
	if math.Abs(m.pos-target) < 0.5 && math.Abs(m.vel) < 0.5 {
		m.pos, m.vel = target, 0
		m.animating = false
		return m, nil
	}
	return m, frame()
}

// View renders the split for c.
func (m Model) View(c Content) string {
	l := m.Current()
	height := m.Height
	if height < 6 {
		height = 6
	}

	shot := m.screenshotView(c, l.ShotWidth, height)
	if !l.ShowsQR() {
		return shot
	}
	qr := m.qrView(c, l.QRWidth, height)
	return lipgloss.JoinHorizontal(lipgloss.Top, qr, shot)
}

func boxStyle(width, height int, border lipgloss.Color) lipgloss.Style {
	return theme.StyleBorder.
		BorderForeground(border).
		Width(max(width-2, 1)).
		Height(max(height-2, 1))
}

func (m Model) qrView(c Content, width, height int) string {
	title := theme.StyleHeader.Render("Scan to log in")
	inner := max(width-4, 1)

	body := theme.StyleDimmed.Render("waiting for QR code")
	if len(c.QR) > 0 {
		text, err := m.cache.Render(c.QR, imaging.KindMono, inner, 0)
		if err != nil {
			body = theme.StyleError.Render("QR code unreadable")
		} else {
			body = text
		}
	}
	content := lipgloss.JoinVertical(lipgloss.Left, title, "", body)
	return boxStyle(width, height, theme.ColorQRPending).Render(content)
}

func (m Model) screenshotView(c Content, width, height int) string {
	header := theme.StyleHeader.Render("Screen")
	if c.SessionID != "" {
		header += theme.StyleDimmed.Render("  " + c.SessionID)
	}
	if !c.CapturedAt.IsZero() {
		header += theme.StyleDimmed.Render("  captured " + c.CapturedAt.Local().Format("15:04:05"))
	}

	lines := []string{header}
	if c.Err != "" {
		lines = append(lines, theme.StyleError.Render("⚠ "+c.Err+"  (r to reconnect)"))
	}

	used := len(lines) + 2
	switch {
	case !c.Enabled:
		lines = append(lines, "", theme.StyleDimmed.Render("Session disabled. Press e to enable."))
	case len(c.Frame) == 0:
		lines = append(lines, "", theme.StyleDimmed.Render("No screenshot yet."))
	default:
		text, err := m.cache.Render(c.Frame, imaging.KindColor, max(width-4, 1), max(height-used-1, 1))
		if err != nil {
			lines = append(lines, "", theme.StyleError.Render("Screenshot unreadable"))
		} else {
			lines = append(lines, text)
		}
	}
	return boxStyle(width, height, theme.ColorBorder).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
