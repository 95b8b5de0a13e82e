package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/imaging"
	"github.com/tgoai/tgo-sessionwatch/internal/logging"
	"github.com/tgoai/tgo-sessionwatch/internal/monitor"
	"github.com/tgoai/tgo-sessionwatch/internal/theme"
	"github.com/tgoai/tgo-sessionwatch/internal/views/debug"
	"github.com/tgoai/tgo-sessionwatch/internal/views/help"
	"github.com/tgoai/tgo-sessionwatch/internal/views/panel"
	"github.com/tgoai/tgo-sessionwatch/internal/views/roster"
	"github.com/tgoai/tgo-sessionwatch/internal/views/status"
)

const rosterWidth = 28

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
	OverlayHelp
)

// Backend is everything the TUI asks of the backend over HTTP.
// *client.HTTPClient satisfies it.
type Backend interface {
	monitor.Fetcher
	Sessions(ctx context.Context) ([]client.RosterEntry, error)
	SetEnabled(ctx context.Context, sessionID string, enabled bool) (*client.RosterEntry, error)
}

type sessionsMsg struct {
	sessions []client.RosterEntry
	err      error
}

type enabledMsg struct {
	entry *client.RosterEntry
	id    string
	err   error
}

// Option configures the root model.
type Option func(*Model)

// WithPolicy sets the poll cadence for session monitors.
func WithPolicy(p monitor.Policy) Option {
	return func(m *Model) { m.policy = p }
}

// WithLogger sets the logger handed to monitors.
func WithLogger(l logging.Logger) Option {
	return func(m *Model) { m.log = l }
}

// WithDebugLog backs the debug overlay with an existing log, typically one
// already installed as a logrus hook.
func WithDebugLog(l *debug.Log) Option {
	return func(m *Model) { m.debug = debug.New(l) }
}

// WithMonitorOptions appends options applied to every monitor created.
func WithMonitorOptions(opts ...monitor.Option) Option {
	return func(m *Model) { m.monOpts = append(m.monOpts, opts...) }
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	api    Backend
	ctx    context.Context
	cancel context.CancelFunc
	log    logging.Logger

	policy  monitor.Policy
	monOpts []monitor.Option

	keys    KeyMap
	width   int
	height  int
	overlay Overlay

	roster    roster.Model
	mon       monitor.Model
	hasMon    bool
	panel     panel.Model
	statusBar status.Model
	debug     debug.Model
	help      help.Model

	connected bool
}

// New creates the root model. ws may be nil, in which case the roster is
// only loaded over HTTP.
func New(ws *client.WSClient, api Backend, opts ...Option) Model {
	ctx, cancel := context.WithCancel(context.Background())
	keys := DefaultKeyMap()
	m := Model{
		ws:        ws,
		api:       api,
		ctx:       ctx,
		cancel:    cancel,
		log:       logging.Discard(),
		policy:    monitor.DefaultPolicy(),
		keys:      keys,
		roster:    roster.New(),
		panel:     panel.New(imaging.NewCache(32)),
		statusBar: status.New(),
		debug:     debug.New(nil),
		help:      help.New(keys.HelpBindings()),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the roster feed and the initial session list fetch.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchSessions()}
	if m.ws != nil {
		cmds = append(cmds, m.ws.Listen(m.ctx))
	}
	return tea.Batch(cmds...)
}

func (m Model) fetchSessions() tea.Cmd {
	if m.api == nil {
		return nil
	}
	ctx, api := m.ctx, m.api
	return func() tea.Msg {
		list, err := api.Sessions(ctx)
		return sessionsMsg{sessions: list, err: err}
	}
}

func (m Model) readNext() tea.Cmd {
	if m.ws == nil {
		return nil
	}
	return m.ws.ReadLoop(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width - 2
		m.roster.Width = rosterWidth
		m.roster.Height = msg.Height - 5
		m.panel = m.panel.SetSize(max(msg.Width-rosterWidth, 10), msg.Height-5)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.RosterConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.debug.Add("ws", "roster feed connected")
		return m, m.readNext()

	case client.RosterDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		if msg.Err != nil {
			m.debug.Add("ws", "roster feed lost: "+msg.Err.Error())
		}
		if m.ws == nil {
			return m, nil
		}
		return m, m.ws.Listen(m.ctx)

	case client.RosterSnapshotMsg:
		m.roster.SetSessions(msg.Payload.Sessions)
		cmd := m.syncSelection()
		return m, tea.Batch(cmd, m.readNext())

	case client.RosterDeltaMsg:
		m.roster.ApplyDelta(msg.Payload.Updates, msg.Payload.Removed)
		cmd := m.syncSelection()
		return m, tea.Batch(cmd, m.readNext())

	case client.RosterErrorMsg:
		m.debug.Add("err", "backend: "+msg.Payload.Message)
		return m, m.readNext()

	case sessionsMsg:
		if msg.err != nil {
			m.debug.Add("err", "list sessions: "+msg.err.Error())
			return m, nil
		}
		m.roster.SetSessions(msg.sessions)
		cmd := m.syncSelection()
		return m, cmd

	case enabledMsg:
		if msg.err != nil {
			m.debug.Add("err", fmt.Sprintf("toggle %s: %v", msg.id, msg.err))
			return m, nil
		}
		m.roster.Upsert(*msg.entry)
		cmd := m.syncSelection()
		return m, cmd

	case panel.FrameMsg:
		var cmd tea.Cmd
		m.panel, cmd = m.panel.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.statusBar, cmd = m.statusBar.Update(msg)
		return m, cmd
	}

	if !m.hasMon {
		return m, nil
	}
	var cmd tea.Cmd
	m.mon, cmd = m.mon.Update(msg)
	viewCmd := m.syncViews()
	return m, tea.Batch(cmd, viewCmd)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && (m.overlay == OverlayNone || msg.String() == "ctrl+c") {
		m = m.teardown()
		m.cancel()
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape),
			m.overlay == OverlayHelp && key.Matches(msg, m.keys.Help),
			m.overlay == OverlayDebug && key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.ScrollUp):
			m.debug.ScrollUp(1)
		case m.overlay == OverlayDebug && key.Matches(msg, m.keys.ScrollDn):
			m.debug.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		m.roster.MoveUp()
		cmd := m.syncSelection()
		return m, cmd

	case key.Matches(msg, m.keys.Down):
		m.roster.MoveDown()
		cmd := m.syncSelection()
		return m, cmd

	case key.Matches(msg, m.keys.Reconnect):
		if !m.hasMon {
			return m, nil
		}
		var cmd tea.Cmd
		m.mon, cmd = m.mon.Reconnect()
		viewCmd := m.syncViews()
		return m, tea.Batch(cmd, viewCmd)

	case key.Matches(msg, m.keys.Refresh):
		if !m.hasMon {
			return m, nil
		}
		var statusCmd, shotCmd tea.Cmd
		m.mon, statusCmd = m.mon.RefreshStatus()
		m.mon, shotCmd = m.mon.RefreshScreenshot()
		return m, tea.Batch(statusCmd, shotCmd)

	case key.Matches(msg, m.keys.Toggle):
		return m, m.toggleSelected()

	case key.Matches(msg, m.keys.Resync):
		if m.ws != nil {
			if err := m.ws.Resync(); err != nil {
				m.debug.Add("err", "resync: "+err.Error())
			}
		}
		return m, m.fetchSessions()

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil
	}

	return m, nil
}

func (m Model) toggleSelected() tea.Cmd {
	sel, ok := m.roster.Selected()
	if !ok || m.api == nil {
		return nil
	}
	ctx, api, id, want := m.ctx, m.api, sel.ID, !sel.Enabled
	return func() tea.Msg {
		entry, err := api.SetEnabled(ctx, id, want)
		return enabledMsg{entry: entry, id: id, err: err}
	}
}

// syncSelection makes the monitor follow the highlighted roster entry: a
// monitor exists only for the selected session, and polls only while that
// session is enabled.
func (m *Model) syncSelection() tea.Cmd {
	sel, ok := m.roster.Selected()
	if !ok {
		*m = m.teardown()
		return m.syncViews()
	}

	var cmd tea.Cmd
	if m.hasMon && m.mon.ID() != sel.ID {
		*m = m.teardown()
	}
	if !m.hasMon {
		opts := append([]monitor.Option{
			monitor.WithPolicy(m.policy),
			monitor.WithLogger(m.log.WithField("component", "monitor")),
		}, m.monOpts...)
		m.mon = monitor.New(sel.ID, m.api, opts...)
		m.hasMon = true
		m.debug.Add("nav", "watching "+sel.ID)
	}
	switch {
	case sel.Enabled && !m.mon.Enabled():
		m.mon, cmd = m.mon.Enable()
	case !sel.Enabled && m.mon.Enabled():
		m.mon = m.mon.Disable()
	}
	return tea.Batch(cmd, m.syncViews())
}

func (m Model) teardown() Model {
	if m.hasMon {
		m.mon = m.mon.Disable()
		m.hasMon = false
	}
	return m
}

// syncViews copies monitor state into the status bar and panel layout.
func (m *Model) syncViews() tea.Cmd {
	sel, _ := m.roster.Selected()
	m.statusBar.Sessions = m.roster.Len()
	m.statusBar.SessionID = sel.ID
	m.statusBar.Enabled = sel.Enabled

	var cmds []tea.Cmd
	wasReconnecting := m.statusBar.Reconnecting
	if m.hasMon {
		m.statusBar.Connectivity = string(m.mon.Connectivity())
		m.statusBar.Heartbeat = m.mon.Status().Heartbeat()
		m.statusBar.NextPoll = m.mon.StatusInterval()
		m.statusBar.Reconnecting = m.mon.Reconnecting()
	} else {
		m.statusBar.Connectivity = ""
		m.statusBar.Reconnecting = false
		m.statusBar.NextPoll = 0
	}
	if m.statusBar.Reconnecting && !wasReconnecting {
		cmds = append(cmds, m.statusBar.Tick())
	}

	var cmd tea.Cmd
	m.panel, cmd = m.panel.SetQR(m.hasMon && m.mon.ShowQR())
	cmds = append(cmds, cmd)
	return tea.Batch(cmds...)
}

func (m Model) content() panel.Content {
	sel, _ := m.roster.Selected()
	c := panel.Content{SessionID: sel.ID, Enabled: sel.Enabled}
	if !m.hasMon {
		return c
	}
	c.Enabled = m.mon.Enabled()
	c.Err = m.mon.Err()
	if st := m.mon.Status(); st != nil {
		c.QR = st.QRCode
	}
	if f := m.mon.Frame(); f != nil {
		c.Frame = f.Payload
		c.CapturedAt = f.CapturedAt
	}
	return c
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch m.overlay {
	case OverlayDebug:
		body = m.debug.View(m.width, m.height-4)
	case OverlayHelp:
		body = m.help.View(m.width, m.height-4)
	default:
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.roster.View(), m.panel.View(m.content()))
	}

	sections := []string{
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  j/k:select  r:reconnect  R:refresh  e:enable/disable  g:resync  d:debug  ?:help  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
