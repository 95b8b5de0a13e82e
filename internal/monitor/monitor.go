// Package monitor keeps one remote session's displayed state in step with
// the backend: connectivity status, the latest screenshot and the QR login
// payload.
//
// A Model is a Bubble Tea sub-model. All state changes happen in Update on
// the program's event loop; I/O runs inside commands and comes back as
// messages. Two poll loops run per enabled session:
//
//   - status, every Policy.FastStatus until the session is logged in and
//     every Policy.SlowStatus afterwards. The interval is chosen when the
//     next poll is scheduled, from whatever status is displayed then.
//   - screenshot, every Policy.Screenshot.
//
// Each loop schedules its next tick only after the previous poll settles, so
// at most one request per loop is ever in flight.
//
// Every tick and result message carries the session id and the epoch it was
// issued under. Enable and Disable allocate a fresh process-wide epoch, which
// makes anything still in flight from an earlier lifetime inert. Status
// writes from polls and reconnects share one sequence; a completion older
// than the status already displayed is discarded.
package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/logging"
)

// Messages shown to the user for transport failures. Backend-reported errors
// are shown verbatim instead.
const (
	StatusFetchError     = "Failed to fetch session status"
	ScreenshotFetchError = "Failed to fetch screenshot"
	reconnectErrorPrefix = "Reconnect failed: "
)

// Fetcher is the backend surface a monitor polls. *client.HTTPClient
// satisfies it.
type Fetcher interface {
	Status(ctx context.Context, sessionID string) (*client.SessionStatus, error)
	Screenshot(ctx context.Context, sessionID string) (*client.Screenshot, error)
	Reconnect(ctx context.Context, sessionID string) (*client.SessionStatus, error)
}

// Scheduler arranges for fn's message to be delivered after d. tea.Tick is
// the production implementation.
type Scheduler func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd

// Frame is the screenshot currently displayed.
type Frame struct {
	Payload    []byte
	CapturedAt time.Time
}

// Stats counts requests issued by a monitor over its whole life.
type Stats struct {
	StatusPolls     int
	ScreenshotPolls int
	Reconnects      int
	StaleDropped    int
}

// epochs is shared by every monitor so that a new monitor for a session
// never accepts messages addressed to an old one.
var epochs atomic.Uint64

type statusTickMsg struct {
	id    string
	epoch uint64
	gen   uint64
}

type screenshotTickMsg struct {
	id    string
	epoch uint64
	gen   uint64
}

type settleMsg struct {
	id    string
	epoch uint64
}

type statusResultMsg struct {
	id     string
	epoch  uint64
	seq    uint64
	status *client.SessionStatus
	err    error
}

type screenshotResultMsg struct {
	id    string
	epoch uint64
	seq   uint64
	shot  *client.Screenshot
	err   error
}

type reconnectResultMsg struct {
	id     string
	epoch  uint64
	seq    uint64
	status *client.SessionStatus
	err    error
}

// Model is the monitor for a single session.
type Model struct {
	id       string
	fetcher  Fetcher
	policy   Policy
	schedule Scheduler
	log      logging.Logger
	now      func() time.Time

	enabled bool
	epoch   uint64
	ctx     context.Context
	cancel  context.CancelFunc

	status *client.SessionStatus
	frame  *Frame
	errMsg string

	// Status sequence, shared by polls and reconnects.
	statusSeq     uint64
	statusApplied uint64
	statusPolling uint64 // seq of the in-flight poll, 0 when idle
	statusGen     uint64 // generation of the live status tick
	nextStatus    time.Duration

	// At most one screenshot poll is in flight, so results land in issue
	// order and need no applied sequence.
	shotSeq     uint64
	shotPolling uint64
	shotGen     uint64
	// shotAfterSettle asks for an immediate screenshot poll once the one
	// in flight completes, because it was issued before a reconnect.
	shotAfterSettle bool

	reconnecting bool
	stats        Stats
}

// Option configures a Model.
type Option func(*Model)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(m *Model) { m.policy = p }
}

// WithScheduler overrides tea.Tick.
func WithScheduler(s Scheduler) Option {
	return func(m *Model) { m.schedule = s }
}

// WithLogger sets the logger. Entries carry the session id.
func WithLogger(l logging.Logger) Option {
	return func(m *Model) { m.log = l }
}

// WithClock overrides time.Now for frames that arrive without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// New returns a disabled monitor for sessionID. Call Enable to start
// polling.
func New(sessionID string, f Fetcher, opts ...Option) Model {
	m := Model{
		id:       sessionID,
		fetcher:  f,
		policy:   DefaultPolicy(),
		schedule: tea.Tick,
		log:      logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.log = m.log.WithField("session", sessionID)
	return m
}

// ID returns the monitored session id.
func (m Model) ID() string { return m.id }

// Enabled reports whether the poll loops are running.
func (m Model) Enabled() bool { return m.enabled }

// Status returns the displayed status, or nil while unknown.
func (m Model) Status() *client.SessionStatus { return m.status }

// Connectivity returns the displayed connectivity.
func (m Model) Connectivity() client.Connectivity { return m.status.Connectivity() }

// Frame returns the displayed screenshot, or nil.
func (m Model) Frame() *Frame { return m.frame }

// Err returns the inline error message, or "".
func (m Model) Err() string { return m.errMsg }

// Reconnecting reports whether a reconnect request is in flight.
func (m Model) Reconnecting() bool { return m.reconnecting }

// StatusInterval is the delay of the currently scheduled status tick, or
// zero when none is pending.
func (m Model) StatusInterval() time.Duration { return m.nextStatus }

// Stats returns request counters.
func (m Model) Stats() Stats { return m.stats }

// ShowQR reports whether the QR login panel should be displayed.
func (m Model) ShowQR() bool {
	return m.Connectivity() == client.ConnQRPending && len(m.status.QRCode) > 0
}

// Enable starts both poll loops with an immediate fetch of each. Enabling an
// enabled monitor does nothing.
func (m Model) Enable() (Model, tea.Cmd) {
	if m.enabled {
		return m, nil
	}
	m.clear()
	m.enabled = true
	m.epoch = epochs.Add(1)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.log.WithField("epoch", m.epoch).Info("monitor enabled")

	var statusCmd, shotCmd tea.Cmd
	m, statusCmd = m.RefreshStatus()
	m, shotCmd = m.RefreshScreenshot()
	return m, tea.Batch(statusCmd, shotCmd)
}

// Disable stops both loops, cancels in-flight requests and clears the
// displayed state. Messages already queued for the old epoch are ignored.
func (m Model) Disable() Model {
	if m.cancel != nil {
		m.cancel()
	}
	if m.enabled {
		m.log.Info("monitor disabled")
	}
	m.clear()
	m.enabled = false
	m.epoch = epochs.Add(1)
	m.ctx, m.cancel = nil, nil
	return m
}

func (m *Model) clear() {
	m.status = nil
	m.frame = nil
	m.errMsg = ""
	m.statusPolling = 0
	m.shotPolling = 0
	m.statusApplied = m.statusSeq
	m.statusGen++
	m.shotGen++
	m.nextStatus = 0
	m.shotAfterSettle = false
	m.reconnecting = false
}

// RefreshStatus issues a status poll unless one is already in flight.
func (m Model) RefreshStatus() (Model, tea.Cmd) {
	if !m.enabled || m.statusPolling != 0 {
		return m, nil
	}
	m.statusSeq++
	m.statusPolling = m.statusSeq
	m.stats.StatusPolls++

	id, epoch, seq, ctx, f := m.id, m.epoch, m.statusSeq, m.ctx, m.fetcher
	return m, func() tea.Msg {
		st, err := f.Status(ctx, id)
		return statusResultMsg{id: id, epoch: epoch, seq: seq, status: st, err: err}
	}
}

// RefreshScreenshot issues a screenshot poll unless one is already in
// flight.
func (m Model) RefreshScreenshot() (Model, tea.Cmd) {
	if !m.enabled || m.shotPolling != 0 {
		return m, nil
	}
	m.shotSeq++
	m.shotPolling = m.shotSeq
	m.stats.ScreenshotPolls++

	id, epoch, seq, ctx, f := m.id, m.epoch, m.shotSeq, m.ctx, m.fetcher
	return m, func() tea.Msg {
		shot, err := f.Screenshot(ctx, id)
		return screenshotResultMsg{id: id, epoch: epoch, seq: seq, shot: shot, err: err}
	}
}

// Reconnect asks the backend to re-establish the session. It does nothing
// while a reconnect is already in flight or the monitor is disabled.
func (m Model) Reconnect() (Model, tea.Cmd) {
	if !m.enabled || m.reconnecting {
		return m, nil
	}
	m.reconnecting = true
	m.statusSeq++
	m.stats.Reconnects++
	m.log.Info("reconnect requested")

	id, epoch, seq, ctx, f := m.id, m.epoch, m.statusSeq, m.ctx, m.fetcher
	return m, func() tea.Msg {
		st, err := f.Reconnect(ctx, id)
		return reconnectResultMsg{id: id, epoch: epoch, seq: seq, status: st, err: err}
	}
}

// Update handles the monitor's own messages and ignores everything else.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusTickMsg:
		if !m.owns(msg.id, msg.epoch) || msg.gen != m.statusGen {
			return m, nil
		}
		m.nextStatus = 0
		return m.RefreshStatus()

	case screenshotTickMsg:
		if !m.owns(msg.id, msg.epoch) || msg.gen != m.shotGen {
			return m, nil
		}
		return m.RefreshScreenshot()

	case settleMsg:
		if !m.owns(msg.id, msg.epoch) {
			return m, nil
		}
		if m.shotPolling != 0 {
			m.shotAfterSettle = true
			return m, nil
		}
		return m.RefreshScreenshot()

	case statusResultMsg:
		if !m.owns(msg.id, msg.epoch) {
			return m, nil
		}
		if msg.seq == m.statusPolling {
			m.statusPolling = 0
		}
		var autoCmd tea.Cmd
		m, autoCmd = m.applyStatus(msg.seq, msg.status, msg.err)
		var tickCmd tea.Cmd
		if m.statusPolling == 0 {
			m, tickCmd = m.scheduleStatus()
		}
		return m, tea.Batch(tickCmd, autoCmd)

	case screenshotResultMsg:
		if !m.owns(msg.id, msg.epoch) {
			return m, nil
		}
		if msg.seq == m.shotPolling {
			m.shotPolling = 0
		}
		m = m.applyScreenshot(msg.shot, msg.err)
		if m.shotPolling != 0 {
			return m, nil
		}
		if m.shotAfterSettle {
			m.shotAfterSettle = false
			return m.RefreshScreenshot()
		}
		return m.scheduleScreenshot()

	case reconnectResultMsg:
		if !m.owns(msg.id, msg.epoch) {
			return m, nil
		}
		m.reconnecting = false
		if msg.err != nil {
			m.log.WithError(msg.err).Warn("reconnect failed")
			m.errMsg = reconnectErrorPrefix + msg.err.Error()
			return m, nil
		}
		prev := m.Connectivity()
		var autoCmd tea.Cmd
		m, autoCmd = m.applyStatus(msg.seq, msg.status, nil)

		id, epoch := m.id, m.epoch
		cmds := []tea.Cmd{
			autoCmd,
			m.schedule(m.policy.Settle, func(time.Time) tea.Msg {
				return settleMsg{id: id, epoch: epoch}
			}),
		}
		// A pending status tick was timed for the old connectivity.
		if m.statusPolling == 0 && m.Connectivity() != prev {
			var tickCmd tea.Cmd
			m, tickCmd = m.scheduleStatus()
			cmds = append(cmds, tickCmd)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m Model) owns(id string, epoch uint64) bool {
	return m.enabled && id == m.id && epoch == m.epoch
}

// applyStatus installs a completed status poll or reconnect. It returns a
// command when the new status triggers an automatic reconnect.
func (m Model) applyStatus(seq uint64, st *client.SessionStatus, err error) (Model, tea.Cmd) {
	if seq <= m.statusApplied {
		m.stats.StaleDropped++
		m.log.WithField("seq", seq).Debug("dropping out-of-order status")
		return m, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return m, nil
		}
		m.log.WithError(err).Warn("status poll failed")
		m.errMsg = StatusFetchError
		return m, nil
	}
	if st == nil {
		return m, nil
	}

	prev := m.Connectivity()
	m.status = st
	m.statusApplied = seq
	m.errMsg = st.Error

	next := m.Connectivity()
	if next == prev {
		return m, nil
	}
	m.log.WithField("from", prev).WithField("to", next).Info("connectivity changed")
	if m.policy.AutoReconnect && next == client.ConnExpired {
		return m.Reconnect()
	}
	return m, nil
}

func (m Model) applyScreenshot(shot *client.Screenshot, err error) Model {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return m
		}
		m.log.WithError(err).Warn("screenshot poll failed")
		if m.errMsg == "" {
			m.errMsg = ScreenshotFetchError
		}
		return m
	}
	if shot == nil {
		return m
	}
	if shot.Error != "" {
		if m.errMsg == "" {
			m.errMsg = shot.Error
		}
		return m
	}
	if len(shot.Image) == 0 {
		return m
	}
	captured := shot.CapturedAt()
	if captured.IsZero() {
		captured = m.now()
	}
	m.frame = &Frame{Payload: shot.Image, CapturedAt: captured}
	return m
}

// scheduleStatus replaces any pending status tick with one timed from the
// displayed connectivity.
func (m Model) scheduleStatus() (Model, tea.Cmd) {
	m.statusGen++
	m.nextStatus = m.policy.StatusInterval(m.Connectivity())
	id, epoch, gen := m.id, m.epoch, m.statusGen
	return m, m.schedule(m.nextStatus, func(time.Time) tea.Msg {
		return statusTickMsg{id: id, epoch: epoch, gen: gen}
	})
}

func (m Model) scheduleScreenshot() (Model, tea.Cmd) {
	m.shotGen++
	id, epoch, gen := m.id, m.epoch, m.shotGen
	return m, m.schedule(m.policy.Screenshot, func(time.Time) tea.Msg {
		return screenshotTickMsg{id: id, epoch: epoch, gen: gen}
	})
}
