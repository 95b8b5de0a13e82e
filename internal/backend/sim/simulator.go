// Package sim drives fake device sessions through their login lifecycle so
// the console can be exercised without real devices.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/session"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/config"
	"github.com/tgoai/tgo-sessionwatch/internal/logging"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrDisabled = errors.New("session is disabled")
)

// Detail strings reported in session_status.
const (
	DetailIdle        = "idle"
	DetailWaitingScan = "waiting_for_scan"
	DetailPolling     = "polling_messages"
	DetailExpired     = "login_expired"

	expiredError   = "session expired"
	qrFailedPrefix = "qr generation failed: "
)

// Notifier receives sessions whose roster entry changed.
type Notifier interface {
	QueueUpdate(states []*session.State)
}

type Option func(*Simulator)

func WithLogger(l logging.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// WithLoad replaces the host load probe drawn into screenshots.
func WithLoad(fn LoadFunc) Option {
	return func(s *Simulator) { s.load = fn }
}

type Simulator struct {
	cfg    config.SimulatorConfig
	store  *session.Store
	notify Notifier
	log    logging.Logger
	load   LoadFunc
	chaos  *Chaos
}

func New(cfg config.SimulatorConfig, store *session.Store, notify Notifier, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:    cfg,
		store:  store,
		notify: notify,
		log:    logging.Discard(),
		load:   HostLoad,
		chaos:  NewChaos(cfg.LatencyJitter, cfg.FailureRate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chaos returns the fault injector applied to per-session requests.
func (s *Simulator) Chaos() *Chaos { return s.chaos }

// Seed registers the configured sessions. Enabled ones start waiting for a
// QR scan.
func (s *Simulator) Seed(seeds []config.SessionSeed, now time.Time) {
	for _, seed := range seeds {
		st := &session.State{
			ID:           seed.ID,
			Name:         seed.Name,
			Enabled:      seed.Enabled,
			Connectivity: client.ConnOffline,
			Detail:       DetailIdle,
		}
		if st.Enabled {
			s.issueQR(st, now)
		}
		s.store.Update(st)
	}
	s.log.WithField("sessions", len(seeds)).Info("sessions seeded")
}

// Start ticks the simulation until ctx is cancelled.
func (s *Simulator) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Simulator) run(ctx context.Context) {
	tick := s.cfg.Tick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Step advances every enabled session by one tick and refreshes its screen.
func (s *Simulator) Step(now time.Time) {
	load, err := s.load(context.Background())
	if err != nil {
		s.log.WithError(err).Debug("host load unavailable")
	}

	var updates []*session.State
	for _, st := range s.store.GetAll() {
		if !st.Enabled {
			continue
		}
		var changed bool
		next, ok := s.store.Mutate(st.ID, func(st *session.State) {
			before := st.Connectivity
			s.advance(st, now)
			s.paint(st, now, load)
			changed = st.Connectivity != before
		})
		if ok && changed {
			s.log.WithFields(logrus.Fields{
				"session":      next.ID,
				"connectivity": next.Connectivity,
			}).Info("connectivity changed")
			updates = append(updates, next)
		}
	}
	if len(updates) > 0 && s.notify != nil {
		s.notify.QueueUpdate(updates)
	}
}

func (s *Simulator) advance(st *session.State, now time.Time) {
	st.PhaseTicks++
	switch st.Connectivity {
	case client.ConnQRPending:
		if s.cfg.QRScanAfter > 0 && st.PhaseTicks >= s.cfg.QRScanAfter {
			login(st, now)
		}
	case client.ConnLoggedIn:
		st.LastHeartbeat = now
		if s.cfg.ExpireAfter > 0 && st.PhaseTicks >= s.cfg.ExpireAfter {
			expire(st)
		}
	case client.ConnExpired:
	default:
		s.issueQR(st, now)
	}
}

// SetEnabled turns a session on or off. Disabling drops its login and
// screen; enabling starts a fresh QR login.
func (s *Simulator) SetEnabled(id string, enabled bool, now time.Time) (*session.State, error) {
	st, ok := s.store.Mutate(id, func(st *session.State) {
		if st.Enabled == enabled {
			return
		}
		st.Enabled = enabled
		if enabled {
			s.issueQR(st, now)
			return
		}
		*st = session.State{
			ID:           st.ID,
			Name:         st.Name,
			Order:        st.Order,
			Connectivity: client.ConnOffline,
			Detail:       DetailIdle,
		}
	})
	if !ok {
		return nil, ErrNotFound
	}
	s.log.WithFields(logrus.Fields{"session": id, "enabled": enabled}).Info("session toggled")
	if s.notify != nil {
		s.notify.QueueUpdate([]*session.State{st})
	}
	return st, nil
}

// Reconnect re-establishes a session. A logged-in session keeps its login
// with a fresh heartbeat; any other state restarts the QR login.
func (s *Simulator) Reconnect(id string, now time.Time) (*session.State, error) {
	var disabled bool
	st, ok := s.store.Mutate(id, func(st *session.State) {
		if !st.Enabled {
			disabled = true
			return
		}
		if st.Connectivity == client.ConnLoggedIn {
			st.LastHeartbeat = now
			st.PhaseTicks = 0
			st.MessagePollActive = true
			st.Error = ""
			return
		}
		s.issueQR(st, now)
	})
	switch {
	case !ok:
		return nil, ErrNotFound
	case disabled:
		return nil, ErrDisabled
	}
	s.log.WithFields(logrus.Fields{
		"session":      id,
		"connectivity": st.Connectivity,
	}).Info("session reconnected")
	if s.notify != nil {
		s.notify.QueueUpdate([]*session.State{st})
	}
	return st, nil
}

func (s *Simulator) issueQR(st *session.State, now time.Time) {
	st.Connectivity = client.ConnQRPending
	st.Detail = DetailWaitingScan
	st.Error = ""
	st.LoginID = ""
	st.MessagePollActive = false
	st.PhaseTicks = 0
	st.QRIssuedAt = now

	png, err := qrcode.Encode(LoginURL(st.ID), qrcode.Medium, -1)
	if err != nil {
		st.QRCode = nil
		st.Error = qrFailedPrefix + err.Error()
		s.log.WithError(err).WithField("session", st.ID).Warn("qr generation failed")
		return
	}
	st.QRCode = png
}

// LoginURL is the content encoded in a session's login QR code. Every call
// carries a fresh nonce so reissued codes differ.
func LoginURL(id string) string {
	return fmt.Sprintf("tgo://login/%s?nonce=%s", id, uuid.NewString())
}

func login(st *session.State, now time.Time) {
	st.Connectivity = client.ConnLoggedIn
	st.Detail = DetailPolling
	st.Error = ""
	st.LoginID = uuid.NewString()
	st.LoggedInAt = now
	st.LastHeartbeat = now
	st.MessagePollActive = true
	st.PhaseTicks = 0
	st.QRCode = nil
}

func expire(st *session.State) {
	st.Connectivity = client.ConnExpired
	st.Detail = DetailExpired
	st.Error = expiredError
	st.MessagePollActive = false
	st.PhaseTicks = 0
}
