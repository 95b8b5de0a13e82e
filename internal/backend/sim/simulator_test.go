package sim

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tgoai/tgo-sessionwatch/internal/backend/session"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/config"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]*session.State
}

func (r *recorder) QueueUpdate(states []*session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, states)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func fixedLoad(context.Context) (Load, error) {
	return Load{CPU: 50, Memory: 25}, nil
}

var t0 = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestSimulator(t *testing.T, seeds ...config.SessionSeed) (*Simulator, *session.Store, *recorder) {
	t.Helper()
	store := session.NewStore()
	rec := &recorder{}
	cfg := config.SimulatorConfig{QRScanAfter: 3, ExpireAfter: 5}
	s := New(cfg, store, rec, WithLoad(fixedLoad))
	s.Seed(seeds, t0)
	return s, store, rec
}

func mustGet(t *testing.T, store *session.Store, id string) *session.State {
	t.Helper()
	st, ok := store.Get(id)
	if !ok {
		t.Fatalf("session %s missing", id)
	}
	return st
}

func TestSeed(t *testing.T) {
	_, store, _ := newTestSimulator(t,
		config.SessionSeed{ID: "a", Name: "Phone A", Enabled: true},
		config.SessionSeed{ID: "b", Enabled: false},
	)

	a := mustGet(t, store, "a")
	if a.Connectivity != client.ConnQRPending || a.Detail != DetailWaitingScan {
		t.Errorf("enabled seed should wait for scan, got %s/%s", a.Connectivity, a.Detail)
	}
	if _, err := png.Decode(bytes.NewReader(a.QRCode)); err != nil {
		t.Errorf("QR code is not a PNG: %v", err)
	}

	b := mustGet(t, store, "b")
	if b.Connectivity != client.ConnOffline || len(b.QRCode) != 0 {
		t.Errorf("disabled seed should be offline without a QR, got %+v", b)
	}
}

func TestLifecycle(t *testing.T) {
	s, store, rec := newTestSimulator(t, config.SessionSeed{ID: "a", Enabled: true})

	now := t0
	for i := 0; i < 3; i++ {
		now = now.Add(time.Second)
		s.Step(now)
	}
	a := mustGet(t, store, "a")
	if a.Connectivity != client.ConnLoggedIn {
		t.Fatalf("after scan delay connectivity = %s, want logged_in", a.Connectivity)
	}
	if a.LoginID == "" || !a.MessagePollActive || len(a.QRCode) != 0 {
		t.Errorf("login did not populate session: %+v", a)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 notification for the login, got %d", rec.count())
	}

	for i := 0; i < 4; i++ {
		now = now.Add(time.Second)
		s.Step(now)
	}
	if hb := mustGet(t, store, "a").LastHeartbeat; !hb.Equal(now) {
		t.Errorf("heartbeat = %v, want %v", hb, now)
	}

	now = now.Add(time.Second)
	s.Step(now)
	a = mustGet(t, store, "a")
	if a.Connectivity != client.ConnExpired || a.Error != expiredError {
		t.Fatalf("expected expiry, got %s %q", a.Connectivity, a.Error)
	}

	// Expired sessions stay expired until reconnected.
	s.Step(now.Add(time.Second))
	if got := mustGet(t, store, "a").Connectivity; got != client.ConnExpired {
		t.Errorf("expired session moved to %s on its own", got)
	}
}

func TestStepPaintsScreen(t *testing.T) {
	s, store, _ := newTestSimulator(t,
		config.SessionSeed{ID: "a", Enabled: true},
		config.SessionSeed{ID: "b"},
	)
	s.Step(t0.Add(time.Second))

	a := mustGet(t, store, "a")
	img, err := png.Decode(bytes.NewReader(a.Screen))
	if err != nil {
		t.Fatalf("screen is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != ScreenWidth || b.Dy() != ScreenHeight {
		t.Errorf("screen is %dx%d", b.Dx(), b.Dy())
	}
	if !a.ScreenAt.Equal(t0.Add(time.Second)) {
		t.Errorf("ScreenAt = %v", a.ScreenAt)
	}

	if len(mustGet(t, store, "b").Screen) != 0 {
		t.Error("disabled session should not be painted")
	}
}

func TestReconnect(t *testing.T) {
	s, store, _ := newTestSimulator(t,
		config.SessionSeed{ID: "a", Enabled: true},
		config.SessionSeed{ID: "b"},
	)
	before := mustGet(t, store, "a").QRCode

	st, err := s.Reconnect("a", t0.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if st.Connectivity != client.ConnQRPending {
		t.Errorf("reconnect of a pending session should reissue the QR, got %s", st.Connectivity)
	}
	if bytes.Equal(before, st.QRCode) {
		t.Error("reissued QR code should differ")
	}

	if _, err := s.Reconnect("b", t0); !errors.Is(err, ErrDisabled) {
		t.Errorf("reconnect of disabled session: err = %v, want ErrDisabled", err)
	}
	if _, err := s.Reconnect("missing", t0); !errors.Is(err, ErrNotFound) {
		t.Errorf("reconnect of missing session: err = %v, want ErrNotFound", err)
	}
}

func TestReconnectKeepsLogin(t *testing.T) {
	s, store, _ := newTestSimulator(t, config.SessionSeed{ID: "a", Enabled: true})
	for i := 1; i <= 3; i++ {
		s.Step(t0.Add(time.Duration(i) * time.Second))
	}
	login := mustGet(t, store, "a").LoginID

	later := t0.Add(time.Minute)
	st, err := s.Reconnect("a", later)
	if err != nil {
		t.Fatal(err)
	}
	if st.Connectivity != client.ConnLoggedIn || st.LoginID != login {
		t.Errorf("reconnect dropped a healthy login: %+v", st)
	}
	if !st.LastHeartbeat.Equal(later) {
		t.Errorf("heartbeat not refreshed: %v", st.LastHeartbeat)
	}
}

func TestSetEnabled(t *testing.T) {
	s, store, rec := newTestSimulator(t, config.SessionSeed{ID: "a", Name: "Phone", Enabled: true})
	s.Step(t0.Add(time.Second))

	st, err := s.SetEnabled("a", false, t0)
	if err != nil {
		t.Fatal(err)
	}
	if st.Enabled || st.Connectivity != client.ConnOffline || len(st.Screen) != 0 || len(st.QRCode) != 0 {
		t.Errorf("disable should clear the session, got %+v", st)
	}
	if st.Name != "Phone" {
		t.Errorf("disable lost the name: %q", st.Name)
	}
	if rec.count() != 1 {
		t.Errorf("expected a roster notification, got %d", rec.count())
	}

	st, _ = s.SetEnabled("a", true, t0)
	if st.Connectivity != client.ConnQRPending {
		t.Errorf("enable should start a QR login, got %s", st.Connectivity)
	}
	if got := mustGet(t, store, "a"); !got.Enabled {
		t.Error("enable not stored")
	}

	if _, err := s.SetEnabled("missing", true, t0); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoginURL(t *testing.T) {
	a, b := LoginURL("device-01"), LoginURL("device-01")
	if !strings.HasPrefix(a, "tgo://login/device-01?nonce=") {
		t.Errorf("unexpected login URL %q", a)
	}
	if a == b {
		t.Error("login URLs should carry a fresh nonce")
	}
}

func TestChaos(t *testing.T) {
	var nilChaos *Chaos
	if nilChaos.Enabled() || nilChaos.Fail() != nil || nilChaos.Delay(context.Background()) != nil {
		t.Error("nil chaos must be inert")
	}

	always := NewChaos(0, 1)
	if !errors.Is(always.Fail(), ErrInjected) {
		t.Error("failure rate 1 should always fail")
	}
	never := NewChaos(0, 0)
	if never.Enabled() || never.Fail() != nil {
		t.Error("zero chaos should never fail")
	}

	slow := NewChaos(time.Hour, 0)
	slow.rand = func() float64 { return 0.5 }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slow.Delay(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Delay on cancelled ctx: err = %v", err)
	}
}
