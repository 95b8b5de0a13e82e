package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/session"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/sim"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/config"
)

var t0 = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func noLoad(context.Context) (sim.Load, error) { return sim.Load{}, nil }

type fixture struct {
	store *session.Store
	sim   *sim.Simulator
	bc    *Broadcaster
	ts    *httptest.Server
}

func newFixture(t *testing.T, cfg config.SimulatorConfig, opts ...Option) *fixture {
	t.Helper()
	store := session.NewStore()
	bc := NewBroadcaster(store, 5*time.Millisecond, nil)
	s := sim.New(cfg, store, bc, sim.WithLoad(noLoad))
	s.Seed([]config.SessionSeed{
		{ID: "device-01", Name: "Phone A", Enabled: true},
		{ID: "device-02", Name: "Tablet", Enabled: false},
	}, t0)
	s.Step(t0.Add(time.Second))

	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	ts := httptest.NewServer(New(store, s, bc, opts...).Handler())
	t.Cleanup(ts.Close)
	return &fixture{store: store, sim: s, bc: bc, ts: ts}
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSessionsRoute(t *testing.T) {
	f := newFixture(t, config.SimulatorConfig{})

	resp := get(t, f.ts.URL+"/api/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("response has no request id")
	}
	var entries []client.RosterEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != "device-01" || entries[1].ID != "device-02" {
		t.Fatalf("unexpected roster %+v", entries)
	}
	if entries[0].LoginStatus != client.ConnQRPending || entries[1].LoginStatus != client.ConnOffline {
		t.Errorf("unexpected login states %s, %s", entries[0].LoginStatus, entries[1].LoginStatus)
	}
}

func TestHTTPClientRoundTrip(t *testing.T) {
	f := newFixture(t, config.SimulatorConfig{})
	c := client.NewHTTPClient(f.ts.URL, "", time.Second)
	ctx := context.Background()

	st, err := c.Status(ctx, "device-01")
	if err != nil {
		t.Fatal(err)
	}
	if st.Connectivity() != client.ConnQRPending || len(st.QRCode) == 0 {
		t.Errorf("expected a QR login, got %+v", st)
	}
	if st.SessionStatus != sim.DetailWaitingScan {
		t.Errorf("session_status = %q", st.SessionStatus)
	}

	shot, err := c.Screenshot(ctx, "device-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(shot.Image) == 0 || shot.CapturedAt().IsZero() {
		t.Errorf("expected a frame, got %+v", shot)
	}

	if _, err := c.Status(ctx, "missing"); err == nil {
		t.Error("expected an error for an unknown session")
	} else {
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			t.Errorf("err = %v, want 404 APIError", err)
		}
	}

	entry, err := c.SetEnabled(ctx, "device-02", true)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Enabled || entry.LoginStatus != client.ConnQRPending {
		t.Errorf("enable returned %+v", entry)
	}

	rec, err := c.Reconnect(ctx, "device-02")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Connectivity() != client.ConnQRPending || len(rec.QRCode) == 0 {
		t.Errorf("reconnect returned %+v", rec)
	}
}

func TestReconnectDisabled(t *testing.T) {
	f := newFixture(t, config.SimulatorConfig{})
	resp, err := http.Post(f.ts.URL+"/api/sessions/device-02/reconnect", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status %d, want 409", resp.StatusCode)
	}
}

func TestEnabledRequiresBody(t *testing.T) {
	f := newFixture(t, config.SimulatorConfig{})
	for _, body := range []string{"", "{}", `{"enabled":"yes"}`} {
		resp, err := http.Post(f.ts.URL+"/api/sessions/device-01/enabled", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, config.SimulatorConfig{})
	resp := get(t, f.ts.URL+"/api/sessions/device-01/reconnect", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status %d, want 405", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t, config.SimulatorConfig{}, WithToken("s3cret"))

	tests := []struct {
		name   string
		url    string
		header http.Header
		want   int
	}{
		{"missing", "/api/sessions", nil, http.StatusUnauthorized},
		{"wrong bearer", "/api/sessions", http.Header{"Authorization": {"Bearer nope"}}, http.StatusUnauthorized},
		{"query", "/api/sessions?token=s3cret", nil, http.StatusOK},
		{"header", "/api/sessions", http.Header{TokenHeader: {"s3cret"}}, http.StatusOK},
		{"bearer", "/api/sessions", http.Header{"Authorization": {"Bearer s3cret"}}, http.StatusOK},
		{"health is open", "/healthz", nil, http.StatusOK},
		{"ws", "/ws", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, f.ts.URL+tt.url, tt.header)
			if resp.StatusCode != tt.want {
				t.Errorf("status %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestChaosFailsSessionRoutes(t *testing.T) {
	f := newFixture(t, config.SimulatorConfig{FailureRate: 1})

	if resp := get(t, f.ts.URL+"/api/sessions/device-01/status", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status route: %d, want 503", resp.StatusCode)
	}
	if resp := get(t, f.ts.URL+"/api/sessions", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("roster route should not be faulted, got %d", resp.StatusCode)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) client.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg client.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	return msg
}

func TestWebSocketRoster(t *testing.T) {
	f := newFixture(t, config.SimulatorConfig{})

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	first := readMessage(t, conn)
	if first.Type != client.MsgSnapshot {
		t.Fatalf("first message is %s, want snapshot", first.Type)
	}
	var snap client.SnapshotPayload
	if err := json.Unmarshal(first.Payload, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Sessions) != 2 {
		t.Errorf("snapshot has %d sessions", len(snap.Sessions))
	}

	if _, err := f.sim.SetEnabled("device-01", false, t0); err != nil {
		t.Fatal(err)
	}
	delta := readMessage(t, conn)
	if delta.Type != client.MsgDelta || delta.Seq <= first.Seq {
		t.Fatalf("expected a later delta, got %s seq %d", delta.Type, delta.Seq)
	}
	var payload client.DeltaPayload
	if err := json.Unmarshal(delta.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Updates) != 1 || payload.Updates[0].ID != "device-01" || payload.Updates[0].Enabled {
		t.Errorf("unexpected delta %+v", payload)
	}

	if err := conn.WriteJSON(map[string]string{"type": "resync"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != client.MsgSnapshot {
		t.Errorf("resync answered with %s", msg.Type)
	}
	if f.bc.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d", f.bc.ClientCount())
	}
}

func TestCheckOrigin(t *testing.T) {
	s := New(session.NewStore(), nil, nil)
	restricted := New(session.NewStore(), nil, nil, WithAllowedOrigins([]string{"https://ops.example.com"}))

	tests := []struct {
		srv    *Server
		origin string
		want   bool
	}{
		{s, "", true},
		{s, "http://localhost:3000", true},
		{s, "http://127.0.0.1:9000", true},
		{s, "http://[::1]:9000", true},
		{s, "http://backend.test", true},
		{s, "https://evil.example.com", false},
		{restricted, "https://ops.example.com", true},
		{restricted, "http://localhost:3000", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://backend.test/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := tt.srv.checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestListenAndServeShutsDown(t *testing.T) {
	srv := New(session.NewStore(), nil, NewBroadcaster(session.NewStore(), time.Millisecond, nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
