// Package session holds the development backend's view of each device
// session and converts it to the wire shapes the console consumes.
package session

import (
	"encoding/base64"
	"time"

	"github.com/tgoai/tgo-sessionwatch/internal/client"
)

// State is one simulated device session.
type State struct {
	ID      string
	Name    string
	Enabled bool
	// Order is the insertion order, used to list sessions stably.
	Order int
	// PhaseTicks counts simulator ticks spent in the current connectivity.
	PhaseTicks int

	Connectivity client.Connectivity
	// LoginID identifies the current login; it changes on every login.
	LoginID           string
	Detail            string
	Error             string
	LastHeartbeat     time.Time
	MessagePollActive bool

	QRCode     []byte
	QRIssuedAt time.Time
	LoggedInAt time.Time

	Screen      []byte
	ScreenAt    time.Time
	ScreenError string
}

// Roster returns the roster entry for s.
func (s *State) Roster() client.RosterEntry {
	return client.RosterEntry{
		ID:            s.ID,
		Name:          s.Name,
		Enabled:       s.Enabled,
		LoginStatus:   s.Connectivity,
		LastHeartbeat: timestamp(s.LastHeartbeat),
	}
}

// Status returns the status response body for s.
func (s *State) Status() client.SessionStatus {
	st := client.SessionStatus{
		LoginStatus:       s.Connectivity,
		SessionID:         s.LoginID,
		LastHeartbeat:     timestamp(s.LastHeartbeat),
		Error:             s.Error,
		SessionStatus:     s.Detail,
		MessagePollActive: s.MessagePollActive,
	}
	if s.Connectivity == client.ConnQRPending && len(s.QRCode) > 0 {
		st.QRCodeBase64 = base64.StdEncoding.EncodeToString(s.QRCode)
	}
	return st
}

// Screenshot returns the screenshot response body for s.
func (s *State) Screenshot() client.Screenshot {
	if s.ScreenError != "" {
		return client.Screenshot{Error: s.ScreenError}
	}
	if len(s.Screen) == 0 {
		return client.Screenshot{}
	}
	return client.Screenshot{
		Base64Image: base64.StdEncoding.EncodeToString(s.Screen),
		Timestamp:   timestamp(s.ScreenAt),
	}
}

func timestamp(t time.Time) *client.Timestamp {
	if t.IsZero() {
		return nil
	}
	return &client.Timestamp{Time: t.UTC()}
}
