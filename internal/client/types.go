// Package client provides HTTP and WebSocket clients for the session backend.
// Types mirror the backend wire contract without importing backend packages;
// JSON field names must match the backend exactly.
package client

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Connectivity is a session's login state as reported by the backend.
type Connectivity string

const (
	ConnUnknown   Connectivity = "unknown"
	ConnOffline   Connectivity = "offline"
	ConnQRPending Connectivity = "qr_pending"
	ConnLoggedIn  Connectivity = "logged_in"
	ConnExpired   Connectivity = "expired"
)

// ParseConnectivity maps a backend string to a Connectivity. Anything
// unrecognised is ConnUnknown.
func ParseConnectivity(s string) Connectivity {
	switch c := Connectivity(strings.ToLower(strings.TrimSpace(s))); c {
	case ConnOffline, ConnQRPending, ConnLoggedIn, ConnExpired:
		return c
	default:
		return ConnUnknown
	}
}

// UnmarshalText normalises unknown values instead of failing the response.
func (c *Connectivity) UnmarshalText(b []byte) error {
	*c = ParseConnectivity(string(b))
	return nil
}

// Timestamp accepts RFC 3339 strings, numeric strings and JSON numbers
// holding Unix seconds (or milliseconds, for values too large to be seconds).
type Timestamp struct {
	time.Time
}

// millisThreshold separates Unix seconds from Unix milliseconds. Seconds do
// not reach 1e12 until the year 33658.
const millisThreshold = 1e12

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("timestamp %q: not RFC 3339 or Unix time", s)
		}
		t.Time = fromUnix(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("timestamp %s: %w", b, err)
	}
	t.Time = fromUnix(f)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func fromUnix(f float64) time.Time {
	if f >= millisThreshold {
		f /= 1000
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// SessionStatus is returned by the status and reconnect endpoints.
type SessionStatus struct {
	LoginStatus       Connectivity `json:"login_status"`
	SessionID         string       `json:"session_id"`
	LastHeartbeat     *Timestamp   `json:"last_heartbeat"`
	Error             string       `json:"error,omitempty"`
	SessionStatus     string       `json:"session_status"`
	MessagePollActive bool         `json:"message_poll_active"`
	QRCodeBase64      string       `json:"qr_code_base64,omitempty"`

	// QRCode is QRCodeBase64 decoded. Nil when absent or malformed.
	QRCode []byte `json:"-"`
}

// Connectivity returns the login state, treating a nil status or a missing
// field as ConnUnknown.
func (s *SessionStatus) Connectivity() Connectivity {
	if s == nil || s.LoginStatus == "" {
		return ConnUnknown
	}
	return s.LoginStatus
}

// Heartbeat returns the last heartbeat, or the zero time.
func (s *SessionStatus) Heartbeat() time.Time {
	if s == nil || s.LastHeartbeat == nil {
		return time.Time{}
	}
	return s.LastHeartbeat.Time
}

// Screenshot is returned by the screenshot endpoint.
type Screenshot struct {
	Base64Image string     `json:"base64_image,omitempty"`
	Timestamp   *Timestamp `json:"timestamp,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Image is Base64Image decoded.
	Image []byte `json:"-"`
}

// CapturedAt returns the frame timestamp, or the zero time.
func (s *Screenshot) CapturedAt() time.Time {
	if s == nil || s.Timestamp == nil {
		return time.Time{}
	}
	return s.Timestamp.Time
}

// ErrBadPayload reports an image field that is not valid base64.
var ErrBadPayload = errors.New("malformed base64 payload")

// DecodePayload decodes a base64 image field. It accepts data URIs
// ("data:image/png;base64,...") and both padded and unpadded encodings.
// Empty input yields nil, nil.
func DecodePayload(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, ErrBadPayload
		}
		s = s[i+1:]
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return nil, ErrBadPayload
}

// --- Roster ---

// RosterEntry is one session known to the backend.
type RosterEntry struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Enabled       bool         `json:"enabled"`
	LoginStatus   Connectivity `json:"login_status"`
	LastHeartbeat *Timestamp   `json:"last_heartbeat,omitempty"`
}

// DisplayName prefers Name, falling back to ID.
func (e RosterEntry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgError    MessageType = "error"
)

// WSMessage is the envelope for all WebSocket messages.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// SnapshotPayload lists every session; sent on connect and periodically.
type SnapshotPayload struct {
	Sessions []RosterEntry `json:"sessions"`
}

// DeltaPayload carries changed and removed sessions.
type DeltaPayload struct {
	Updates []RosterEntry `json:"updates"`
	Removed []string      `json:"removed,omitempty"`
}

// ErrorPayload is a server-side error report.
type ErrorPayload struct {
	Message string `json:"message"`
}
