package monitor

import (
	"time"

	"github.com/tgoai/tgo-sessionwatch/internal/client"
	"github.com/tgoai/tgo-sessionwatch/internal/config"
)

// Policy is the poll cadence of a monitor.
type Policy struct {
	// FastStatus applies while the session is not logged in.
	FastStatus time.Duration
	// SlowStatus applies once the session is logged in.
	SlowStatus time.Duration
	Screenshot time.Duration
	// Settle is the wait between a completed reconnect and the screenshot
	// refresh that picks up the reconnected view.
	Settle time.Duration
	// AutoReconnect issues one reconnect whenever the session enters
	// the expired state.
	AutoReconnect bool
}

// DefaultPolicy returns the standard cadence: 5s/30s status, 10s
// screenshots, 2s settle.
func DefaultPolicy() Policy {
	return Policy{
		FastStatus: config.DefaultFastStatusInterval,
		SlowStatus: config.DefaultSlowStatusInterval,
		Screenshot: config.DefaultScreenshotInterval,
		Settle:     config.DefaultSettleDelay,
	}
}

// PolicyFromConfig builds a Policy from the monitor config section.
func PolicyFromConfig(c config.MonitorConfig) Policy {
	return Policy{
		FastStatus:    c.FastStatusInterval,
		SlowStatus:    c.SlowStatusInterval,
		Screenshot:    c.ScreenshotInterval,
		Settle:        c.SettleDelay,
		AutoReconnect: c.AutoReconnect,
	}
}

// StatusInterval is the delay before the next status poll given the
// connectivity currently displayed.
func (p Policy) StatusInterval(c client.Connectivity) time.Duration {
	if c == client.ConnLoggedIn {
		return p.SlowStatus
	}
	return p.FastStatus
}
