package sim

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ErrInjected is returned for requests the simulator chose to fail.
var ErrInjected = errors.New("injected failure")

// Chaos delays and fails backend requests at random so the console's
// out-of-order and error handling can be watched live.
type Chaos struct {
	jitter   time.Duration
	failRate float64
	rand     func() float64
}

func NewChaos(jitter time.Duration, failRate float64) *Chaos {
	return &Chaos{
		jitter:   jitter,
		failRate: failRate,
		rand:     rand.Float64,
	}
}

// Enabled reports whether the injector does anything.
func (c *Chaos) Enabled() bool {
	return c != nil && (c.jitter > 0 || c.failRate > 0)
}

// Delay sleeps for a random time below the configured jitter, returning
// early with ctx's error.
func (c *Chaos) Delay(ctx context.Context) error {
	if c == nil || c.jitter <= 0 {
		return nil
	}
	d := time.Duration(c.rand() * float64(c.jitter))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fail returns ErrInjected with the configured probability.
func (c *Chaos) Fail() error {
	if c == nil || c.failRate <= 0 {
		return nil
	}
	if c.rand() < c.failRate {
		return ErrInjected
	}
	return nil
}
