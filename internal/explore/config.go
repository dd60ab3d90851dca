// Package explore implements the touch exploration event rewriter.
package explore

import (
	"fmt"
	"time"
)

const (
	// DefaultDoubleTapTimeout is the window in which a second press belongs
	// to the same gesture.
	DefaultDoubleTapTimeout = 300 * time.Millisecond
	// DefaultTouchSlop is the distance a held finger may travel before it is
	// treated as exploring rather than tapping.
	DefaultTouchSlop = 15.0
)

// Config holds the gesture timing thresholds. It is fixed for the lifetime
// of a controller.
type Config struct {
	DoubleTapTimeout time.Duration
	TouchSlop        float64
	// AnnounceSingleTap makes a committed single tap emit a mouse move at
	// the tap location and remember it as the exploration point.
	AnnounceSingleTap bool
	// Strict panics on events that the finger bookkeeping rules out for the
	// current state instead of passing them through.
	Strict bool
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		DoubleTapTimeout: DefaultDoubleTapTimeout,
		TouchSlop:        DefaultTouchSlop,
	}
}

// Validate checks that thresholds are usable.
func (c Config) Validate() error {
	if c.DoubleTapTimeout <= 0 {
		return fmt.Errorf("double-tap timeout must be > 0, got %s", c.DoubleTapTimeout)
	}
	if c.TouchSlop < 0 {
		return fmt.Errorf("touch slop must be >= 0, got %g", c.TouchSlop)
	}
	return nil
}
