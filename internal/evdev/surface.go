// Package evdev decodes Linux multitouch input into touch events.
package evdev

import (
	"context"

	"github.com/verte-zerg/touchx/internal/event"
)

// AbsRange is the reported range of an absolute axis.
type AbsRange struct {
	Min int32
	Max int32
}

// Surface maps device coordinates onto a surface of Width x Height units.
// A zero Width or Height keeps raw device coordinates on that axis.
type Surface struct {
	Width  float64
	Height float64
	X      AbsRange
	Y      AbsRange
}

func (s Surface) mapAxis(v int32, r AbsRange, size float64) float64 {
	if size <= 0 || r.Max <= r.Min {
		return float64(v)
	}
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	return float64(v-r.Min) / float64(r.Max-r.Min) * size
}

func (s Surface) point(x, y int32) event.Point {
	return event.Pt(s.mapAxis(x, s.X, s.Width), s.mapAxis(y, s.Y, s.Height))
}

// watch calls interrupt if ctx ends before done is closed.
func watch(ctx context.Context, done <-chan struct{}, interrupt func()) {
	select {
	case <-ctx.Done():
		interrupt()
	case <-done:
	}
}
