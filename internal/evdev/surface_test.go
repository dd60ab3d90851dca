package evdev

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/verte-zerg/touchx/internal/event"
)

func TestSurfaceClampsAndScales(t *testing.T) {
	s := Surface{Width: 100, Height: 50, X: AbsRange{0, 1000}, Y: AbsRange{100, 600}}
	assert.Equal(t, event.Pt(50, 0), s.point(500, 100))
	assert.Equal(t, event.Pt(100, 50), s.point(2000, 900))
	assert.Equal(t, event.Pt(0, 0), s.point(-5, 0))

	raw := Surface{X: AbsRange{0, 1000}}
	assert.Equal(t, event.Pt(1234, 7), raw.point(1234, 7))
}

func TestWatchExitsWhenDone(t *testing.T) {
	done := make(chan struct{})
	exited := make(chan struct{})
	interrupted := false
	go func() {
		watch(context.Background(), done, func() { interrupted = true })
		close(exited)
	}()
	close(done)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher outlived its reader")
	}
	assert.False(t, interrupted)
}

func TestWatchInterruptsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	interrupted := make(chan struct{})
	go watch(ctx, make(chan struct{}), func() { close(interrupted) })
	cancel()
	select {
	case <-interrupted:
	case <-time.After(2 * time.Second):
		t.Fatalf("cancel did not interrupt the read")
	}
}
